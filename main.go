package main

/**
Compile Linux:
sudo apt install gcc libgtk-3-dev libayatana-appindicator3-dev
**/

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/skratchdot/open-golang/open"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/normen/obs-panel/config"
	"github.com/normen/obs-panel/logging"
	"github.com/normen/obs-panel/metrics"
	"github.com/normen/obs-panel/obs"
	"github.com/normen/obs-panel/panel"
	"github.com/normen/obs-panel/tray"
	"github.com/normen/obs-panel/web"
)

var VERSION string = "v0.1.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "obs-panel",
		Short:        "Browser control panel for OBS",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/obs-panel/obs-panel.config)")
	root.AddCommand(newScenesCommand(&configPath), newVersionCommand())
	return root
}

func newScenesCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "scenes",
		Short: "List all scenes with their sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, log, err := setup(*configPath)
			if err != nil {
				return err
			}
			client := obs.NewClient(settings.ObsHost, settings.ObsPassword, obs.WithLogger(logging.Component(log, "obs")))
			client.Connect()
			defer client.Close()
			if !client.Connected() {
				return errors.Errorf("could not connect to OBS at %s", settings.ObsHost)
			}
			return printScenes(cmd.OutOrStdout(), client)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "obs-panel %s\n", VERSION)
		},
	}
}

// setup loads .env and the config file and creates the logger
func setup(configPath string) (*config.Settings, *slog.Logger, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, nil, err
	}
	if configPath == "" {
		var err error
		if configPath, err = config.DefaultPath(); err != nil {
			return nil, nil, errors.Wrap(err, "locating config file")
		}
	}
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(os.Stderr, settings.Level, settings.Format)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "config %s", configPath)
	}
	log.Info("OBS-Panel", "version", VERSION, "config", configPath)
	return settings, log, nil
}

func run(ctx context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, log, err := setup(configPath)
	if err != nil {
		return err
	}

	remoteMetrics, err := metrics.NewRemoteMetrics(prometheus.NewRegistry())
	if err != nil {
		return errors.Wrap(err, "creating metrics")
	}
	fromObs := make(chan interface{}, 100)
	client := obs.NewClient(settings.ObsHost, settings.ObsPassword,
		obs.WithLogger(logging.Component(log, "obs")),
		obs.WithObserver(remoteMetrics),
		obs.WithMessages(fromObs),
	)
	defer client.Close()

	view := panel.New(client, logging.Component(log, "panel"))
	server := web.New(view, remoteMetrics.Handler(), log)
	url := web.URL(settings.Listen)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(settings.Listen)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if settings.OpenBrowser {
		if err := open.Run(url); err != nil {
			log.Error("could not open browser", "url", url, "error", err)
		}
	}
	if settings.ShowTray {
		t := tray.New(url, settings.Path, fromObs, logging.Component(log, "tray"))
		go func() {
			<-gctx.Done()
			t.Quit()
		}()
		t.Run(stop)
	}
	return g.Wait()
}

type sceneLister interface {
	GetScenes() ([]obs.Scene, error)
	GetSceneSources(scene string) ([]obs.Source, error)
}

func printScenes(w io.Writer, lister sceneLister) error {
	scenes, err := lister.GetScenes()
	if err != nil {
		return err
	}
	for _, scene := range scenes {
		fmt.Fprintf(w, "Scene: %s\n", scene.Name)
		sources, err := lister.GetSceneSources(scene.Name)
		if err != nil {
			return err
		}
		for _, source := range sources {
			visibility := "Hidden"
			if source.Enabled {
				visibility = "Visible"
			}
			fmt.Fprintf(w, "  %-32s %s\n", source.Name, visibility)
		}
	}
	return nil
}
