// Package web serves the control panel page and its actions.
package web

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/normen/obs-panel/panel"
)

const (
	pageTitle    = "Church Stream Control"
	pageSubtitle = "Broadcasting Management System"

	// panelPath shows the current state without connecting again
	panelPath = "/panel"
)

//go:embed views/*.html
var viewsFs embed.FS

var templates = template.Must(template.ParseFS(viewsFs, "views/*.html"))

// View is the panel state machine the server drives.
type View interface {
	Mount()
	ToggleStream()
	ToggleRecord()
	SelectScene(name string)
	ToggleSource(name string)
	Snapshot() panel.State
}

// PageData is what the full page template renders.
type PageData struct {
	Title    string
	Subtitle string
	State    panel.State
}

// Server encapsulates the Echo server of the control panel.
type Server struct {
	Echo *echo.Echo

	view    View
	metrics http.Handler
	log     *slog.Logger
}

// New sets up routes and middleware. metrics may be nil.
func New(view View, metrics http.Handler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		Echo:    echo.New(),
		view:    view,
		metrics: metrics,
		log:     log,
	}
	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.Renderer = &TemplateRenderer{templates: templates, log: log}

	s.initMiddleware()
	s.initRoutes()
	return s
}

// TemplateRenderer is a custom HTML template renderer for Echo framework.
type TemplateRenderer struct {
	templates *template.Template
	log       *slog.Logger
}

// Render executes a template into a buffer before writing it out.
func (t *TemplateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	var buf bytes.Buffer
	if err := t.templates.ExecuteTemplate(&buf, name, data); err != nil {
		t.log.Error("error executing template", "template", name, "error", err)
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func (s *Server) initMiddleware() {
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	s.Echo.Use(VaryHeaderMiddleware())

	httpLogger := s.log.With("component", "http")
	s.Echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogMethod:    true,
		LogError:     true,
		LogRequestID: true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			switch {
			case v.Status >= 500:
				level = slog.LevelError
			case v.Status >= 400:
				level = slog.LevelWarn
			}
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", float64(v.Latency) / float64(time.Millisecond),
				"remote_ip", v.RemoteIP,
				"request_id", v.RequestID,
				"htmx", c.Request().Header.Get("HX-Request") != "",
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			httpLogger.Log(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	}))
}

// VaryHeaderMiddleware sets the "Vary: HX-Request" header for all responses.
func VaryHeaderMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set("Vary", "HX-Request")
			if isHtmx(c) {
				c.Response().Header().Set("Cache-Control", "no-store")
			}
			return next(c)
		}
	}
}

func (s *Server) initRoutes() {
	s.Echo.GET("/", s.handleIndex)
	s.Echo.GET(panelPath, s.handlePanel)
	s.Echo.POST("/stream", s.handleStream)
	s.Echo.POST("/record", s.handleRecord)
	s.Echo.POST("/scene", s.handleScene)
	s.Echo.POST("/source", s.handleSource)
	s.Echo.GET("/api/state", s.handleState)
	if s.metrics != nil {
		s.Echo.GET("/metrics", echo.WrapHandler(s.metrics))
	}
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.log.Info("control panel listening", "address", addr)
	if err := s.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

func isHtmx(c echo.Context) bool {
	return c.Request().Header.Get("HX-Request") != ""
}

// render answers with the panel fragment for htmx and with the whole page
// otherwise
func (s *Server) render(c echo.Context) error {
	state := s.view.Snapshot()
	if isHtmx(c) {
		return c.Render(http.StatusOK, "panel", state)
	}
	return c.Render(http.StatusOK, "index", PageData{
		Title:    pageTitle,
		Subtitle: pageSubtitle,
		State:    state,
	})
}

// afterAction answers a POST. A plain form post is redirected so that
// reloading the result does not repeat the action.
func (s *Server) afterAction(c echo.Context) error {
	if isHtmx(c) {
		return s.render(c)
	}
	return c.Redirect(http.StatusSeeOther, panelPath)
}

func (s *Server) handleIndex(c echo.Context) error {
	s.view.Mount()
	return s.render(c)
}

func (s *Server) handlePanel(c echo.Context) error {
	return s.render(c)
}

func (s *Server) handleStream(c echo.Context) error {
	s.view.ToggleStream()
	return s.afterAction(c)
}

func (s *Server) handleRecord(c echo.Context) error {
	s.view.ToggleRecord()
	return s.afterAction(c)
}

func (s *Server) handleScene(c echo.Context) error {
	s.view.SelectScene(c.FormValue("name"))
	return s.afterAction(c)
}

func (s *Server) handleSource(c echo.Context) error {
	s.view.ToggleSource(c.FormValue("name"))
	return s.afterAction(c)
}

func (s *Server) handleState(c echo.Context) error {
	return c.JSON(http.StatusOK, s.view.Snapshot())
}

// URL is the address a browser on this machine reaches the panel at.
func URL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}
