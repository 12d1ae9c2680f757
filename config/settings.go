package config

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

const configFileName = "obs-panel/obs-panel.config"

type Settings struct {
	*General
	*Web
	*Log
	Path string `ini:"-"`
}

type General struct {
	ObsHost     string
	ObsPassword string
}

type Web struct {
	Listen      string
	OpenBrowser bool
	ShowTray    bool
}

type Log struct {
	Level  string
	Format string
}

// Defaults returns the settings used for every key missing from the file.
func Defaults() *Settings {
	return &Settings{
		General: &General{
			ObsHost:     "localhost:4455",
			ObsPassword: "",
		},
		Web: &Web{
			Listen:      "127.0.0.1:8080",
			OpenBrowser: false,
			ShowTray:    true,
		},
		Log: &Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath is the config file in the user's xdg config directory.
func DefaultPath() (string, error) {
	return xdg.ConfigFile(configFileName)
}

// LoadEnv reads a .env file from the working directory into the process
// environment so config values can reference it. A missing file is fine.
func LoadEnv(filenames ...string) error {
	if err := godotenv.Load(filenames...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(err, "loading .env")
	}
	return nil
}

// Load reads the config file at path, creating it if needed. Keys missing
// from the file are added with their default values and the file is saved;
// existing values are never rewritten. Values may reference environment
// variables as $NAME or ${NAME}.
func Load(path string) (*Settings, error) {
	settings := Defaults()
	settings.Path = path

	defaults := ini.Empty()
	if err := ini.ReflectFromWithMapper(defaults, settings, ini.TitleUnderscore); err != nil {
		return nil, errors.Wrap(err, "reflecting default config")
	}

	var cfg *ini.File
	var err error
	if _, statErr := os.Stat(path); statErr == nil {
		if cfg, err = ini.Load(path); err != nil {
			return nil, errors.Wrapf(err, "reading config %s", path)
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "creating config directory")
		}
		cfg = ini.Empty()
	}
	cfg.NameMapper = ini.TitleUnderscore
	cfg.ValueMapper = os.ExpandEnv

	// add any new values
	changed := false
	for _, section := range defaults.Sections() {
		for _, key := range section.Keys() {
			target := cfg.Section(section.Name())
			if target.HasKey(key.Name()) {
				continue
			}
			if _, err := target.NewKey(key.Name(), key.Value()); err != nil {
				return nil, errors.Wrapf(err, "adding config key %s", key.Name())
			}
			changed = true
		}
	}
	if changed {
		if err := cfg.SaveTo(path); err != nil {
			return nil, errors.Wrapf(err, "writing config %s", path)
		}
	}

	if section, err := cfg.GetSection("general"); err == nil {
		if err := section.MapTo(settings.General); err != nil {
			return nil, errors.Wrap(err, "section general")
		}
	}
	if section, err := cfg.GetSection("web"); err == nil {
		if err := section.MapTo(settings.Web); err != nil {
			return nil, errors.Wrap(err, "section web")
		}
	}
	if section, err := cfg.GetSection("log"); err == nil {
		if err := section.MapTo(settings.Log); err != nil {
			return nil, errors.Wrap(err, "section log")
		}
	}
	if err := settings.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return settings, nil
}

func (s *Settings) Validate() error {
	if s.ObsHost == "" {
		return errors.New("general.obs_host must not be empty")
	}
	if s.Listen == "" {
		return errors.New("web.listen must not be empty")
	}
	return nil
}
