package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	settingAPIBaseURL = "api_base_url"
	settingDarkMode   = "dark_mode"

	defaultAPIBaseURL = "http://localhost:4000"
)

// settings is the persisted CLI configuration. The session lives next to it in
// session.json and is owned by the state package. v resolves values with env overrides
// and defaults; file holds only what config.yaml contains and is the one written back.
type settings struct {
	v    *viper.Viper
	file *viper.Viper
	dir  string
}

func loadSettings(dir string) (*settings, error) {
	v := newFileViper(dir)
	v.SetEnvPrefix("TEAMCTL")
	v.AutomaticEnv()
	v.SetDefault(settingAPIBaseURL, defaultAPIBaseURL)
	v.SetDefault(settingDarkMode, true)
	if err := readConfig(v); err != nil {
		return nil, err
	}

	file := newFileViper(dir)
	if err := readConfig(file); err != nil {
		return nil, err
	}
	return &settings{v: v, file: file, dir: dir}, nil
}

func newFileViper(dir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	return v
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read settings: %w", err)
		}
	}
	return nil
}

func (s *settings) APIBaseURL() string {
	return s.v.GetString(settingAPIBaseURL)
}

func (s *settings) DarkMode() bool {
	return s.v.GetBool(settingDarkMode)
}

func (s *settings) SetDarkMode(dark bool) error {
	s.v.Set(settingDarkMode, dark)
	s.file.Set(settingDarkMode, dark)
	return s.save()
}

func (s *settings) save() error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	return s.file.WriteConfigAs(filepath.Join(s.dir, "config.yaml"))
}
