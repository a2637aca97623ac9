package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile is the optional YAML file read with -profile or ADMINCTL_PROFILE.
type Profile struct {
	BaseURL  string `yaml:"base_url"`
	Locale   string `yaml:"locale"`
	Cache    string `yaml:"cache"`
	Timeout  string `yaml:"timeout"`
	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`
}

// Config is the resolved CLI configuration.
type Config struct {
	BaseURL  string
	Locale   string
	Cache    string
	Timeout  time.Duration
	LogFile  string
	LogLevel string
}

// Flags holds values given on the command line; empty means unset.
type Flags struct {
	Profile  string
	BaseURL  string
	Locale   string
	Cache    string
	Timeout  string
	LogFile  string
	LogLevel string
}

func loadProfile(path string) (Profile, error) {
	var p Profile
	if path == "" {
		return p, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return p, nil
}

// resolveConfig applies flag > env > profile > default.
func resolveConfig(f Flags) (Config, error) {
	profile, err := loadProfile(first(f.Profile, os.Getenv("ADMINCTL_PROFILE")))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		BaseURL:  first(f.BaseURL, os.Getenv("ADMINCTL_BASE_URL"), profile.BaseURL, "http://localhost:8080"),
		Locale:   first(f.Locale, os.Getenv("ADMINCTL_LOCALE"), profile.Locale, "en"),
		Cache:    first(f.Cache, os.Getenv("ADMINCTL_CACHE"), profile.Cache, defaultCachePath()),
		LogFile:  first(f.LogFile, os.Getenv("ADMINCTL_LOG_FILE"), profile.LogFile),
		LogLevel: first(f.LogLevel, os.Getenv("ADMINCTL_LOG_LEVEL"), profile.LogLevel, "warn"),
	}

	timeout := first(f.Timeout, os.Getenv("ADMINCTL_TIMEOUT"), profile.Timeout, "5s")
	cfg.Timeout, err = time.ParseDuration(timeout)
	if err != nil {
		return Config{}, fmt.Errorf("invalid timeout %q: %w", timeout, err)
	}
	if cfg.Timeout <= 0 {
		return Config{}, errors.New("timeout must be positive")
	}
	return cfg, nil
}

func defaultCachePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "adminctl-credentials.json"
	}
	return filepath.Join(dir, "adminctl", "credentials.json")
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
