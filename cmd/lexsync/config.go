package main

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the persistent flags; explicit flags take precedence
// over the file.
type fileConfig struct {
	Data    string `yaml:"data"`
	Adapter string `yaml:"adapter"`
	Remote  string `yaml:"remote"`
	Token   string `yaml:"token"`
	User    string `yaml:"user"`
	Spool   string `yaml:"spool"`
}

// applyConfigFile loads the --config file (or ./lexsync.yaml when present)
// and fills in flags the user did not set.
func applyConfigFile() error {
	path := configPath
	implicit := false
	if path == "" {
		path = "lexsync.yaml"
		implicit = true
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && implicit {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if dataDir == "" {
		dataDir = cfg.Data
	}
	if adapter == "fs" && cfg.Adapter != "" {
		adapter = cfg.Adapter
	}
	if remoteURL == "" {
		remoteURL = cfg.Remote
	}
	if token == "" {
		token = cfg.Token
	}
	if userID == "" {
		userID = cfg.User
	}
	if spoolDir == "" {
		spoolDir = cfg.Spool
	}
	return nil
}
