// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the verification
// daemon.
//
// Configuration is loaded from a single file specified by:
//   - GATEKEEPER_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
//
// The file may be YAML (.yaml, .yml) or JSONC (.json, .jsonc); the
// extension selects the parser.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from "30s"-style strings
// in both YAML and JSON configs.
type Duration time.Duration

// Value returns the underlying time.Duration.
func (d Duration) Value() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	return d.parse(raw)
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return d.parse(raw)
}

func (d *Duration) parse(raw string) error {
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the daemon configuration.
type Config struct {
	// GameServer configures the TCP listener queried by the game
	// server's auth plugin.
	GameServer GameServerConfig `yaml:"game_server" json:"game_server"`

	// StatePath is the JSON snapshot of the verification table.
	StatePath string `yaml:"state_path" json:"state_path"`

	// AdminSocket is the Unix socket path for the gatekeeper CLI.
	AdminSocket string `yaml:"admin_socket" json:"admin_socket"`

	// CodeTTL is how long an issued verification code stays claimable.
	CodeTTL Duration `yaml:"code_ttl" json:"code_ttl"`

	// Matrix configures the chat front end.
	Matrix MatrixConfig `yaml:"matrix" json:"matrix"`
}

// GameServerConfig configures the TCP front end.
type GameServerConfig struct {
	// Listen is the bind address. The protocol is unauthenticated, so
	// this should stay on a loopback or otherwise trusted interface.
	Listen string `yaml:"listen" json:"listen"`
}

// MatrixConfig configures the bot account and the watched rooms.
type MatrixConfig struct {
	// HomeserverURL is the base URL of the homeserver.
	HomeserverURL string `yaml:"homeserver_url" json:"homeserver_url"`

	// UserID is the bot's fully-qualified user ID.
	UserID string `yaml:"user_id" json:"user_id"`

	// TokenPath is the file holding the bot's access token, or "-" to
	// read it from stdin.
	TokenPath string `yaml:"token_path" json:"token_path"`

	// VerifyRoom is where players post verification codes. Room ID or
	// alias.
	VerifyRoom string `yaml:"verify_room" json:"verify_room"`

	// MembersRoom is where review notices are posted and moderator
	// commands issued. Room ID or alias.
	MembersRoom string `yaml:"members_room" json:"members_room"`

	// ModeratorLevel is the minimum power level in the members room
	// required to approve or unlink.
	ModeratorLevel int `yaml:"moderator_level" json:"moderator_level"`
}

// Default returns the default configuration. These defaults are a base
// before loading the config file, not a substitute for one.
func Default() *Config {
	return &Config{
		GameServer: GameServerConfig{
			Listen: "127.0.0.1:25687",
		},
		StatePath:   "/var/lib/gatekeeper/users.json",
		AdminSocket: "/run/gatekeeper/admin.sock",
		CodeTTL:     Duration(30 * time.Second),
		Matrix: MatrixConfig{
			ModeratorLevel: 50,
		},
	}
}

// Load loads configuration from the GATEKEEPER_CONFIG environment
// variable. There are no fallbacks: if it is not set, this fails.
func Load() (*Config, error) {
	path := os.Getenv("GATEKEEPER_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("GATEKEEPER_CONFIG environment variable not set; " +
			"set it to the path of your gatekeeper config file, or use --config flag")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, merging over
// the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("config %s: unsupported extension (want .yaml, .yml, .json, or .jsonc)", path)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.GameServer.Listen == "" {
		errs = append(errs, fmt.Errorf("game_server.listen is required"))
	}
	if c.StatePath == "" {
		errs = append(errs, fmt.Errorf("state_path is required"))
	}
	if c.CodeTTL <= 0 {
		errs = append(errs, fmt.Errorf("code_ttl must be positive"))
	}
	if c.Matrix.HomeserverURL == "" {
		errs = append(errs, fmt.Errorf("matrix.homeserver_url is required"))
	}
	if c.Matrix.UserID == "" {
		errs = append(errs, fmt.Errorf("matrix.user_id is required"))
	}
	if c.Matrix.TokenPath == "" {
		errs = append(errs, fmt.Errorf("matrix.token_path is required"))
	}
	if c.Matrix.VerifyRoom == "" {
		errs = append(errs, fmt.Errorf("matrix.verify_room is required"))
	}
	if c.Matrix.MembersRoom == "" {
		errs = append(errs, fmt.Errorf("matrix.members_room is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
