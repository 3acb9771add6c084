// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const yamlConfig = `
game_server:
  listen: "127.0.0.1:25687"
state_path: /tmp/users.json
admin_socket: /tmp/admin.sock
code_ttl: 45s
matrix:
  homeserver_url: https://matrix.example.org
  user_id: "@gatekeeper:example.org"
  token_path: /etc/gatekeeper/token
  verify_room: "#verify:example.org"
  members_room: "#members:example.org"
  moderator_level: 75
`

func TestLoadYAML(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "gatekeeper.yaml", yamlConfig))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.CodeTTL.Value() != 45*time.Second {
		t.Errorf("code_ttl = %v, want 45s", cfg.CodeTTL.Value())
	}
	if cfg.Matrix.ModeratorLevel != 75 {
		t.Errorf("moderator_level = %d, want 75", cfg.Matrix.ModeratorLevel)
	}
	if cfg.Matrix.VerifyRoom != "#verify:example.org" {
		t.Errorf("verify_room = %q", cfg.Matrix.VerifyRoom)
	}
}

func TestLoadJSONCWithComments(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "gatekeeper.jsonc", `{
		// The TCP side stays on loopback.
		"game_server": {"listen": "127.0.0.1:25687"},
		"state_path": "/tmp/users.json",
		"code_ttl": "1m",
		"matrix": {
			"homeserver_url": "https://matrix.example.org",
			"user_id": "@gatekeeper:example.org",
			"token_path": "-",
			"verify_room": "!v:example.org",
			"members_room": "!m:example.org", // trailing comma next
		},
	}`))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.CodeTTL.Value() != time.Minute {
		t.Errorf("code_ttl = %v, want 1m", cfg.CodeTTL.Value())
	}
	// Unset fields keep their defaults.
	if cfg.AdminSocket != Default().AdminSocket {
		t.Errorf("admin_socket = %q, want default", cfg.AdminSocket)
	}
	if cfg.Matrix.ModeratorLevel != 50 {
		t.Errorf("moderator_level = %d, want default 50", cfg.Matrix.ModeratorLevel)
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	if _, err := LoadFile(writeConfig(t, "gatekeeper.toml", "x = 1")); err == nil {
		t.Fatal("LoadFile accepted a .toml file")
	}
}

func TestLoadRequiresEnvironmentVariable(t *testing.T) {
	t.Setenv("GATEKEEPER_CONFIG", "")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "GATEKEEPER_CONFIG") {
		t.Fatalf("Load without env = %v", err)
	}
}

func TestValidateReportsAllMissingFields(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("empty config validated")
	}
	for _, want := range []string{"game_server.listen", "state_path", "code_ttl", "matrix.homeserver_url", "matrix.verify_room"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("validation error does not mention %s: %v", want, err)
		}
	}
}

func TestBadDuration(t *testing.T) {
	path := writeConfig(t, "gatekeeper.yaml", "code_ttl: soon\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("LoadFile accepted an invalid duration")
	}
}
