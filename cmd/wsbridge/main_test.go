package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
bridge:
  close_code: 4000
transport:
  handshake_timeout: 2s
port:
  kind: nats
  nats:
    url: nats://127.0.0.1:4222
    command_subject: cmds
    result_subject: results
`)

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Bridge.CloseCode != 4000 {
		t.Errorf("close code = %d, want 4000", cfg.Bridge.CloseCode)
	}
	if cfg.Bridge.ResultBuffer != 64 {
		t.Errorf("result buffer = %d, want default 64", cfg.Bridge.ResultBuffer)
	}
	if cfg.Transport.HandshakeTimeout.Seconds() != 2 {
		t.Errorf("handshake timeout = %s, want 2s", cfg.Transport.HandshakeTimeout)
	}
	if cfg.Port.NATS == nil || cfg.Port.NATS.CommandSubject != "cmds" {
		t.Errorf("nats config = %+v", cfg.Port.NATS)
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestRun_ReturnsStartupErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown transport", "transport:\n  kind: carrier-pigeon\n", "failed to create transport"},
		{"unknown port", "port:\n  kind: smoke-signal\n", "unsupported port"},
		{"nats without settings", "port:\n  kind: nats\n", "nats port config missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(writeConfig(t, tt.body), false, false)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("run = %v, want error containing %q", err, tt.want)
			}
		})
	}
}
