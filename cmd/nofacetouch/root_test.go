package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadSettings_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "server:\n  addr: 127.0.0.1:9000\ndetection:\n  threshold: 0.8\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cmd := rootCmd
	if err := cmd.ParseFlags([]string{"--config", path, "--threshold", "0.95", "--camera", "2"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	cfg, err := loadSettings(cmd)
	if err != nil {
		t.Fatalf("loadSettings() error = %v", err)
	}

	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("Addr = %q, want value from file", cfg.Server.Addr)
	}
	if cfg.Detection.Threshold != 0.95 {
		t.Errorf("Threshold = %v, want flag value 0.95", cfg.Detection.Threshold)
	}
	if cfg.Camera.Device != 2 {
		t.Errorf("Camera.Device = %d, want 2", cfg.Camera.Device)
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)

	if !strings.HasPrefix(out.String(), "nofacetouch dev") {
		t.Errorf("version output = %q", out.String())
	}
}
