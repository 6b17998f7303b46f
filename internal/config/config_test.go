package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/forest6511/sitepass/pkg/sitestore"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	v, err := New("")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c, err := Load(v)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if c.DataDir != filepath.Join(home, DirName) {
		t.Errorf("unexpected data dir %q", c.DataDir)
	}
	if c.Backend != BackendFile {
		t.Errorf("unexpected backend %q", c.Backend)
	}
	if c.StorageKey != sitestore.DefaultStorageKey {
		t.Errorf("unexpected storage key %q", c.StorageKey)
	}
	if c.Mask.GlyphRune() != '●' {
		t.Errorf("unexpected glyph %q", c.Mask.Glyph)
	}
	if c.Mask.RevealDelay != 500*time.Millisecond || c.Mask.IdleTimeout != 4*time.Hour {
		t.Errorf("unexpected mask timings %+v", c.Mask)
	}
	if !c.Breach.Enabled || c.Breach.Timeout != 10*time.Second {
		t.Errorf("unexpected breach config %+v", c.Breach)
	}
	if c.Log.Level != "warn" || c.Log.Format != "console" {
		t.Errorf("unexpected log config %+v", c.Log)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, DirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	yaml := []byte("backend: sqlite\nmask:\n  glyph: \"*\"\n  reveal_delay: 250ms\nbreach:\n  enabled: false\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SITEPASS_MASK_REVEAL_DELAY", "1s")
	t.Setenv("SITEPASS_LOG_LEVEL", "debug")

	v, err := New("")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c, err := Load(v)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if c.Backend != BackendSQLite {
		t.Errorf("expected file value, got backend %q", c.Backend)
	}
	if c.Mask.GlyphRune() != '*' {
		t.Errorf("expected file glyph, got %q", c.Mask.Glyph)
	}
	if c.Mask.RevealDelay != time.Second {
		t.Errorf("expected env to override file, got %v", c.Mask.RevealDelay)
	}
	if c.Breach.Enabled {
		t.Error("expected breach checks disabled by file")
	}
	if c.Log.Level != "debug" {
		t.Errorf("expected env log level, got %q", c.Log.Level)
	}
}

func TestExplicitConfigMustExist(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if _, err := New(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"backend", "backend", "postgres"},
		{"glyph", "mask.glyph", ""},
		{"delay", "mask.reveal_delay", "0s"},
		{"idle", "mask.idle_timeout", "-1s"},
		{"timeout", "breach.timeout", "0s"},
		{"poll", "sqlite.poll_interval", "0s"},
		{"storage key", "storage_key", "../escape"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := New("")
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			v.Set(tt.key, tt.val)
			if _, err := Load(v); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if got := expandHome("~/data"); got != filepath.Join(home, "data") {
		t.Errorf("unexpected expansion %q", got)
	}
	if got := expandHome("/abs"); got != "/abs" {
		t.Errorf("absolute path changed: %q", got)
	}
}
