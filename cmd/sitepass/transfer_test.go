package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/forest6511/sitepass/pkg/hashengine"
	"github.com/forest6511/sitepass/pkg/session"
	"github.com/forest6511/sitepass/pkg/sitestore"
)

func TestExportSitesRoundTrip(t *testing.T) {
	sess := testSession(t)
	sess.Store().Set("b.com", session.SettingsRecord(hashengine.Settings{HashWordSize: 12, Bangify: true}))
	sess.Store().Set("a.com", session.SettingsRecord(session.DefaultSettings()))

	for _, format := range []string{formatJSON, formatYAML} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			if err := exportSites(&buf, sess.Store(), format); err != nil {
				t.Fatalf("exportSites failed: %v", err)
			}
			data := buf.Bytes()
			if format == formatYAML {
				var err error
				if data, err = yamlToJSON(data); err != nil {
					t.Fatalf("yamlToJSON failed: %v", err)
				}
			}

			batch, err := sitestore.ParseBatch(data)
			if err != nil {
				t.Fatalf("ParseBatch failed: %v", err)
			}
			got := make(map[string]hashengine.Settings)
			for _, e := range batch.Entries {
				got[e.Site] = session.SettingsFromRecord(e.Record)
				if e.Record.Updated() != testStart.UnixMilli() {
					t.Errorf("%s: expected updated %d, got %d", e.Site, testStart.UnixMilli(), e.Record.Updated())
				}
			}
			want := map[string]hashengine.Settings{
				"a.com": session.DefaultSettings(),
				"b.com": {HashWordSize: 12, Bangify: true},
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestYAMLToJSONInvalid(t *testing.T) {
	if _, err := yamlToJSON([]byte("a: [unclosed")); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestReadImportFile(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "sites.json")
	yamlPath := filepath.Join(dir, "sites.YML")
	if err := os.WriteFile(jsonPath, []byte(`{"a.com":{}}`), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(yamlPath, []byte("a.com: {}\n"), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name           string
		path           string
		format         string
		expectedFormat string
		expectError    bool
	}{
		{name: "json by extension", path: jsonPath, expectedFormat: formatJSON},
		{name: "yaml by extension", path: yamlPath, expectedFormat: formatYAML},
		{name: "explicit format wins", path: jsonPath, format: formatYAML, expectedFormat: formatYAML},
		{name: "invalid format", path: jsonPath, format: "xml", expectError: true},
		{name: "missing file", path: filepath.Join(dir, "missing.json"), expectError: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, format, err := readImportFile(tc.path, tc.format)
			if tc.expectError {
				if err == nil {
					t.Error("expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if format != tc.expectedFormat {
				t.Errorf("expected format %q, got %q", tc.expectedFormat, format)
			}
			if len(data) == 0 {
				t.Error("expected data")
			}
		})
	}
}

func TestReadImportFileTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.json")
	if err := os.WriteFile(path, bytes.Repeat([]byte(" "), maxImportSize+1), 0600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := readImportFile(path, ""); err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestPrintImportSummary(t *testing.T) {
	var buf bytes.Buffer
	printImportSummary(&buf, sitestore.ImportResult{
		Added:    []string{"a.com", "b.com"},
		Replaced: []string{"c.com"},
		Skipped:  []string{"d.com"},
	})
	want := "Import complete: 2 added, 1 replaced, 1 kept\n  kept d.com (saved settings are newer)\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteSecureFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "export.json")

	if err := writeSecureFile(path, "first", false); err != nil {
		t.Fatalf("writeSecureFile failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected 0600 permissions, got %o", perm)
	}

	if err := writeSecureFile(path, "second", false); err == nil || !strings.Contains(err.Error(), "--force") {
		t.Errorf("expected exists error, got %v", err)
	}

	if err := writeSecureFile(path, "second", true); err != nil {
		t.Fatalf("forced write failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Errorf("expected overwritten content, got %q", data)
	}
}

func TestWriteSecureFileRefusesSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	if err := os.WriteFile(target, []byte("keep"), 0600); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	if err := writeSecureFile(link, "evil", true); err == nil || !strings.Contains(err.Error(), "symlink") {
		t.Errorf("expected symlink error, got %v", err)
	}
	data, _ := os.ReadFile(target)
	if string(data) != "keep" {
		t.Errorf("target was modified: %q", data)
	}
}
