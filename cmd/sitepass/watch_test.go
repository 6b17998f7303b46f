package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/forest6511/sitepass/pkg/session"
)

func TestPrintSnapshot(t *testing.T) {
	sess := testSession(t)
	sess.Store().Set("b.com", session.SettingsRecord(session.DefaultSettings()))
	sess.Store().Set("A.com", session.SettingsRecord(session.DefaultSettings()))

	var buf bytes.Buffer
	printSnapshot(&buf, sess.Store(), testStart)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", buf.String())
	}
	if !strings.HasSuffix(lines[0], "] 2 site(s)") {
		t.Errorf("unexpected header %q", lines[0])
	}
	if lines[1] != "  A.com" || lines[2] != "  b.com" {
		t.Errorf("expected display order, got %q", lines[1:])
	}
}

func TestWatchSites(t *testing.T) {
	sess := testSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	changed := make(chan struct{})

	var buf bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- watchSites(ctx, &buf, sess.Store(), changed)
	}()

	// The first receive orders the initial listing before the change.
	changed <- struct{}{}
	sess.Store().Set("a.com", session.SettingsRecord(session.DefaultSettings()))
	changed <- struct{}{}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("watchSites returned %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "0 site(s)") {
		t.Errorf("expected initial listing:\n%s", out)
	}
	if !strings.Contains(out, "1 site(s)\n  a.com\n") {
		t.Errorf("expected listing after change:\n%s", out)
	}
}

func TestFilterPrefix(t *testing.T) {
	got := filterPrefix([]string{"Mail.google.com", "maps.google.com", "b.com"}, "MA")
	if len(got) != 2 || got[0] != "Mail.google.com" || got[1] != "maps.google.com" {
		t.Errorf("unexpected completion %q", got)
	}
	if got := filterPrefix([]string{"a.com"}, "z"); len(got) != 0 {
		t.Errorf("expected no completions, got %q", got)
	}
}
