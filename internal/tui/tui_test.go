package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/forest6511/sitepass/pkg/breach"
	"github.com/forest6511/sitepass/pkg/clock"
	"github.com/forest6511/sitepass/pkg/hashengine"
	"github.com/forest6511/sitepass/pkg/maskedinput"
	"github.com/forest6511/sitepass/pkg/persist"
	"github.com/forest6511/sitepass/pkg/session"
	"github.com/forest6511/sitepass/pkg/sitestore"
)

var testStart = time.UnixMilli(1700000000000)

// countChecker reports the same breach count for every value.
type countChecker int

func (c countChecker) Check(context.Context, string) (int, error) {
	return int(c), nil
}

func testModel(t *testing.T, idle time.Duration) (Model, *session.Session, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(testStart)
	store := sitestore.New(session.NewSchema(), persist.NewMemory().View(), sitestore.WithClock(clk))
	engine := hashengine.NewArgon2Engine(hashengine.Params{Time: 1, Memory: 64, Threads: 1})
	sess := session.New(store, engine, session.WithChecker(countChecker(3)))
	m := New(context.Background(), sess, Options{Clock: clk, IdleTimeout: idle})
	t.Cleanup(m.Close)
	return m, sess, clk
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func typeText(t *testing.T, m Model, s string) Model {
	t.Helper()
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return m
}

func key(k tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: k}
}

// commitMasterKey types key into the master key field, commits it and
// delivers the breach check result.
func commitMasterKey(t *testing.T, m Model, k string) Model {
	t.Helper()
	m = typeText(t, m, k)
	m, cmd := update(t, m, key(tea.KeyEnter))
	if cmd == nil {
		t.Fatal("expected a breach check command")
	}
	m, _ = update(t, m, cmd())
	return m
}

// generateFor types site into the site field and delivers the generated
// password.
func generateFor(t *testing.T, m Model, site string) Model {
	t.Helper()
	m = typeText(t, m, site)
	m, cmd := update(t, m, key(tea.KeyEnter))
	if cmd == nil {
		t.Fatal("expected a generate command")
	}
	m, _ = update(t, m, cmd())
	if m.generated == nil {
		t.Fatalf("expected generated password, got error %v", m.err)
	}
	return m
}

func TestMasterKeyObscuredAfterDelay(t *testing.T) {
	m, _, clk := testModel(t, 0)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("abc")})
	if cmd == nil {
		t.Error("expected a repaint to be scheduled")
	}
	if got := m.keyView.Value(); got != "abc" {
		t.Errorf("expected readable input, got %q", got)
	}

	clk.Advance(maskedinput.DefaultRevealDelay)
	if got := m.keyView.Value(); got != "●●●" {
		t.Errorf("expected obscured input, got %q", got)
	}
	if got := m.editor.Buffer(); got != "abc" {
		t.Errorf("buffer should keep plaintext, got %q", got)
	}
}

func TestCommitChecksMasterKey(t *testing.T) {
	m, sess, _ := testModel(t, 0)

	m = commitMasterKey(t, m, "  secret ")
	if !sess.HasMasterKey() {
		t.Fatal("expected master key to be set")
	}
	if m.focus != focusSite {
		t.Error("expected focus to move to the site field")
	}
	if got := m.keyView.Value(); got != strings.Repeat("●", 9) {
		t.Errorf("expected one glyph per typed character, got %q", got)
	}
	if m.master.Status != breach.StatusCompromised {
		t.Errorf("expected compromised master key, got %s", m.master.Status)
	}
	if !strings.Contains(m.View(), "Password compromised 3 times") {
		t.Error("expected breach message in view")
	}
}

func TestStaleMasterCheckIgnored(t *testing.T) {
	m, sess, _ := testModel(t, 0)

	m = typeText(t, m, "first")
	m, cmd := update(t, m, key(tea.KeyEnter))
	m, _ = update(t, m, key(tea.KeyTab))
	m = typeText(t, m, "second")

	m, _ = update(t, m, cmd())
	if m.master.Status != breach.StatusUnchecked {
		t.Errorf("stale check should be ignored, got %s", m.master.Status)
	}
	if sess.HasMasterKey() {
		t.Error("a stale commit must not leave its key in the session")
	}
}

func TestGenerate(t *testing.T) {
	m, sess, _ := testModel(t, 0)
	m = commitMasterKey(t, m, "master")

	m = typeText(t, m, "a.com")
	m, cmd := update(t, m, key(tea.KeyEnter))
	if cmd == nil {
		t.Fatal("expected a generate command")
	}
	m, _ = update(t, m, cmd())

	if m.err != nil {
		t.Fatalf("unexpected error: %v", m.err)
	}
	if m.generated == nil || m.generated.Site != "a.com" || len(m.generated.Hash) != 26 {
		t.Fatalf("unexpected output %+v", m.generated)
	}
	if !m.saved || !sess.Site("a.com").Saved {
		t.Error("expected site to be saved")
	}
	if !strings.Contains(m.View(), m.generated.Hash) {
		t.Error("expected password in view")
	}
}

func TestGenerateWithoutMasterKey(t *testing.T) {
	m, _, _ := testModel(t, 0)
	m, _ = update(t, m, key(tea.KeyTab))
	m = typeText(t, m, "a.com")

	m, cmd := update(t, m, key(tea.KeyEnter))
	m, _ = update(t, m, cmd())
	if !errors.Is(m.err, session.ErrNoMasterKey) {
		t.Errorf("expected ErrNoMasterKey, got %v", m.err)
	}
}

func TestSiteLoadsSavedSettings(t *testing.T) {
	m, sess, _ := testModel(t, 0)
	saved := hashengine.Settings{HashWordSize: 10, Bangify: true}
	sess.Store().Set("a.com", session.SettingsRecord(saved))

	m, _ = update(t, m, key(tea.KeyTab))
	m = typeText(t, m, "a.co")
	if m.saved || m.settings != session.DefaultSettings() {
		t.Errorf("expected defaults for unknown tag, got %+v", m.settings)
	}
	m = typeText(t, m, "m")
	if !m.saved || m.settings != saved {
		t.Errorf("expected saved settings, got %+v", m.settings)
	}
}

func TestSettingsKeys(t *testing.T) {
	m, _, _ := testModel(t, 0)

	m, _ = update(t, m, key(tea.KeyCtrlP))
	m, _ = update(t, m, key(tea.KeyCtrlR))
	m, _ = update(t, m, key(tea.KeyCtrlB))
	if !m.settings.RequirePunctuation || !m.settings.RestrictSpecial || !m.settings.Bangify {
		t.Errorf("expected toggles on, got %+v", m.settings)
	}

	m, _ = update(t, m, key(tea.KeyPgUp))
	if m.settings.HashWordSize != hashengine.MaxWordSize {
		t.Errorf("size should stay at max, got %d", m.settings.HashWordSize)
	}
	for range 30 {
		m, _ = update(t, m, key(tea.KeyPgDown))
	}
	if m.settings.HashWordSize != hashengine.MinWordSize {
		t.Errorf("size should stop at min, got %d", m.settings.HashWordSize)
	}
}

func TestSiteEditing(t *testing.T) {
	m, _, _ := testModel(t, 0)
	m, _ = update(t, m, key(tea.KeyTab))

	m = typeText(t, m, "abd")
	m, _ = update(t, m, key(tea.KeyLeft))
	m = typeText(t, m, "c")
	if got := m.site.Value(); got != "abcd" {
		t.Fatalf("expected insert at caret, got %q", got)
	}
	m, _ = update(t, m, key(tea.KeyDelete))
	m, _ = update(t, m, key(tea.KeyHome))
	m, _ = update(t, m, key(tea.KeyBackspace))
	if got := m.site.Value(); got != "abc" {
		t.Errorf("expected forward delete only, got %q", got)
	}
	m, _ = update(t, m, key(tea.KeyCtrlU))
	if got := m.site.Value(); got != "" {
		t.Errorf("expected cleared field, got %q", got)
	}
}

func TestSiteEditDropsGeneratedPassword(t *testing.T) {
	m, _, _ := testModel(t, 0)
	m = commitMasterKey(t, m, "master")
	m = generateFor(t, m, "a.com")
	hash := m.generated.Hash

	m = typeText(t, m, "x")
	if m.generated != nil {
		t.Errorf("expected generated password to be cleared, got %+v", m.generated)
	}
	if strings.Contains(m.View(), hash) {
		t.Error("password for the previous site is still shown")
	}

	copied := false
	orig := clipboardWriteAll
	clipboardWriteAll = func(string) error {
		copied = true
		return nil
	}
	t.Cleanup(func() { clipboardWriteAll = orig })
	m, _ = update(t, m, key(tea.KeyCtrlY))
	if copied {
		t.Error("copy must not use the password of the previous site")
	}
}

func TestMasterKeyBackspace(t *testing.T) {
	m, _, clk := testModel(t, 0)

	m = typeText(t, m, "abc")
	m, _ = update(t, m, key(tea.KeyBackspace))
	if got := m.editor.Buffer(); got != "ab" {
		t.Errorf("expected buffer %q, got %q", "ab", got)
	}
	clk.Advance(maskedinput.DefaultRevealDelay)
	if got := m.keyView.Value(); got != "●●" {
		t.Errorf("expected obscured input, got %q", got)
	}
}

func TestTabIntoMasterKeyStartsOver(t *testing.T) {
	m, sess, _ := testModel(t, 0)
	m = commitMasterKey(t, m, "master")
	m = generateFor(t, m, "a.com")
	hash := m.generated.Hash

	m, _ = update(t, m, key(tea.KeyTab))
	if m.focus != focusMasterKey {
		t.Fatal("expected master key focus")
	}
	if sess.HasMasterKey() || m.editor.Len() != 0 || m.keyView.Value() != "" {
		t.Error("expected master key entry to be reset")
	}
	if m.generated != nil || m.err != nil {
		t.Errorf("expected generated output to be cleared, got %+v (err %v)", m.generated, m.err)
	}
	if strings.Contains(m.View(), hash) {
		t.Error("generated password is still shown")
	}
}

func TestCopyHash(t *testing.T) {
	var copied string
	orig := clipboardWriteAll
	clipboardWriteAll = func(s string) error {
		copied = s
		return nil
	}
	t.Cleanup(func() { clipboardWriteAll = orig })

	m, _, _ := testModel(t, 0)
	m, _ = update(t, m, key(tea.KeyCtrlY))
	if copied != "" {
		t.Error("nothing should be copied before generating")
	}

	m = commitMasterKey(t, m, "master")
	m = typeText(t, m, "a.com")
	m, cmd := update(t, m, key(tea.KeyEnter))
	m, _ = update(t, m, cmd())
	m, _ = update(t, m, key(tea.KeyCtrlY))
	if copied != m.generated.Hash {
		t.Errorf("expected hash copied, got %q", copied)
	}
	if m.status != "Copied password for a.com" {
		t.Errorf("unexpected status %q", m.status)
	}

	clipboardWriteAll = func(string) error { return errors.New("no clipboard") }
	m, _ = update(t, m, key(tea.KeyCtrlY))
	if m.status != "Failed to copy password" {
		t.Errorf("unexpected status %q", m.status)
	}
}

func TestIdleTimeoutClearsMasterKey(t *testing.T) {
	m, sess, clk := testModel(t, time.Hour)
	m = commitMasterKey(t, m, "master")

	clk.Advance(30 * time.Minute)
	m, _ = update(t, m, tea.FocusMsg{})
	clk.Advance(45 * time.Minute)
	if !sess.HasMasterKey() {
		t.Fatal("window focus should restart the idle timer")
	}

	clk.Advance(15 * time.Minute)
	if sess.HasMasterKey() {
		t.Fatal("expected master key cleared after idle timeout")
	}

	var msg tea.Msg
	select {
	case msg = <-m.notify:
	default:
		t.Fatal("expected idle notification")
	}
	m, cmd := update(t, m, msg)
	if cmd == nil {
		t.Error("expected to keep waiting for notifications")
	}
	if m.focus != focusMasterKey || m.master.Status != breach.StatusUnchecked {
		t.Errorf("expected reset state, got focus %d status %s", m.focus, m.master.Status)
	}
	if !strings.Contains(m.View(), "cleared after inactivity") {
		t.Error("expected idle status in view")
	}
}

func TestQuit(t *testing.T) {
	m, _, _ := testModel(t, 0)
	m, cmd := update(t, m, key(tea.KeyEsc))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if m.View() != "" {
		t.Error("expected empty view after quit")
	}
}
