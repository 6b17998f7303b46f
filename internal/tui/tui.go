// Package tui is the interactive terminal front end: a site tag field, a
// masked master key field and the generated password.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/forest6511/sitepass/pkg/breach"
	"github.com/forest6511/sitepass/pkg/clock"
	"github.com/forest6511/sitepass/pkg/hashengine"
	"github.com/forest6511/sitepass/pkg/maskedinput"
	"github.com/forest6511/sitepass/pkg/session"
)

// clipboardWriteAll is a package-level variable to allow mocking in tests.
var clipboardWriteAll = clipboard.WriteAll

type focus int

const (
	focusMasterKey focus = iota
	focusSite
)

// Options configures the model.
type Options struct {
	Glyph       rune
	RevealDelay time.Duration
	IdleTimeout time.Duration
	Clock       clock.Clock
	Logger      *zap.Logger
}

type (
	// revealMsg repaints once pending characters have been obscured.
	revealMsg struct{}
	// idleClearedMsg is sent when the idle timeout wiped the master key.
	idleClearedMsg struct{}

	masterCheckedMsg struct {
		key    string
		result breach.Result
	}
	generatedMsg struct {
		out *session.Generated
		err error
	}
)

// Model is the bubbletea model.
type Model struct {
	ctx     context.Context
	sess    *session.Session
	logger  *zap.Logger
	delay   time.Duration
	notify  chan tea.Msg
	editor  *maskedinput.Editor
	keyView *maskedinput.MemoryField
	site    *maskedinput.MemoryField
	styles  styles

	focus     focus
	settings  hashengine.Settings
	saved     bool
	checking  bool
	master    breach.Result
	generated *session.Generated
	status    string
	err       error
	quitting  bool
}

// New creates the model. Close releases the editor timers.
func New(ctx context.Context, sess *session.Session, opts Options) Model {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Glyph == 0 {
		opts.Glyph = maskedinput.DefaultGlyph
	}
	if opts.RevealDelay <= 0 {
		opts.RevealDelay = maskedinput.DefaultRevealDelay
	}

	notify := make(chan tea.Msg, 1)
	keyView := maskedinput.NewMemoryField()
	editor := maskedinput.New(keyView,
		maskedinput.WithClock(opts.Clock),
		maskedinput.WithGlyph(opts.Glyph),
		maskedinput.WithRevealDelay(opts.RevealDelay),
		maskedinput.WithIdleTimeout(opts.IdleTimeout),
		maskedinput.WithLogger(opts.Logger),
		maskedinput.WithClearHook(func() {
			sess.ClearMasterKey()
			select {
			case notify <- idleClearedMsg{}:
			default:
			}
		}),
	)

	return Model{
		ctx:      ctx,
		sess:     sess,
		logger:   opts.Logger,
		delay:    opts.RevealDelay,
		notify:   notify,
		editor:   editor,
		keyView:  keyView,
		site:     maskedinput.NewMemoryField(),
		styles:   defaultStyles(),
		settings: session.DefaultSettings(),
	}
}

// Close stops the editor timers and forgets the master key.
func (m Model) Close() {
	m.editor.Close()
	m.sess.ClearMasterKey()
}

// Run shows the model until the user quits or ctx is done.
func Run(ctx context.Context, sess *session.Session, opts Options) error {
	m := New(ctx, sess, opts)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen(), tea.WithReportFocus())
	_, err := p.Run()
	return err
}

// Init waits for idle timeout notifications.
func (m Model) Init() tea.Cmd {
	return m.waitForNotify()
}

func (m Model) waitForNotify() tea.Cmd {
	return func() tea.Msg {
		return <-m.notify
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.FocusMsg:
		m.editor.WindowFocus()
		return m, nil

	case revealMsg:
		return m, nil

	case idleClearedMsg:
		m.master = breach.Result{}
		m.generated = nil
		m.focus = focusMasterKey
		m.status = "Master key cleared after inactivity"
		return m, m.waitForNotify()

	case masterCheckedMsg:
		key, ok := m.editor.Key()
		switch {
		case ok && key == msg.key:
			m.checking = false
			m.master = msg.result
		case !ok:
			// The entry was reset while the check ran.
			m.sess.ClearMasterKey()
		}
		return m, nil

	case generatedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.generated = nil
			return m, nil
		}
		m.err = nil
		m.generated = msg.out
		m.loadSite()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.status = ""
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case "tab", "shift+tab":
		return m.toggleFocus(), nil
	case "enter":
		if m.focus == focusMasterKey {
			return m.commit()
		}
		return m, m.generate()
	case "ctrl+y":
		return m.copyHash(), nil
	case "ctrl+p":
		m.settings.RequirePunctuation = !m.settings.RequirePunctuation
		return m, nil
	case "ctrl+r":
		m.settings.RestrictSpecial = !m.settings.RestrictSpecial
		return m, nil
	case "ctrl+b":
		m.settings.Bangify = !m.settings.Bangify
		return m, nil
	case "pgup":
		m.settings.HashWordSize = min(m.settings.HashWordSize+1, hashengine.MaxWordSize)
		return m, nil
	case "pgdown":
		m.settings.HashWordSize = max(m.settings.HashWordSize-1, hashengine.MinWordSize)
		return m, nil
	case "left", "right", "home", "end":
		moveCaret(m.activeField(), msg.String())
		return m, nil
	}

	in, ok := intentFor(msg, m.activeField())
	if !ok {
		return m, nil
	}
	if m.focus == focusSite {
		applyPlain(m.site, in)
		m.loadSite()
		m.generated = nil
		m.err = nil
		return m, nil
	}
	if err := m.editor.Apply(in); err != nil {
		m.logger.Debug("rejected edit", zap.Error(err))
		return m, nil
	}
	return m, tea.Tick(m.delay+10*time.Millisecond, func(time.Time) tea.Msg { return revealMsg{} })
}

func (m Model) activeField() *maskedinput.MemoryField {
	if m.focus == focusSite {
		return m.site
	}
	return m.keyView
}

// toggleFocus switches fields. Entering the master key field starts a new
// entry and drops the generated password.
func (m Model) toggleFocus() Model {
	if m.focus == focusSite {
		m.focus = focusMasterKey
		m.editor.Focus()
		m.sess.ClearMasterKey()
		m.master = breach.Result{}
		m.checking = false
		m.generated = nil
		m.err = nil
		return m
	}
	m.focus = focusSite
	return m
}

func (m Model) commit() (tea.Model, tea.Cmd) {
	key := m.editor.Commit()
	m.focus = focusSite
	if key == "" {
		m.sess.ClearMasterKey()
		m.master = breach.Result{}
		return m, nil
	}
	m.checking = true
	m.master = breach.Result{}
	ctx, sess := m.ctx, m.sess
	return m, func() tea.Msg {
		return masterCheckedMsg{key: key, result: sess.SetMasterKey(ctx, key)}
	}
}

func (m Model) generate() tea.Cmd {
	ctx, sess, tag, settings := m.ctx, m.sess, m.site.Value(), m.settings
	return func() tea.Msg {
		out, err := sess.Generate(ctx, tag, settings)
		return generatedMsg{out: out, err: err}
	}
}

func (m Model) copyHash() Model {
	if m.generated == nil {
		return m
	}
	if err := clipboardWriteAll(m.generated.Hash); err != nil {
		m.status = "Failed to copy password"
		m.logger.Warn("clipboard write failed", zap.Error(err))
		return m
	}
	m.status = fmt.Sprintf("Copied password for %s", m.generated.Site)
	return m
}

// loadSite shows the saved settings for the current site tag, or the
// defaults for a new one.
func (m *Model) loadSite() {
	view := m.sess.Site(m.site.Value())
	m.settings = view.Settings
	m.saved = view.Saved
}

// intentFor translates a key press into an edit of f.
func intentFor(msg tea.KeyMsg, f *maskedinput.MemoryField) (maskedinput.Intent, bool) {
	sel := f.Selection()
	in := maskedinput.Intent{Start: sel.Start, End: sel.End}
	switch msg.Type {
	case tea.KeyRunes:
		in.Kind = maskedinput.Insert
		in.Data = string(msg.Runes)
	case tea.KeySpace:
		in.Kind = maskedinput.Insert
		in.Data = " "
	case tea.KeyBackspace:
		in.Kind = maskedinput.DeleteBackward
	case tea.KeyDelete:
		in.Kind = maskedinput.DeleteForward
	case tea.KeyCtrlU:
		in.Kind = maskedinput.DeleteContent
		in.Start, in.End = 0, len([]rune(f.Value()))
	default:
		return in, false
	}
	return in, true
}

// applyPlain performs an edit on an unmasked field.
func applyPlain(f *maskedinput.MemoryField, in maskedinput.Intent) {
	value := []rune(f.Value())
	start, end := in.Start, in.End
	switch in.Kind {
	case maskedinput.DeleteBackward:
		if start == end {
			if start == 0 {
				return
			}
			start--
		}
	case maskedinput.DeleteForward:
		if start == end {
			if end == len(value) {
				return
			}
			end++
		}
	}
	data := []rune(in.Data)
	out := make([]rune, 0, len(value)-(end-start)+len(data))
	out = append(out, value[:start]...)
	out = append(out, data...)
	out = append(out, value[end:]...)
	f.SetValue(string(out))
	caret := start + len(data)
	f.SetSelection(maskedinput.Selection{Start: caret, End: caret})
}

func moveCaret(f *maskedinput.MemoryField, key string) {
	sel := f.Selection()
	n := len([]rune(f.Value()))
	pos := sel.End
	switch key {
	case "left":
		pos = max(sel.Start-1, 0)
		if !sel.Collapsed() {
			pos = sel.Start
		}
	case "right":
		pos = min(sel.End+1, n)
		if !sel.Collapsed() {
			pos = sel.End
		}
	case "home":
		pos = 0
	case "end":
		pos = n
	}
	f.SetSelection(maskedinput.Selection{Start: pos, End: pos})
}

type styles struct {
	title   lipgloss.Style
	label   lipgloss.Style
	focused lipgloss.Style
	blurred lipgloss.Style
	muted   lipgloss.Style
	good    lipgloss.Style
	bad     lipgloss.Style
	warn    lipgloss.Style
}

func defaultStyles() styles {
	field := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Width(40)
	return styles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		label:   lipgloss.NewStyle().Bold(true),
		focused: field.BorderForeground(lipgloss.Color("63")),
		blurred: field.BorderForeground(lipgloss.Color("240")),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		good:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		bad:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
}

// View renders the model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.styles.title.Render("sitepass"))
	b.WriteString("\n\n")

	b.WriteString(m.styles.label.Render("Master key"))
	b.WriteString("  ")
	b.WriteString(m.renderBreach(m.master))
	b.WriteString("\n")
	b.WriteString(m.fieldStyle(focusMasterKey).Render(withCaret(m.keyView, m.focus == focusMasterKey)))
	b.WriteString("\n")

	b.WriteString(m.styles.label.Render("Site tag"))
	if m.saved {
		b.WriteString(m.styles.muted.Render("  saved"))
	}
	b.WriteString("\n")
	b.WriteString(m.fieldStyle(focusSite).Render(withCaret(m.site, m.focus == focusSite)))
	b.WriteString("\n")
	b.WriteString(m.renderSettings())
	b.WriteString("\n\n")

	switch {
	case m.err != nil:
		b.WriteString(m.styles.bad.Render(m.err.Error()))
	case m.generated != nil:
		b.WriteString(m.styles.label.Render("Password"))
		b.WriteString("  ")
		b.WriteString(m.generated.Hash)
		b.WriteString("  ")
		b.WriteString(m.renderBreach(m.generated.Breach))
	}
	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(m.styles.muted.Render(m.status))
	}
	b.WriteString("\n")
	b.WriteString(m.styles.muted.Render("tab switch • enter commit/generate • ctrl+y copy • ctrl+p/r/b toggle • pgup/pgdn size • esc quit"))
	return b.String()
}

func (m Model) fieldStyle(f focus) lipgloss.Style {
	if m.focus == f {
		return m.styles.focused
	}
	return m.styles.blurred
}

func (m Model) renderSettings() string {
	mark := func(on bool) string {
		if on {
			return "x"
		}
		return " "
	}
	s := m.settings
	return m.styles.muted.Render(fmt.Sprintf("[%s] punctuation  [%s] restrict special  [%s] bangify  size %d",
		mark(s.RequirePunctuation), mark(s.RestrictSpecial), mark(s.Bangify), s.HashWordSize))
}

func (m Model) renderBreach(r breach.Result) string {
	switch {
	case m.checking && r.Status == breach.StatusUnchecked:
		return m.styles.muted.Render("checking...")
	case r.Status == breach.StatusClean:
		return m.styles.good.Render("not found in breaches")
	case r.Status == breach.StatusCompromised:
		return m.styles.bad.Render(r.Message)
	case r.Status == breach.StatusError, r.Status == breach.StatusNetwork:
		return m.styles.warn.Render(r.Message)
	}
	return ""
}

func withCaret(f *maskedinput.MemoryField, focused bool) string {
	value := []rune(f.Value())
	if !focused {
		return string(value)
	}
	pos := f.Selection().End
	return string(value[:pos]) + "│" + string(value[pos:])
}
