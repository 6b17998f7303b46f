// Package maskedinput masks a secret typed into a plain text field.
//
// The Editor keeps the real text in a buffer and shows it in the field one
// edit at a time: every inserted run of characters is visible until its
// reveal delay elapses, then it is replaced by an obscuring glyph. A mask
// slot per character records which edit batch it belongs to, so a later edit
// can never be obscured early by an older timer.
package maskedinput

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forest6511/sitepass/pkg/clock"
)

const (
	// DefaultGlyph replaces characters once their reveal delay has elapsed.
	DefaultGlyph = '●'
	// DefaultRevealDelay is how long an edit stays readable.
	DefaultRevealDelay = 500 * time.Millisecond
	// DefaultIdleTimeout clears the secret after a period without window focus.
	DefaultIdleTimeout = 4 * time.Hour
)

// settled marks a mask slot whose character is already obscured.
const settled = ""

// ErrInvalidSelection is returned by Apply for a range outside the buffer.
var ErrInvalidSelection = errors.New("maskedinput: selection out of range")

// Kind identifies an edit intent.
type Kind int

const (
	// Insert splices Data over [Start, End).
	Insert Kind = iota
	// DeleteBackward removes the character before a caret, or the selection.
	DeleteBackward
	// DeleteForward removes the character after a caret, or the selection.
	DeleteForward
	// DeleteContent removes [Start, End), as a cut does.
	DeleteContent
)

func (k Kind) String() string {
	switch k {
	case Insert:
		return "insert"
	case DeleteBackward:
		return "deleteBackward"
	case DeleteForward:
		return "deleteForward"
	case DeleteContent:
		return "deleteContent"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Intent is an edit described before it is applied, with the selection the
// field had at that moment.
type Intent struct {
	Kind  Kind
	Data  string
	Start int
	End   int
}

// Editor is the masking state machine for one field.
type Editor struct {
	mu          sync.Mutex
	field       Field
	clock       clock.Clock
	logger      *zap.Logger
	glyph       rune
	revealDelay time.Duration
	idleTimeout time.Duration
	newBatchID  func() string
	onClear     []func()

	buffer    []rune
	mask      []string
	key       string
	committed bool
	idleTimer clock.Timer
}

// Option configures an Editor.
type Option func(*Editor)

// WithClock sets the clock used for the reveal and idle timers.
func WithClock(c clock.Clock) Option {
	return func(e *Editor) { e.clock = c }
}

// WithGlyph sets the obscuring glyph.
func WithGlyph(r rune) Option {
	return func(e *Editor) { e.glyph = r }
}

// WithRevealDelay sets how long an edit stays readable.
func WithRevealDelay(d time.Duration) Option {
	return func(e *Editor) { e.revealDelay = d }
}

// WithIdleTimeout sets the idle timeout. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(e *Editor) { e.idleTimeout = d }
}

// WithBatchIDs replaces the edit batch id generator.
func WithBatchIDs(fn func() string) Option {
	return func(e *Editor) { e.newBatchID = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Editor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClearHook registers fn to run after the idle timeout clears the editor.
func WithClearHook(fn func()) Option {
	return func(e *Editor) { e.onClear = append(e.onClear, fn) }
}

// New creates an editor over field and starts its idle timer.
func New(field Field, opts ...Option) *Editor {
	e := &Editor{
		field:       field,
		clock:       clock.Real(),
		logger:      zap.NewNop(),
		glyph:       DefaultGlyph,
		revealDelay: DefaultRevealDelay,
		idleTimeout: DefaultIdleTimeout,
		newBatchID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.WindowFocus()
	return e
}

// Close stops the idle timer. Pending reveal timers are left to fire; they
// find nothing to do once the editor is reset.
func (e *Editor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.idleTimer != nil {
		e.idleTimer.Stop()
		e.idleTimer = nil
	}
}

// Apply performs an edit on the buffer, the mask and the field, then
// schedules the edit's characters to be obscured.
func (e *Editor) Apply(in Intent) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if in.Start < 0 || in.End < in.Start || in.End > len(e.buffer) {
		return fmt.Errorf("%w: %s [%d,%d) of %d", ErrInvalidSelection, in.Kind, in.Start, in.End, len(e.buffer))
	}

	display := e.displayLocked()
	start, end := in.Start, in.End
	var data []rune
	switch in.Kind {
	case Insert:
		data = []rune(in.Data)
	case DeleteBackward:
		if start == end {
			if start == 0 {
				return nil
			}
			start--
		}
	case DeleteForward:
		if start == end {
			if end == len(e.buffer) {
				return nil
			}
			end++
		}
	case DeleteContent:
		if start == end {
			return nil
		}
	default:
		return fmt.Errorf("maskedinput: unknown intent %s", in.Kind)
	}

	batch := e.newBatchID()
	ids := make([]string, len(data))
	for i := range ids {
		ids[i] = batch
	}
	e.buffer = splice(e.buffer, start, end, data)
	e.mask = splice(e.mask, start, end, ids)
	display = splice(display, start, end, data)
	e.committed = false

	caret := start + len(data)
	e.field.SetValue(string(display))
	e.field.SetSelection(Selection{Start: caret, End: caret})

	e.clock.AfterFunc(e.revealDelay, func() { e.obscure(batch) })
	return nil
}

// obscure hides the characters still tagged with batch. It reads the mask
// when it runs, so characters deleted or retyped since are left alone.
func (e *Editor) obscure(batch string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	display := e.displayLocked()
	changed := false
	for i, id := range e.mask {
		if id == batch {
			display[i] = e.glyph
			e.mask[i] = settled
			changed = true
		}
	}
	if !changed {
		return
	}
	sel := e.field.Selection()
	e.field.SetValue(string(display))
	e.field.SetSelection(sel)
}

// displayLocked returns the field's runes, or glyphs when the field no
// longer matches the buffer length.
func (e *Editor) displayLocked() []rune {
	display := []rune(e.field.Value())
	if len(display) != len(e.buffer) {
		e.logger.Debug("field out of sync with buffer, re-masking",
			zap.Int("field", len(display)), zap.Int("buffer", len(e.buffer)))
		return e.glyphsLocked()
	}
	return display
}

func (e *Editor) glyphsLocked() []rune {
	out := make([]rune, len(e.buffer))
	for i := range out {
		out[i] = e.glyph
	}
	return out
}

// Focus starts a new entry: the buffer, the mask, the field and any
// committed key are cleared.
func (e *Editor) Focus() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
}

func (e *Editor) resetLocked() {
	e.buffer = nil
	e.mask = nil
	e.key = ""
	e.committed = false
	e.field.SetValue("")
}

// Commit ends the entry. The field shows one glyph per buffered character
// and the trimmed buffer is returned as the key. The key is never written to
// the field.
func (e *Editor) Commit() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.mask {
		e.mask[i] = settled
	}
	e.field.SetValue(string(e.glyphsLocked()))
	e.key = strings.TrimSpace(string(e.buffer))
	e.committed = true
	return e.key
}

// Key returns the key from the last Commit, if the buffer has not been
// edited or cleared since.
func (e *Editor) Key() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.key, e.committed
}

// WindowFocus restarts the idle timer. When it expires the editor is
// cleared and the clear hooks run.
func (e *Editor) WindowFocus() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.idleTimer != nil {
		e.idleTimer.Stop()
		e.idleTimer = nil
	}
	if e.idleTimeout <= 0 {
		return
	}
	var t clock.Timer
	t = e.clock.AfterFunc(e.idleTimeout, func() { e.expire(t) })
	e.idleTimer = t
}

func (e *Editor) expire(t clock.Timer) {
	e.mu.Lock()
	if e.idleTimer != t {
		// Superseded by a later WindowFocus.
		e.mu.Unlock()
		return
	}
	e.idleTimer = nil
	e.resetLocked()
	hooks := append([]func(){}, e.onClear...)
	e.mu.Unlock()

	e.logger.Debug("idle timeout cleared master key")
	for _, fn := range hooks {
		fn()
	}
}

// Buffer returns the plaintext.
func (e *Editor) Buffer() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return string(e.buffer)
}

// Mask returns a copy of the mask; an empty slot is an obscured character.
func (e *Editor) Mask() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.mask...)
}

// Len returns the number of buffered characters.
func (e *Editor) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buffer)
}

func splice[T any](s []T, start, end int, insert []T) []T {
	out := make([]T, 0, len(s)-(end-start)+len(insert))
	out = append(out, s[:start]...)
	out = append(out, insert...)
	return append(out, s[end:]...)
}
