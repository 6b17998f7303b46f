package maskedinput

import "sync"

// Direction is the direction of a text selection.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionForward
	DirectionBackward
)

// Selection is a caret or selected range in rune offsets. Start == End is a
// collapsed caret.
type Selection struct {
	Start     int
	End       int
	Direction Direction
}

// Collapsed reports whether the selection is a caret.
func (s Selection) Collapsed() bool {
	return s.Start == s.End
}

// Field is the visible text input the editor projects onto. Setting the
// value may move the selection, as a real input does.
type Field interface {
	Value() string
	SetValue(v string)
	Selection() Selection
	SetSelection(sel Selection)
}

// MemoryField is a Field kept in memory. SetValue collapses the caret to the
// end of the new value.
type MemoryField struct {
	mu    sync.Mutex
	value []rune
	sel   Selection
}

// NewMemoryField returns an empty field.
func NewMemoryField() *MemoryField {
	return &MemoryField{}
}

func (f *MemoryField) Value() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.value)
}

func (f *MemoryField) SetValue(v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = []rune(v)
	f.sel = Selection{Start: len(f.value), End: len(f.value)}
}

func (f *MemoryField) Selection() Selection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sel
}

// SetSelection clamps sel to the current value.
func (f *MemoryField) SetSelection(sel Selection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.value)
	sel.Start = clamp(sel.Start, 0, n)
	sel.End = clamp(sel.End, sel.Start, n)
	f.sel = sel
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
