package persist

import "sync"

// Memory is an in-process slot area shared by any number of contexts.
// Each context is obtained with View; a write through one view is announced
// to the subscribers of every other view.
//
// Notifications run synchronously on the writing goroutine, like events on
// a single-threaded page. Do not write through two views concurrently when
// their subscribers write back.
type Memory struct {
	mu    sync.Mutex
	slots map[string]string
	quota int // maximum total bytes; 0 means unlimited
	views []*MemoryView
}

// NewMemory creates an empty slot area.
func NewMemory() *Memory {
	return &Memory{slots: make(map[string]string)}
}

// View opens a new context over the shared slots.
func (m *Memory) View() *MemoryView {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := &MemoryView{mem: m}
	m.views = append(m.views, v)
	return v
}

// SetQuota limits the total size of all slot values in bytes.
// Writes that would exceed it fail with ErrQuotaExceeded.
func (m *Memory) SetQuota(bytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quota = bytes
}

// Put writes a slot from outside every view, as another application sharing
// the area would, and notifies all views.
func (m *Memory) Put(key, value string) {
	m.mu.Lock()
	m.slots[key] = value
	views := append([]*MemoryView(nil), m.views...)
	m.mu.Unlock()

	for _, v := range views {
		v.subs.notify()
	}
}

// Raw returns the current slot value without going through a view.
func (m *Memory) Raw(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.slots[key]
	return value, ok
}

func (m *Memory) sizeWithLocked(key, value string) int {
	total := 0
	for k, v := range m.slots {
		if k == key {
			continue
		}
		total += len(k) + len(v)
	}
	return total + len(key) + len(value)
}

// MemoryView is one context over a Memory. It implements Storage and
// Notifier.
type MemoryView struct {
	mem  *Memory
	subs subscribers
}

// Get returns the slot value.
func (v *MemoryView) Get(key string) (string, bool, error) {
	value, ok := v.mem.Raw(key)
	return value, ok, nil
}

// Set replaces the slot value and notifies the other views.
func (v *MemoryView) Set(key, value string) error {
	m := v.mem
	m.mu.Lock()
	if m.quota > 0 && m.sizeWithLocked(key, value) > m.quota {
		m.mu.Unlock()
		return ErrQuotaExceeded
	}
	m.slots[key] = value
	others := make([]*MemoryView, 0, len(m.views))
	for _, other := range m.views {
		if other != v {
			others = append(others, other)
		}
	}
	m.mu.Unlock()

	for _, other := range others {
		other.subs.notify()
	}
	return nil
}

// Subscribe registers fn for writes made by other contexts.
func (v *MemoryView) Subscribe(fn func()) func() {
	return v.subs.add(fn)
}
