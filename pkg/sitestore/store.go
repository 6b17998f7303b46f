// Package sitestore keeps per-site settings records in memory, backed by a
// single persisted slot.
//
// Every mutation (Set, Delete, Import) rewrites the whole slot in the
// compacted {props, map} form. When another context writes the slot, the
// store reloads it completely and discards anything it had not persisted;
// concurrent writers in different contexts race and the last write wins.
package sitestore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/forest6511/sitepass/pkg/clock"
	"github.com/forest6511/sitepass/pkg/compact"
	"github.com/forest6511/sitepass/pkg/persist"
)

// DefaultStorageKey is the slot that holds the compacted mapping.
const DefaultStorageKey = "db329347-75fb-4d26-8f4e-6b887f2f08a9"

// Entry is one site and its record, as produced by Snapshot.
type Entry struct {
	Site   string
	Record Record
}

// Store maps site identifiers to settings records. It is safe for
// concurrent use; construct one per process and share it.
type Store struct {
	mu       sync.RWMutex
	schema   *Schema
	storage  persist.Storage
	key      string
	clock    clock.Clock
	logger   *zap.Logger
	notifier persist.Notifier
	onReload []func()

	order   []string
	records map[string]Record
	lastErr error
	cancel  func()
}

// Option configures a Store.
type Option func(*Store)

// WithStorageKey overrides DefaultStorageKey.
func WithStorageKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithClock sets the clock used to stamp records and batches.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the logger for load and persist failures.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNotifier subscribes the store to external change notifications; each
// notification triggers a full reload.
func WithNotifier(n persist.Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithReloadHook registers fn to run after every reload caused by an
// external change.
func WithReloadHook(fn func()) Option {
	return func(s *Store) { s.onReload = append(s.onReload, fn) }
}

// New creates a store over storage and loads the persisted mapping.
func New(schema *Schema, storage persist.Storage, opts ...Option) *Store {
	s := &Store{
		schema:  schema,
		storage: storage,
		key:     DefaultStorageKey,
		clock:   clock.Real(),
		logger:  zap.NewNop(),
		records: make(map[string]Record),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mu.Lock()
	s.loadLocked()
	s.mu.Unlock()

	if s.notifier != nil {
		s.cancel = s.notifier.Subscribe(s.handleExternalChange)
	}
	return s
}

// Close stops listening for external changes.
func (s *Store) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Schema returns the schema the store persists.
func (s *Store) Schema() *Schema {
	return s.schema
}

// Get returns a copy of the record for site.
func (s *Store) Get(site string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[site]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// Has reports whether site has a record.
func (s *Store) Has(site string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[site]
	return ok
}

// Keys returns the site identifiers in insertion order. Use DisplayKeys for
// presentation order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Snapshot returns every record in insertion order.
func (s *Store) Snapshot() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]Entry, 0, len(s.order))
	for _, site := range s.order {
		entries = append(entries, Entry{Site: site, Record: s.records[site].Clone()})
	}
	return entries
}

// Set replaces the record for site with a copy of settings stamped with the
// current time, persists the store and returns the stored record.
// Values that are not JSON scalars are dropped.
func (s *Store) Set(site string, settings Record) Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := make(Record, len(settings)+1)
	for name, value := range settings {
		normalized, err := normalizeValue(value)
		if err != nil {
			s.logger.Warn("dropping setting", zap.String("site", site), zap.String("field", name), zap.Error(err))
			continue
		}
		r[name] = normalized
	}
	r[UpdatedField] = float64(s.clock.Now().UnixMilli())

	s.putLocked(site, r)
	s.saveLocked()
	return r.Clone()
}

// Delete removes the record for site and persists the store, whether or not
// a record existed. It reports whether one did.
func (s *Store) Delete(site string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.records[site]
	if existed {
		delete(s.records, site)
		for i, k := range s.order {
			if k == site {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.saveLocked()
	return existed
}

// ImportResult lists what Import did with each incoming site.
type ImportResult struct {
	Added    []string
	Replaced []string
	Skipped  []string
}

// Import merges a batch with last-write-wins semantics and persists once.
//
// The batch's effective timestamp is its Updated value, or the current time
// (read once) when Updated is zero. An incoming record replaces the stored
// one only when the stored timestamp is older:
//   - a site the store does not have is always added;
//   - a stored record with a non-zero timestamp older than the batch is
//     replaced;
//   - a stored record with a missing or zero timestamp is never replaced.
//
// Whole records are replaced; fields are not merged.
func (s *Store) Import(batch *Batch) ImportResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result ImportResult
	if batch == nil {
		s.saveLocked()
		return result
	}

	incoming := batch.Updated
	if incoming == 0 {
		incoming = s.clock.Now().UnixMilli()
	}

	for _, entry := range batch.Entries {
		existing, has := s.records[entry.Site]
		if has && !olderThan(existing, incoming) {
			result.Skipped = append(result.Skipped, entry.Site)
			continue
		}

		r := make(Record, len(entry.Record))
		for name, value := range entry.Record {
			normalized, err := normalizeValue(value)
			if err != nil {
				s.logger.Warn("dropping imported setting", zap.String("site", entry.Site), zap.String("field", name), zap.Error(err))
				continue
			}
			r[name] = normalized
		}
		s.putLocked(entry.Site, r)

		if has {
			result.Replaced = append(result.Replaced, entry.Site)
		} else {
			result.Added = append(result.Added, entry.Site)
		}
	}

	s.saveLocked()
	return result
}

// olderThan reports whether an existing record may be overwritten by a
// batch stamped incoming. A record without a timestamp ranks after every
// batch.
func olderThan(existing Record, incoming int64) bool {
	stamp := existing.Updated()
	if stamp == 0 {
		return false
	}
	return stamp < incoming
}

// Reload discards the in-memory mapping and reads the persisted one.
func (s *Store) Reload() {
	s.mu.Lock()
	s.loadLocked()
	s.mu.Unlock()
}

func (s *Store) handleExternalChange() {
	s.Reload()
	s.mu.RLock()
	hooks := append([]func(){}, s.onReload...)
	s.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

// LastError returns the error from the most recent failed load or persist,
// or nil if the most recent one succeeded.
func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// ExportJSON writes every record as an indented JSON object keyed by site,
// in insertion order.
func (s *Store) ExportJSON(w io.Writer) error {
	entries := s.Snapshot()

	var buf bytes.Buffer
	buf.WriteString("{")
	for i, e := range entries {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n  ")
		key, err := json.Marshal(e.Site)
		if err != nil {
			return fmt.Errorf("sitestore: failed to encode site %q: %w", e.Site, err)
		}
		buf.Write(key)
		buf.WriteString(": ")
		value, err := json.MarshalIndent(e.Record, "  ", "  ")
		if err != nil {
			return fmt.Errorf("sitestore: failed to encode record %q: %w", e.Site, err)
		}
		buf.Write(value)
	}
	if len(entries) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("sitestore: failed to write export: %w", err)
	}
	return nil
}

// putLocked stores r, keeping the existing position of site if it has one.
func (s *Store) putLocked(site string, r Record) {
	if _, ok := s.records[site]; !ok {
		s.order = append(s.order, site)
	}
	s.records[site] = r
}

func (s *Store) saveLocked() {
	entries := make([]compact.Entry, 0, len(s.order))
	for _, site := range s.order {
		entries = append(entries, compact.Entry{Key: site, Fields: s.records[site]})
	}
	data, err := compact.Marshal(compact.Encode(entries, s.schema.Allows))
	if err == nil {
		err = s.storage.Set(s.key, string(data))
	}
	if err != nil {
		s.lastErr = fmt.Errorf("sitestore: failed to save: %w", err)
		s.logger.Error("error saving data", zap.String("key", s.key), zap.Error(err))
		return
	}
	s.lastErr = nil
}

func (s *Store) loadLocked() {
	s.order = nil
	s.records = make(map[string]Record)

	entries, err := s.readPersisted()
	if err != nil {
		s.lastErr = err
		s.logger.Warn("error loading data", zap.String("key", s.key), zap.Error(err))
		return
	}
	s.lastErr = nil
	for _, e := range entries {
		s.putLocked(e.Key, Record(e.Fields))
	}
}

func (s *Store) readPersisted() ([]compact.Entry, error) {
	raw, ok, err := s.storage.Get(s.key)
	if err != nil {
		return nil, fmt.Errorf("sitestore: failed to read: %w", err)
	}
	if !ok {
		return nil, nil
	}
	blob, err := compact.Unmarshal([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("sitestore: failed to decode: %w", err)
	}
	entries, err := compact.Decode(blob)
	if err != nil {
		return nil, fmt.Errorf("sitestore: failed to decode: %w", err)
	}
	return entries, nil
}

// DisplayKeys orders site identifiers for presentation: case-insensitive
// by lower-cased key (ties broken by the original key), with empty
// identifiers and duplicates removed.
func DisplayKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.SliceStable(out, func(i, j int) bool {
		li, lj := strings.ToLower(out[i]), strings.ToLower(out[j])
		if li != lj {
			return li < lj
		}
		return out[i] < out[j]
	})
	return out
}
