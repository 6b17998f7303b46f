// Package session ties the site store, the hash engine and the breach
// checker together for one user session: the master key lives here for as
// long as the session holds it.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/forest6511/sitepass/pkg/breach"
	"github.com/forest6511/sitepass/pkg/hashengine"
	"github.com/forest6511/sitepass/pkg/security"
	"github.com/forest6511/sitepass/pkg/sitestore"
)

// Setting field names as persisted.
const (
	FieldRequirePunctuation = "requirePunctuation"
	FieldRestrictSpecial    = "restrictSpecial"
	FieldHashWordSize       = "hashWordSize"
	FieldBangify            = "bangify"
)

// DefaultAuditConcurrency bounds parallel work in Audit.
const DefaultAuditConcurrency = 4

var (
	// ErrNoMasterKey is returned when an operation needs the master key and
	// none is set.
	ErrNoMasterKey = errors.New("session: master key not set")
	// ErrSiteTagIsMasterKey is returned when the site tag equals the master
	// key, which usually means the key was typed into the wrong field.
	ErrSiteTagIsMasterKey = errors.New("session: site tag must not be the master key")
	// ErrEmptySiteTag is returned for a blank site tag.
	ErrEmptySiteTag = errors.New("session: site tag is empty")
)

// DefaultSettings returns the settings used for sites without a record.
func DefaultSettings() hashengine.Settings {
	return hashengine.Settings{HashWordSize: 26}
}

// NewSchema returns the store schema for the setting fields.
func NewSchema() *sitestore.Schema {
	schema, err := sitestore.NewSchema(SettingsRecord(DefaultSettings()))
	if err != nil {
		// The defaults are constant and valid.
		panic(err)
	}
	return schema
}

// SettingsRecord converts settings to their stored form.
func SettingsRecord(s hashengine.Settings) sitestore.Record {
	return sitestore.Record{
		FieldRequirePunctuation: s.RequirePunctuation,
		FieldRestrictSpecial:    s.RestrictSpecial,
		FieldHashWordSize:       s.HashWordSize,
		FieldBangify:            s.Bangify,
	}
}

// SettingsFromRecord reads settings from a record, taking defaults for
// missing or mistyped fields.
func SettingsFromRecord(r sitestore.Record) hashengine.Settings {
	def := DefaultSettings()
	return hashengine.Settings{
		RequirePunctuation: r.Bool(FieldRequirePunctuation, def.RequirePunctuation),
		RestrictSpecial:    r.Bool(FieldRestrictSpecial, def.RestrictSpecial),
		HashWordSize:       r.Int(FieldHashWordSize, def.HashWordSize),
		Bangify:            r.Bool(FieldBangify, def.Bangify),
	}
}

// SiteView is what the user sees for a site tag.
type SiteView struct {
	Tag      string
	Saved    bool
	Settings hashengine.Settings
	// Customized is set for saved sites whose settings differ from the
	// defaults.
	Customized bool
	Updated    time.Time
}

// Generated is the outcome of Generate.
type Generated struct {
	Site   string
	Hash   string
	Breach breach.Result
}

// Session is one user's working state. It is safe for concurrent use.
type Session struct {
	store   *sitestore.Store
	engine  hashengine.Engine
	checker breach.Checker
	logger  *zap.Logger

	mu           sync.RWMutex
	masterKey    string
	masterStatus breach.Result
}

// Option configures a Session.
type Option func(*Session)

// WithChecker sets the breach checker. Without one, results stay unchecked.
func WithChecker(c breach.Checker) Option {
	return func(s *Session) { s.checker = c }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a session over store and engine.
func New(store *sitestore.Store, engine hashengine.Engine, opts ...Option) *Session {
	s := &Session{
		store:  store,
		engine: engine,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying store.
func (s *Session) Store() *sitestore.Store {
	return s.store
}

// SetMasterKey trims raw, keeps it as the master key and checks it against
// known breaches.
func (s *Session) SetMasterKey(ctx context.Context, raw string) breach.Result {
	key := strings.TrimSpace(raw)
	s.mu.Lock()
	s.masterKey = key
	s.masterStatus = breach.Result{}
	s.mu.Unlock()

	if key == "" {
		return breach.Result{}
	}
	res := s.check(ctx, key)

	s.mu.Lock()
	if s.masterKey == key {
		s.masterStatus = res
	}
	s.mu.Unlock()
	return res
}

// ClearMasterKey forgets the master key.
func (s *Session) ClearMasterKey() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.masterKey = ""
	s.masterStatus = breach.Result{}
}

// HasMasterKey reports whether a master key is set.
func (s *Session) HasMasterKey() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.masterKey != ""
}

// MasterKeyStatus returns the breach result of the current master key.
func (s *Session) MasterKeyStatus() breach.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.masterStatus
}

// Site looks up the saved settings for tag, or the defaults.
func (s *Session) Site(tag string) SiteView {
	tag = strings.TrimSpace(tag)
	view := SiteView{Tag: tag, Settings: DefaultSettings()}
	r, ok := s.store.Get(tag)
	if !ok {
		return view
	}
	view.Saved = true
	view.Settings = SettingsFromRecord(r)
	view.Customized = s.store.Schema().Customized(r)
	if ms := r.Updated(); ms != 0 {
		view.Updated = time.UnixMilli(ms)
	}
	return view
}

// Generate derives the password for tag, saves the settings used and
// checks the result against known breaches. The tag is trimmed.
func (s *Session) Generate(ctx context.Context, tag string, settings hashengine.Settings) (*Generated, error) {
	tag, hash, err := s.derive(ctx, tag, settings)
	if err != nil {
		return nil, err
	}
	s.store.Set(tag, SettingsRecord(settings))

	return &Generated{Site: tag, Hash: hash, Breach: s.check(ctx, hash)}, nil
}

// Preview derives the password for tag without saving anything or
// checking it.
func (s *Session) Preview(ctx context.Context, tag string, settings hashengine.Settings) (string, error) {
	_, hash, err := s.derive(ctx, tag, settings)
	return hash, err
}

// GenerateSaved generates the password for a saved site with its stored
// settings.
func (s *Session) GenerateSaved(ctx context.Context, tag string) (*Generated, error) {
	view := s.Site(tag)
	if !view.Saved {
		return nil, fmt.Errorf("session: site %q is not saved", view.Tag)
	}
	return s.Generate(ctx, view.Tag, view.Settings)
}

// Inspect is GenerateSaved without touching the store.
func (s *Session) Inspect(ctx context.Context, tag string) (*Generated, error) {
	view := s.Site(tag)
	if !view.Saved {
		return nil, fmt.Errorf("session: site %q is not saved", view.Tag)
	}
	_, hash, err := s.derive(ctx, view.Tag, view.Settings)
	if err != nil {
		return nil, err
	}
	return &Generated{Site: view.Tag, Hash: hash, Breach: s.check(ctx, hash)}, nil
}

func (s *Session) derive(ctx context.Context, tag string, settings hashengine.Settings) (string, string, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "", "", ErrEmptySiteTag
	}

	s.mu.RLock()
	key := s.masterKey
	s.mu.RUnlock()
	if key == "" {
		return "", "", ErrNoMasterKey
	}
	if tag == key {
		return "", "", ErrSiteTagIsMasterKey
	}

	hash, err := s.engine.Generate(ctx, hashengine.Request{MasterKey: key, SiteTag: tag, Settings: settings})
	if err != nil {
		return "", "", fmt.Errorf("session: failed to generate password for %q: %w", tag, err)
	}
	return tag, hash, nil
}

// Delete removes the saved settings for tag.
func (s *Session) Delete(tag string) bool {
	return s.store.Delete(strings.TrimSpace(tag))
}

// Reset returns the default settings. Nothing is saved until the next
// Generate.
func (s *Session) Reset() hashengine.Settings {
	return DefaultSettings()
}

// DataList returns the saved site tags in display order.
func (s *Session) DataList() []string {
	return sitestore.DisplayKeys(s.store.Keys())
}

// Export writes every saved site as indented JSON.
func (s *Session) Export(w io.Writer) error {
	return s.store.ExportJSON(w)
}

// Import parses data and merges it into the store. Invalid data is
// rejected before anything is applied.
func (s *Session) Import(data []byte) (sitestore.ImportResult, error) {
	batch, err := sitestore.ParseBatch(bytes.TrimSpace(data))
	if err != nil {
		return sitestore.ImportResult{}, err
	}
	result := s.store.Import(batch)
	s.logger.Info("imported sites",
		zap.Int("added", len(result.Added)),
		zap.Int("replaced", len(result.Replaced)),
		zap.Int("skipped", len(result.Skipped)))
	return result, nil
}

// Audit regenerates the password of every saved site and grades it,
// running up to concurrency sites at once. Findings are in display order.
func (s *Session) Audit(ctx context.Context, concurrency int) ([]security.Finding, error) {
	s.mu.RLock()
	key := s.masterKey
	s.mu.RUnlock()
	if key == "" {
		return nil, ErrNoMasterKey
	}
	if concurrency <= 0 {
		concurrency = DefaultAuditConcurrency
	}

	sites := s.DataList()
	findings := make([]security.Finding, len(sites))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, site := range sites {
		g.Go(func() error {
			findings[i] = s.auditSite(ctx, key, site)
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return findings, nil
}

func (s *Session) auditSite(ctx context.Context, key, site string) security.Finding {
	f := security.Finding{Site: site}
	r, ok := s.store.Get(site)
	if !ok {
		f.Err = fmt.Errorf("site %q was removed during the audit", site)
		return f
	}
	hash, err := s.engine.Generate(ctx, hashengine.Request{MasterKey: key, SiteTag: site, Settings: SettingsFromRecord(r)})
	if err != nil {
		f.Err = err
		return f
	}
	f.Strength = security.GeneratedStrength(hash)
	f.Breach = s.check(ctx, hash)
	return f
}

func (s *Session) check(ctx context.Context, value string) breach.Result {
	if s.checker == nil {
		return breach.Result{}
	}
	return breach.Run(ctx, s.checker, value, s.logger)
}
