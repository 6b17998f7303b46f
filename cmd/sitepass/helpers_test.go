package main

import (
	"testing"
	"time"

	"github.com/forest6511/sitepass/pkg/clock"
	"github.com/forest6511/sitepass/pkg/hashengine"
	"github.com/forest6511/sitepass/pkg/persist"
	"github.com/forest6511/sitepass/pkg/session"
	"github.com/forest6511/sitepass/pkg/sitestore"
)

var testStart = time.UnixMilli(1700000000000)

// testSession creates a session over an in-memory store with cheap
// derivation parameters.
func testSession(t *testing.T) *session.Session {
	t.Helper()
	view := persist.NewMemory().View()
	store := sitestore.New(session.NewSchema(), view,
		sitestore.WithClock(clock.NewFake(testStart)), sitestore.WithNotifier(view))
	t.Cleanup(store.Close)
	engine := hashengine.NewArgon2Engine(hashengine.Params{Time: 1, Memory: 64, Threads: 1})
	return session.New(store, engine)
}
