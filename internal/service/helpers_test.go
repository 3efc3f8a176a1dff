package service_test

import (
	"testing"
	"time"

	"github.com/riftbridge/custom-match-core/internal/gateway"
	"github.com/riftbridge/custom-match-core/internal/kv"
	"github.com/riftbridge/custom-match-core/internal/repository"
	repoPostgres "github.com/riftbridge/custom-match-core/internal/repository/postgres"
	"github.com/riftbridge/custom-match-core/internal/session"
	"github.com/riftbridge/custom-match-core/internal/testutil"
)

// testEnv is the shared scaffolding for service tests: a real database, an
// in-memory KV store and a broadcaster with no live sessions, so every send
// lands in the outbox where tests can inspect it.
type testEnv struct {
	DB          *testutil.TestDB
	Repos       *repository.Repositories
	Store       kv.Store
	Registry    *session.Registry
	Outbox      *session.Outbox
	Hub         *gateway.Hub
	Broadcaster *gateway.Broadcaster
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testDB := testutil.NewTestDB(t)
	store := kv.NewMemory()

	var hub *gateway.Hub
	registry := session.NewRegistry(store, session.LiveFunc(func(id string) bool {
		return hub != nil && hub.Has(id)
	}), time.Minute)
	hub = gateway.NewHub(registry)
	outbox := session.NewOutbox(store, 100)

	return &testEnv{
		DB:          testDB,
		Repos:       repoPostgres.NewRepositories(testDB.DB),
		Store:       store,
		Registry:    registry,
		Outbox:      outbox,
		Hub:         hub,
		Broadcaster: gateway.NewBroadcaster(hub, registry, outbox),
	}
}
