package watchparty

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/marquee/pkg/cache"
	"github.com/tokmz/marquee/pkg/logger"
	"github.com/tokmz/marquee/pkg/orm"
	"github.com/tokmz/marquee/pkg/socket"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := orm.DefaultConfig()
	cfg.DSN = "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := orm.New(cfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = orm.Close(db) })

	s := NewStore(db)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func newTestCache(t *testing.T) cache.Cache {
	t.Helper()
	c, err := cache.NewWithOptions(cache.WithMemory(cache.DefaultMemoryConfig()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p := &WatchParty{ID: uuid.NewString(), HostID: "host", Title: "Heat", MediaID: "m-1"}
	require.NoError(t, s.Create(ctx, p))

	got, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Heat", got.Title)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrPartyNotFound)

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, s.Touch(ctx, p.ID, old))
	ids, err := s.Stale(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{p.ID}, ids)

	n, err := s.Delete(ctx, ids...)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.Delete(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExpireIdleSkipsActiveParties(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := newTestCache(t)
	ctrl := New(socket.NewRegistry(), store, c, DefaultConfig(), nil)

	idle := &WatchParty{ID: uuid.NewString(), HostID: "h", Title: "a", MediaID: "m"}
	busy := &WatchParty{ID: uuid.NewString(), HostID: "h", Title: "b", MediaID: "m"}
	fresh := &WatchParty{ID: uuid.NewString(), HostID: "h", Title: "c", MediaID: "m"}
	for _, p := range []*WatchParty{idle, busy, fresh} {
		require.NoError(t, store.Create(ctx, p))
	}
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Touch(ctx, idle.ID, old))
	require.NoError(t, store.Touch(ctx, busy.ID, old))
	require.NoError(t, c.Set(ctx, stateKey(idle.ID), Playback{Position: 10}, time.Hour))

	ctrl.mu.Lock()
	ctrl.members[busy.ID] = []member{{connID: "c1", userID: "u1"}}
	ctrl.mu.Unlock()

	n, err := ctrl.ExpireIdle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.Get(ctx, idle.ID)
	assert.ErrorIs(t, err, ErrPartyNotFound)
	_, err = store.Get(ctx, busy.ID)
	assert.NoError(t, err)
	_, err = store.Get(ctx, fresh.ID)
	assert.NoError(t, err)
	assert.Equal(t, Playback{}, ctrl.State(ctx, idle.ID))
}
