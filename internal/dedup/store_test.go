package dedup

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/chatrelay/internal/config"
	"github.com/mattjoyce/chatrelay/internal/storage"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// storeFactory returns a store whose clock is driven by the given fakeClock.
type storeFactory func(t *testing.T, clock *fakeClock) Store

func runStoreSuite(t *testing.T, newStore storeFactory) {
	ctx := context.Background()

	t.Run("first claim wins", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		ok, err := s.Claim(ctx, "msg-1", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Claim(ctx, "msg-1", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok, "in-flight claim blocks a second one")

		ok, err = s.Claim(ctx, "msg-2", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "keys are independent")
	})

	t.Run("processed blocks reclaim until retention ends", func(t *testing.T) {
		clock := newFakeClock()
		s := newStore(t, clock)

		ok, err := s.Claim(ctx, "msg-1", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, s.Complete(ctx, "msg-1", time.Hour))

		clock.Advance(30 * time.Minute)
		ok, err = s.Claim(ctx, "msg-1", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		clock.Advance(31 * time.Minute)
		ok, err = s.Claim(ctx, "msg-1", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "expired record can be claimed again")
	})

	t.Run("expired lease can be taken over", func(t *testing.T) {
		clock := newFakeClock()
		s := newStore(t, clock)

		ok, err := s.Claim(ctx, "msg-1", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		clock.Advance(2 * time.Minute)
		ok, err = s.Claim(ctx, "msg-1", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("concurrent claims have one winner", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.Claim(ctx, "msg-race", time.Minute)
				if err == nil && ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("prune removes only expired records", func(t *testing.T) {
		clock := newFakeClock()
		s := newStore(t, clock)

		_, err := s.Claim(ctx, "short", time.Minute)
		require.NoError(t, err)
		_, err = s.Claim(ctx, "long", time.Minute)
		require.NoError(t, err)
		require.NoError(t, s.Complete(ctx, "long", time.Hour))

		clock.Advance(5 * time.Minute)
		n, err := s.Prune(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		ok, err := s.Claim(ctx, "long", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("closed store", func(t *testing.T) {
		s := newStore(t, newFakeClock())
		require.NoError(t, s.Close())
		_, err := s.Claim(ctx, "x", time.Minute)
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, s.Complete(ctx, "x", time.Minute), ErrClosed)
		assert.NoError(t, s.Close(), "double close is harmless")
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T, clock *fakeClock) Store {
		s := NewMemoryStore()
		s.now = clock.Now
		return s
	})
}

func TestMemoryStoreState(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := NewMemoryStore()
	s.now = clock.Now

	_, ok := s.State("m")
	assert.False(t, ok)

	_, _ = s.Claim(ctx, "m", time.Minute)
	st, ok := s.State("m")
	assert.True(t, ok)
	assert.Equal(t, StateProcessing, st)

	require.NoError(t, s.Complete(ctx, "m", time.Hour))
	st, _ = s.State("m")
	assert.Equal(t, StateProcessed, st)
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T, clock *fakeClock) Store {
		db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "dedup.db"))
		require.NoError(t, err)
		s := NewSQLStore(db, DialectSQLite)
		s.now = clock.Now
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteStoreState(t *testing.T) {
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "dedup.db"))
	require.NoError(t, err)
	s := NewSQLStore(db, DialectSQLite)
	t.Cleanup(func() { _ = s.Close() })

	_, ok, err := s.State(ctx, "m")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Claim(ctx, "m", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, "m", time.Hour))

	st, ok, err := s.State(ctx, "m")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StateProcessed, st)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dedup.db")

	db, err := storage.OpenSQLite(ctx, path)
	require.NoError(t, err)
	s := NewSQLStore(db, DialectSQLite)
	_, err = s.Claim(ctx, "m", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, "m", time.Hour))
	require.NoError(t, s.Close())

	db, err = storage.OpenSQLite(ctx, path)
	require.NoError(t, err)
	s = NewSQLStore(db, DialectSQLite)
	t.Cleanup(func() { _ = s.Close() })

	ok, err := s.Claim(ctx, "m", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "processed record survives a restart")
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("CHATRELAY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CHATRELAY_TEST_POSTGRES_DSN not set")
	}
	runStoreSuite(t, func(t *testing.T, clock *fakeClock) Store {
		db, err := storage.OpenPostgres(context.Background(), dsn)
		require.NoError(t, err)
		_, err = db.Exec(`TRUNCATE callback_dedup`)
		require.NoError(t, err)
		s := NewSQLStore(db, DialectPostgres)
		s.now = clock.Now
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("CHATRELAY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CHATRELAY_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	prefix := "chatrelay:test:" + t.Name() + ":"

	s, err := NewRedisStore(ctx, RedisOptions{Addr: addr, Prefix: prefix})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	key := time.Now().Format(time.RFC3339Nano)
	ok, err := s.Claim(ctx, key, 200*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Claim(ctx, key, 200*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Complete(ctx, key, time.Minute))
	st, found, err := s.State(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, StateProcessed, st)

	other := key + "-lease"
	ok, err = s.Claim(ctx, other, 100*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	time.Sleep(250 * time.Millisecond)
	ok, err = s.Claim(ctx, other, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease can be taken over")
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "a = ? AND b = ?", rebind(DialectSQLite, "a = ? AND b = ?"))
	assert.Equal(t, "a = $1 AND b = $2", rebind(DialectPostgres, "a = ? AND b = ?"))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.DedupConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
	_ = s.Close()

	s, err = Open(ctx, config.DedupConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "d.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, s)
	_ = s.Close()

	_, err = Open(ctx, config.DedupConfig{Driver: "etcd"})
	assert.Error(t, err)
}

type countingStore struct {
	*MemoryStore
	prunes atomic.Int32
}

func (c *countingStore) Prune(ctx context.Context) (int64, error) {
	c.prunes.Add(1)
	return 0, nil
}

func TestJanitorPrunesUntilStopped(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	j := NewJanitor(store, 10*time.Millisecond, nil)
	j.Start(context.Background())

	assert.Eventually(t, func() bool { return store.prunes.Load() >= 2 }, time.Second, 5*time.Millisecond)
	j.Stop()
	j.Stop()

	after := store.prunes.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, store.prunes.Load(), "no prunes after Stop")
}
