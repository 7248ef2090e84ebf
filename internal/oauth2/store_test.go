package oauth2

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"restify/internal/crypto"
)

func testState() *State {
	return NewState("access", "refresh", time.Hour, "Bearer", time.Now(), []string{"a", "b"})
}

// assertStoreRoundTrip exercises the behavior every Store shares.
func assertStoreRoundTrip(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := store.TryRestore(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "new store should be empty")

	original := testState()
	require.NoError(t, store.Store(ctx, original))

	restored, ok, err := store.TryRestore(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, original.AccessToken, restored.AccessToken)
	assert.Equal(t, original.RefreshToken, restored.RefreshToken)
	assert.Equal(t, original.TokenType, restored.TokenType)
	assert.Equal(t, original.ExpiresIn, restored.ExpiresIn)
	assert.True(t, original.ExpiresAt.Equal(restored.ExpiresAt))
	assert.Equal(t, original.Scopes, restored.Scopes)

	replacement := NewState("second", "", time.Minute, "Bearer", time.Now(), nil)
	require.NoError(t, store.Store(ctx, replacement))
	restored, ok, err = store.TryRestore(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", restored.AccessToken)
	assert.NotNil(t, restored.Scopes)

	require.NoError(t, store.Clear(ctx))
	_, ok, err = store.TryRestore(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Clear(ctx), "clearing an empty store should succeed")
}

func TestNullStore(t *testing.T) {
	ctx := context.Background()
	store := NullStore{}

	require.NoError(t, store.Store(ctx, testState()))
	state, ok, err := store.TryRestore(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, state)
	assert.NoError(t, store.Clear(ctx))
}

func TestMemoryStore(t *testing.T) {
	assertStoreRoundTrip(t, NewMemoryStore())
}

func TestMemoryStore_KeepsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	state := testState()
	require.NoError(t, store.Store(ctx, state))
	state.Dispose()

	restored, ok, err := store.TryRestore(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "access", restored.AccessToken)

	restored.Dispose()
	again, _, _ := store.TryRestore(ctx)
	assert.Equal(t, "access", again.AccessToken)
}

func newTestSealer(t *testing.T, key string) *crypto.Sealer {
	t.Helper()
	sealer, err := crypto.NewSealer(key)
	require.NoError(t, err)
	return sealer
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "default.state")
	store, err := NewFileStore(path, newTestSealer(t, "test-key"))
	require.NoError(t, err)

	assertStoreRoundTrip(t, store)
}

func TestFileStore_FileIsSealedAndPrivate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.state")
	store, err := NewFileStore(path, newTestSealer(t, "test-key"))
	require.NoError(t, err)

	require.NoError(t, store.Store(context.Background(), testState()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "access")
	assert.NotContains(t, string(data), "refresh")
}

func TestFileStore_UnreadableFileIsTreatedAsEmpty(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, path string)
	}{
		{
			name: "corrupt content",
			setup: func(t *testing.T, path string) {
				require.NoError(t, os.WriteFile(path, []byte("not sealed"), 0600))
			},
		},
		{
			name: "sealed with another key",
			setup: func(t *testing.T, path string) {
				other, err := NewFileStore(path, newTestSealer(t, "other-key"))
				require.NoError(t, err)
				require.NoError(t, other.Store(context.Background(), testState()))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "default.state")
			tt.setup(t, path)

			store, err := NewFileStore(path, newTestSealer(t, "test-key"))
			require.NoError(t, err)

			state, ok, err := store.TryRestore(context.Background())
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Nil(t, state)
		})
	}
}

func TestNewFileStore_Validation(t *testing.T) {
	_, err := NewFileStore("", newTestSealer(t, "k"))
	assert.Error(t, err)

	_, err = NewFileStore("state", nil)
	assert.Error(t, err)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	server := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })
	return server, client
}

func TestRedisStore(t *testing.T) {
	_, client := newTestRedis(t)
	store, err := NewRedisStore(client, "default", newTestSealer(t, "test-key"))
	require.NoError(t, err)

	assertStoreRoundTrip(t, store)
}

func TestRedisStore_ValueIsSealed(t *testing.T) {
	server, client := newTestRedis(t)
	store, err := NewRedisStore(client, "default", newTestSealer(t, "test-key"))
	require.NoError(t, err)

	require.NoError(t, store.Store(context.Background(), testState()))

	raw, err := server.Get(store.Key())
	require.NoError(t, err)
	assert.NotContains(t, raw, "access")
	assert.NotContains(t, raw, "refresh")

	other, err := NewRedisStore(client, "default", newTestSealer(t, "other-key"))
	require.NoError(t, err)
	_, _, err = other.TryRestore(context.Background())
	assert.Error(t, err)
}

func TestNewRedisStore_Validation(t *testing.T) {
	_, client := newTestRedis(t)

	_, err := NewRedisStore(nil, "default", newTestSealer(t, "k"))
	assert.Error(t, err)
	_, err = NewRedisStore(client, "", newTestSealer(t, "k"))
	assert.Error(t, err)
	_, err = NewRedisStore(client, "default", nil)
	assert.Error(t, err)
}

func TestRedisStore_ContextsAreIsolated(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)

	first, err := NewRedisStore(client, "first", newTestSealer(t, "test-key"))
	require.NoError(t, err)
	second, err := NewRedisStore(client, "second", newTestSealer(t, "test-key"))
	require.NoError(t, err)

	require.NoError(t, first.Store(ctx, testState()))

	_, ok, err := second.TryRestore(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, RedisKeyPrefix+"first", first.Key())
}

func TestRedisStore_Expiration(t *testing.T) {
	ctx := context.Background()
	server, client := newTestRedis(t)
	store, err := NewRedisStore(client, "default", newTestSealer(t, "test-key"))
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Store(ctx, NewState("a", "r", time.Hour, "Bearer", now, nil)))
	assert.Equal(t, 25*time.Hour, server.TTL(store.Key()))

	require.NoError(t, store.Store(ctx, NewState("a", "r", 90*24*time.Hour, "Bearer", now, nil)))
	assert.Equal(t, 30*24*time.Hour, server.TTL(store.Key()), "TTL is capped")

	require.NoError(t, store.Store(ctx, NewState("a", "r", time.Hour, "Bearer", now.Add(-48*time.Hour), nil)))
	assert.Equal(t, 30*24*time.Hour, server.TTL(store.Key()), "long expired state falls back to the default TTL")

	server.FastForward(31 * 24 * time.Hour)
	_, ok, err := store.TryRestore(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_CorruptValue(t *testing.T) {
	server, client := newTestRedis(t)
	store, err := NewRedisStore(client, "default", newTestSealer(t, "test-key"))
	require.NoError(t, err)

	require.NoError(t, server.Set(store.Key(), "{"))
	_, _, err = store.TryRestore(context.Background())
	assert.Error(t, err)
}

func TestRedisStore_ConnectionFailure(t *testing.T) {
	server, client := newTestRedis(t)
	store, err := NewRedisStore(client, "default", newTestSealer(t, "test-key"))
	require.NoError(t, err)

	server.Close()
	_, _, err = store.TryRestore(context.Background())
	assert.Error(t, err)
}

func newTestDB(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()

	db, err := OpenDB(ctx, DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLStore(ctx, db, DialectSQLite, "default", newTestSealer(t, "test-key"))
	require.NoError(t, err)
	return store
}

func TestSQLStore(t *testing.T) {
	assertStoreRoundTrip(t, newTestDB(t))
}

func TestSQLStore_ContextsShareTable(t *testing.T) {
	ctx := context.Background()
	first := newTestDB(t)

	second, err := NewSQLStore(ctx, first.db, DialectSQLite, "second", first.sealer)
	require.NoError(t, err)

	require.NoError(t, first.Store(ctx, testState()))
	_, ok, err := second.TryRestore(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, second.Store(ctx, NewState("other", "", time.Hour, "Bearer", time.Now(), nil)))
	restored, ok, err := first.TryRestore(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "access", restored.AccessToken)
}

func TestSQLStore_RowIsSealed(t *testing.T) {
	ctx := context.Background()
	store := newTestDB(t)

	require.NoError(t, store.Store(ctx, testState()))

	var raw string
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT state FROM authorization_states WHERE name = ?`, "default").Scan(&raw))
	assert.NotEmpty(t, raw)
	assert.NotContains(t, raw, "access")
	assert.NotContains(t, raw, "refresh")
}

func TestNewSQLStore_RequiresSealer(t *testing.T) {
	store := newTestDB(t)
	_, err := NewSQLStore(context.Background(), store.db, DialectSQLite, "second", nil)
	assert.Error(t, err)
}

func TestSQLStore_Rebind(t *testing.T) {
	postgres := &SQLStore{dialect: DialectPostgres}
	sqlite := &SQLStore{dialect: DialectSQLite}

	query := `INSERT INTO t (a, b) VALUES (?, ?)`
	assert.Equal(t, `INSERT INTO t (a, b) VALUES ($1, $2)`, postgres.rebind(query))
	assert.Equal(t, query, sqlite.rebind(query))
}

func TestOpenDB_UnknownDialect(t *testing.T) {
	_, err := OpenDB(context.Background(), Dialect("mysql"), "dsn")
	assert.Error(t, err)
}
