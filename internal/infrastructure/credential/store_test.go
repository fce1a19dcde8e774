package credential_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/campus/portal/internal/infrastructure/config"
	"github.com/campus/portal/internal/infrastructure/credential"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// exerciseStore runs the get/set/clear contract against any Store.
func exerciseStore(t *testing.T, store credential.Store) {
	t.Helper()
	ctx := context.Background()

	pair, err := store.Get(ctx)
	require.NoError(t, err)
	assert.True(t, pair.IsZero())

	require.NoError(t, store.Set(ctx, credential.Pair{Access: "access-1", Refresh: "refresh-1"}))
	pair, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-1", pair.Access)
	assert.Equal(t, "refresh-1", pair.Refresh)

	require.NoError(t, store.Set(ctx, credential.Pair{Access: "access-2"}))
	pair, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-2", pair.Access)
	assert.Empty(t, pair.Refresh)

	require.NoError(t, store.Clear(ctx))
	pair, err = store.Get(ctx)
	require.NoError(t, err)
	assert.True(t, pair.IsZero())
	assert.Empty(t, pair.Refresh)

	// Clearing twice is fine
	require.NoError(t, store.Clear(ctx))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, credential.NewMemoryStore())
}

func TestMemoryStore_Seed(t *testing.T) {
	store := credential.NewMemoryStore(credential.Pair{Access: "seeded"})
	pair, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "seeded", pair.Access)
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := credential.NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.Set(ctx, credential.Pair{Access: "a"})
		}()
		go func() {
			defer wg.Done()
			_, _ = store.Get(ctx)
			_ = store.Clear(ctx)
		}()
	}
	wg.Wait()
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	store, err := credential.NewFileStore(path)
	require.NoError(t, err)

	exerciseStore(t, store)
}

func TestFileStore_Permissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store, err := credential.NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Set(context.Background(), credential.Pair{Access: "tok"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStore_Encrypted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store, err := credential.NewFileStore(path, credential.WithPassphrase("s3cret"))
	require.NoError(t, err)

	exerciseStore(t, store)

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, credential.Pair{Access: "plain-access-token", Refresh: "plain-refresh"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "plain-access-token")

	wrong, err := credential.NewFileStore(path, credential.WithPassphrase("guess"))
	require.NoError(t, err)
	_, err = wrong.Get(ctx)
	assert.ErrorIs(t, err, credential.ErrDecrypt)

	unencrypted, err := credential.NewFileStore(path)
	require.NoError(t, err)
	pair, err := unencrypted.Get(ctx)
	require.NoError(t, err)
	assert.True(t, pair.IsZero(), "sealed file must not decode as a plain pair")
}

func TestFileStore_RequiresPath(t *testing.T) {
	_, err := credential.NewFileStore("")
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()

	store, closeFn, err := credential.NewFromConfig(ctx, config.SessionConfig{Store: "memory"}, config.RedisConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, closeFn())
	assert.IsType(t, &credential.MemoryStore{}, store)

	path := filepath.Join(t.TempDir(), "creds.json")
	store, _, err = credential.NewFromConfig(ctx, config.SessionConfig{Store: "file", FilePath: path}, config.RedisConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &credential.FileStore{}, store)

	_, _, err = credential.NewFromConfig(ctx, config.SessionConfig{Store: "cookie"}, config.RedisConfig{}, nil)
	assert.Error(t, err)
}

// redisAddr returns PORTAL_TEST_REDIS_ADDR when set, otherwise starts a
// throwaway Redis container. Skipped in -short mode.
func redisAddr(t *testing.T) string {
	t.Helper()
	if addr := os.Getenv("PORTAL_TEST_REDIS_ADDR"); addr != "" {
		return addr
	}
	if testing.Short() {
		t.Skip("skipping Redis container in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcredis.Run(ctx,
		"redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start Redis container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err, "Failed to get connection string")
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)
	return opts.Addr
}

func TestRedisStore(t *testing.T) {
	addr := redisAddr(t)
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	store := credential.NewRedisStoreWithClient(client, "portal:test:", t.Name(), time.Minute)
	exerciseStore(t, store)

	require.NoError(t, store.Set(ctx, credential.Pair{Access: "a", Refresh: "r"}))
	ttl, err := client.TTL(ctx, "portal:test:"+t.Name()).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)

	other := credential.NewRedisStoreWithClient(client, "portal:test:", t.Name()+"-other", time.Minute)
	pair, err := other.Get(ctx)
	require.NoError(t, err)
	assert.True(t, pair.IsZero(), "profiles do not share keys")

	require.NoError(t, store.Clear(ctx))
	n, err := client.Exists(ctx, "portal:test:"+t.Name()).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewFromConfig_Redis(t *testing.T) {
	addr := redisAddr(t)
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	ctx := context.Background()
	store, closeFn, err := credential.NewFromConfig(ctx,
		config.SessionConfig{Store: "redis", TTL: time.Hour},
		config.RedisConfig{Host: host, Port: port, KeyPrefix: "portal:factory:"},
		nil,
	)
	require.NoError(t, err)
	defer func() { assert.NoError(t, closeFn()) }()

	exerciseStore(t, store)
}
