package internal

import (
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"testing"
)

// exerciseCounterStore checks that Add increments on top of whatever the
// store already holds.
func exerciseCounterStore(t *testing.T, store CounterStore) {
	t.Helper()
	ctx := context.Background()

	before, err := store.Load(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Add(ctx, Primary, 2, 3980))
	require.NoError(t, store.Add(ctx, Primary, 1, 1000))
	require.NoError(t, store.Add(ctx, Secondary, 1, 5))

	after, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counter{Requests: 3, Cents: 4980}, after[Primary].Sub(before[Primary]))
	assert.Equal(t, Counter{Requests: 1, Cents: 5}, after[Secondary].Sub(before[Secondary]))
}

func TestMemoryCounterStore(t *testing.T) {
	exerciseCounterStore(t, NewMemoryCounterStore())
}

func TestPgCounterStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	store, err := NewPgCounterStore(context.Background(), dsn)
	require.NoError(t, err)
	defer store.Close()
	exerciseCounterStore(t, store)
}

func TestRedisCounterStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	store, err := NewRedisCounterStore(context.Background(), addr)
	require.NoError(t, err)
	defer store.Close()
	exerciseCounterStore(t, store)
}

func TestParseRedisCounter(t *testing.T) {
	c, err := parseRedisCounter(map[string]string{"requests": "4", "cents": "1234"})
	require.NoError(t, err)
	assert.Equal(t, Counter{Requests: 4, Cents: 1234}, c)

	c, err = parseRedisCounter(map[string]string{})
	require.NoError(t, err)
	assert.True(t, c.IsZero())

	_, err = parseRedisCounter(map[string]string{"cents": "12.5"})
	assert.Error(t, err)
}

func TestOpenCounterStore_Memory(t *testing.T) {
	store, err := OpenCounterStore(context.Background(), Config{StoreDriver: StoreMemory})
	require.NoError(t, err)
	defer store.Close()
	assert.IsType(t, &MemoryCounterStore{}, store)

	_, err = OpenCounterStore(context.Background(), Config{StoreDriver: "cassandra"})
	assert.ErrorIs(t, err, ErrUnknownStore)
}
