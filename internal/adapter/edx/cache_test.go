package edx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_PutAndGet(t *testing.T) {
	t.Parallel()
	cache, err := NewCache(t.TempDir(), time.Minute)
	require.NoError(t, err)

	_, ok := cache.Get("https://example.test/api?x=1")
	assert.False(t, ok, "miss before first put")

	cache.Put("https://example.test/api?x=1", []byte(`{"a":1}`))
	body, ok := cache.Get("https://example.test/api?x=1")
	require.True(t, ok)
	assert.Equal(t, []byte(`{"a":1}`), body)

	// Different key, different entry.
	_, ok = cache.Get("https://example.test/api?x=2")
	assert.False(t, ok)
}

func TestCache_TTLExpiry(t *testing.T) {
	t.Parallel()
	cache, err := NewCache(t.TempDir(), time.Nanosecond)
	require.NoError(t, err)

	cache.Put("key", []byte("v"))
	time.Sleep(10 * time.Millisecond)

	_, ok := cache.Get("key")
	assert.False(t, ok, "stale entries are misses")
}

func TestCache_ZeroTTLNeverExpires(t *testing.T) {
	t.Parallel()
	cache, err := NewCache(t.TempDir(), 0)
	require.NoError(t, err)

	cache.Put("key", []byte("v"))
	body, ok := cache.Get("key")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), body)
}
