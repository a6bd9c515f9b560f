package generator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarin/chatrelay/internal/session"
)

func TestFingerprintDeterministic(t *testing.T) {
	history := []session.Turn{{Content: "a"}, {Content: "b"}}

	assert.Equal(t, fingerprint("hola", history), fingerprint("hola", history))
	assert.NotEqual(t, fingerprint("hola", history), fingerprint("adios", history))
	assert.NotEqual(t, fingerprint("hola", history), fingerprint("hola", history[:1]))
}

func TestFingerprintUsesOnlyLastThreeTurns(t *testing.T) {
	longer := []session.Turn{{Content: "x"}, {Content: "a"}, {Content: "b"}, {Content: "c"}}
	shifted := []session.Turn{{Content: "y"}, {Content: "a"}, {Content: "b"}, {Content: "c"}}

	assert.Equal(t, fingerprint("hola", longer), fingerprint("hola", shifted),
		"turns before the last three must not affect the key")
}

func TestCacheHitAndLazyExpiry(t *testing.T) {
	cache := newResponseCache(20 * time.Millisecond)
	cache.Put("k", "respuesta")

	got, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, "respuesta", got)

	time.Sleep(30 * time.Millisecond)
	_, ok = cache.Get("k")
	assert.False(t, ok, "expired entries must not be returned")
	assert.Equal(t, 0, cache.Len(), "expired entry removed on read")
}

func TestCacheMiss(t *testing.T) {
	cache := newResponseCache(time.Minute)
	_, ok := cache.Get("absent")
	assert.False(t, ok)
}

func TestCacheSweep(t *testing.T) {
	cache := newResponseCache(10 * time.Millisecond)
	cache.Put("a", "1")
	cache.Put("b", "2")
	time.Sleep(20 * time.Millisecond)
	cache.Put("c", "3")

	assert.Equal(t, 2, cache.Sweep())
	assert.Equal(t, 1, cache.Len())
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	cache := newResponseCache(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		cache.RunSweeper(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
