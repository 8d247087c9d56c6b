package registry

import (
	"context"
	"testing"
	"time"

	"modelcore/internal/provider"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryCache_TTL(t *testing.T) {
	cache := newMemoryCache(20 * time.Millisecond)
	info := provider.ModelInfo{Provider: provider.OpenAI, ModelID: "m", OutputCap: 42}

	cache.Set(context.Background(), "k", info)
	got, ok := cache.Get(context.Background(), "k")
	if !ok || got.OutputCap != 42 {
		t.Fatalf("cache miss after set: %+v ok=%v", got, ok)
	}

	time.Sleep(30 * time.Millisecond)
	if _, ok := cache.Get(context.Background(), "k"); ok {
		t.Fatal("entry must expire after TTL")
	}
}

func TestRedisCache_RoundTrip(t *testing.T) {
	server := miniredis.RunT(t)
	cache := newRedisCache(server.Addr(), time.Minute)
	info := provider.ModelInfo{Provider: provider.Google, ModelID: "gemini-2.0-flash", InputCap: 1048576, OutputCap: 8192}

	cache.Set(context.Background(), "k", info)
	got, ok := cache.Get(context.Background(), "k")
	if !ok || got != info {
		t.Fatalf("round trip mismatch: %+v ok=%v", got, ok)
	}
}

func TestRedisCache_MissAndExpiry(t *testing.T) {
	server := miniredis.RunT(t)
	cache := newRedisCache(server.Addr(), 50*time.Millisecond)

	if _, ok := cache.Get(context.Background(), "absent"); ok {
		t.Fatal("expected miss for absent key")
	}

	cache.Set(context.Background(), "k", provider.ModelInfo{ModelID: "m"})
	server.FastForward(time.Second)
	if _, ok := cache.Get(context.Background(), "k"); ok {
		t.Fatal("entry must expire in redis")
	}
}

func TestRedisCache_DownRedisIsAMiss(t *testing.T) {
	server := miniredis.RunT(t)
	cache := newRedisCache(server.Addr(), time.Minute)
	cache.Set(context.Background(), "k", provider.ModelInfo{ModelID: "m"})
	server.Close()

	if _, ok := cache.Get(context.Background(), "k"); ok {
		t.Fatal("a down redis must read as a miss, not an error")
	}
}
