package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/schemetrust/internal/model"
)

func TestKey_Deterministic(t *testing.T) {
	a := Key("india_code", "https://www.indiacode.nic.in/search?query=x")
	b := Key("india_code", "https://www.indiacode.nic.in/search?query=x")
	c := Key("india_codehttps://www.indiacode.nic.in/search?query=x")

	if a != b {
		t.Error("expected identical keys for identical parts")
	}
	if a == c {
		t.Error("expected part boundaries to affect the key")
	}
	if len(a) != len("schemetrust:v1:")+64 {
		t.Errorf("unexpected key length %d", len(a))
	}
}

func exerciseCache(t *testing.T, c Cache) {
	t.Helper()
	k, a := Key("test", "k"), Key("test", "a")

	if _, ok := c.Get(Key("test", "missing")); ok {
		t.Error("expected miss for unknown key")
	}
	if err := c.Set(k, []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got, ok := c.Get(k); !ok || string(got) != "v" {
		t.Errorf("expected hit with v, got %q %v", got, ok)
	}
	if err := c.Delete(k); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := c.Get(k); ok {
		t.Error("expected miss after delete")
	}
	_ = c.Set(a, []byte("1"), time.Minute)
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok := c.Get(a); ok {
		t.Error("expected miss after clear")
	}
}

func TestMemoryCache(t *testing.T) {
	exerciseCache(t, NewMemoryCache(time.Minute, time.Minute))
}

func TestMemoryCache_StoresCopy(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	buf := []byte("abc")
	_ = c.Set("k", buf, 0)
	buf[0] = 'x'

	got, _ := c.Get("k")
	if string(got) != "abc" {
		t.Errorf("expected cached copy to be unaffected, got %q", got)
	}
}

func TestDiskCache(t *testing.T) {
	exerciseCache(t, NewDiskCache(filepath.Join(t.TempDir(), "cache"), time.Minute))
}

func TestDiskCache_Expiry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Minute)

	if err := c.Set(Key("x"), []byte("v"), time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get(Key("x")); ok {
		t.Error("expected expired entry to miss")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected expired file to be removed, found %d files", len(entries))
	}
}

func TestLayeredCache_PromotesDurableHits(t *testing.T) {
	fast := NewMemoryCache(time.Minute, time.Minute)
	durable := NewDiskCache(t.TempDir(), time.Minute)
	c := NewLayeredCache(fast, durable)

	exerciseCache(t, c)

	_ = durable.Set("only-disk", []byte("d"), time.Minute)
	if got, ok := c.Get("only-disk"); !ok || string(got) != "d" {
		t.Fatalf("expected durable hit, got %q %v", got, ok)
	}
	if _, ok := fast.Get("only-disk"); !ok {
		t.Error("expected durable hit to be promoted to the fast layer")
	}
}

func TestNew_Backends(t *testing.T) {
	disabled, err := New(model.CacheConfig{Enabled: false})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := disabled.(Noop); !ok {
		t.Errorf("expected Noop for disabled cache, got %T", disabled)
	}

	layered, err := New(model.CacheConfig{Enabled: true, Backend: "layered", Dir: t.TempDir(), TTL: time.Minute})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := layered.(*LayeredCache); !ok {
		t.Errorf("expected *LayeredCache, got %T", layered)
	}

	if _, err := New(model.CacheConfig{Enabled: true, Backend: "memcached"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	c, err := NewRedisCache(addr, os.Getenv("REDIS_PASSWORD"), 0, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisCache failed: %v", err)
	}
	defer func() { _ = c.Close() }()

	exerciseCache(t, c)
}
