package cache

import (
	"testing"
	"time"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemory(time.Minute)
	defer c.Stop()

	c.Set("key", "value")

	got, ok := c.Get("key")
	if !ok {
		t.Fatal("Get() should find a freshly set key")
	}
	if got != "value" {
		t.Errorf("Get() = %v, want value", got)
	}
}

func TestMemoryCache_Miss(t *testing.T) {
	c := NewMemory(time.Minute)
	defer c.Stop()

	if _, ok := c.Get("absent"); ok {
		t.Error("Get() should miss for an absent key")
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemory(20 * time.Millisecond)
	defer c.Stop()

	c.Set("key", "value")
	time.Sleep(30 * time.Millisecond)

	if _, ok := c.Get("key"); ok {
		t.Error("Get() should miss after TTL has passed")
	}
}

func TestMemoryCache_Delete(t *testing.T) {
	c := NewMemory(time.Minute)
	defer c.Stop()

	c.Set("key", "value")
	c.Delete("key")

	if _, ok := c.Get("key"); ok {
		t.Error("Get() should miss after Delete()")
	}
}
