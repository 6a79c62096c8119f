package embedding

import "testing"

func TestCacheGetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	if _, ok := c.Get("missing"); ok {
		t.Error("empty cache should miss")
	}
	c.Set("a", []float32{1})
	got, ok := c.Get("a")
	if !ok || len(got) != 1 || got[0] != 1 {
		t.Errorf("got %v (ok=%t)", got, ok)
	}
}

func TestCacheEvictsOldest(t *testing.T) {
	c := NewEmbeddingCache(2)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	c.Set("c", []float32{3})
	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry should be evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("b should survive")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("c should survive")
	}
}

func TestCacheGetRefreshesRecency(t *testing.T) {
	c := NewEmbeddingCache(2)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	c.Get("a") // a is now most recent
	c.Set("c", []float32{3})
	if _, ok := c.Get("a"); !ok {
		t.Error("recently used entry was evicted")
	}
	if _, ok := c.Get("b"); ok {
		t.Error("least recently used entry should be evicted")
	}
}

func TestCacheSetOverwrites(t *testing.T) {
	c := NewEmbeddingCache(2)
	c.Set("a", []float32{1})
	c.Set("a", []float32{9})
	got, ok := c.Get("a")
	if !ok || got[0] != 9 {
		t.Errorf("got %v (ok=%t)", got, ok)
	}
}
