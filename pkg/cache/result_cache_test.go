package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Construction and keys
// =============================================================================

func TestNew(t *testing.T) {
	t.Run("valid parameters", func(t *testing.T) {
		c := New(100, 5*time.Minute)
		if c.maxSize != 100 {
			t.Errorf("maxSize = %d, want 100", c.maxSize)
		}
		if c.ttl != 5*time.Minute {
			t.Errorf("ttl = %v, want 5m", c.ttl)
		}
		if !c.enabled {
			t.Error("cache should be enabled by default")
		}
	})

	t.Run("non-positive maxSize uses default", func(t *testing.T) {
		for _, size := range []int{0, -10} {
			if c := New(size, 0); c.maxSize != DefaultMaxSize {
				t.Errorf("New(%d).maxSize = %d, want %d", size, c.maxSize, DefaultMaxSize)
			}
		}
	})
}

func TestKey(t *testing.T) {
	if Key("buscar", "apple", "Procesador") != Key("buscar", "apple", "Procesador") {
		t.Error("same parts produced different keys")
	}
	if Key("buscar", "apple", "Procesador") == Key("buscar", "apple", "GPU") {
		t.Error("different parts produced the same key")
	}
	if Key("ab", "c") == Key("a", "bc") {
		t.Error("part boundaries are not part of the key")
	}
}

// =============================================================================
// Get / Put
// =============================================================================

func TestResultCache_GetPut(t *testing.T) {
	c := New(10, 0)

	if _, ok := c.Get(1); ok {
		t.Fatal("empty cache returned a hit")
	}

	c.Put(1, "uno")
	v, ok := c.Get(1)
	if !ok || v != "uno" {
		t.Fatalf("Get(1) = %v, %v; want uno, true", v, ok)
	}

	c.Put(1, "one")
	if v, _ := c.Get(1); v != "one" {
		t.Errorf("updated value = %v, want one", v)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestResultCache_LRUEviction(t *testing.T) {
	c := New(3, 0)
	c.Put(1, 1)
	c.Put(2, 2)
	c.Put(3, 3)

	// touch 1 so 2 becomes the oldest
	c.Get(1)
	c.Put(4, 4)

	if _, ok := c.Get(2); ok {
		t.Error("least recently used entry was not evicted")
	}
	for _, k := range []uint64{1, 3, 4} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("entry %d evicted unexpectedly", k)
		}
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
}

func TestResultCache_TTL(t *testing.T) {
	c := New(10, time.Minute)
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Put(1, "x")
	now = now.Add(30 * time.Second)
	if _, ok := c.Get(1); !ok {
		t.Fatal("entry expired too early")
	}

	now = now.Add(31 * time.Second)
	if _, ok := c.Get(1); ok {
		t.Fatal("entry should have expired")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not removed, Len() = %d", c.Len())
	}
}

func TestResultCache_RemoveAndClear(t *testing.T) {
	c := New(10, 0)
	c.Put(1, 1)
	c.Put(2, 2)

	c.Remove(1)
	c.Remove(99)
	if _, ok := c.Get(1); ok {
		t.Error("removed entry still present")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d", c.Len())
	}
}

func TestResultCache_Disabled(t *testing.T) {
	c := New(10, 0)
	c.Put(1, 1)
	c.SetEnabled(false)

	if c.Len() != 0 {
		t.Error("disabling should drop entries")
	}
	c.Put(2, 2)
	if _, ok := c.Get(2); ok {
		t.Error("disabled cache returned a hit")
	}

	c.SetEnabled(true)
	c.Put(3, 3)
	if _, ok := c.Get(3); !ok {
		t.Error("re-enabled cache missed")
	}
}

func TestResultCache_GetOrCompute(t *testing.T) {
	c := New(10, 0)
	calls := 0
	fn := func() (any, error) {
		calls++
		return calls, nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrCompute(7, fn)
		if err != nil {
			t.Fatal(err)
		}
		if v != 1 {
			t.Errorf("GetOrCompute = %v, want 1", v)
		}
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}

	boom := errors.New("boom")
	if _, err := c.GetOrCompute(8, func() (any, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if _, ok := c.Get(8); ok {
		t.Error("errors must not be cached")
	}
}

// =============================================================================
// Statistics and concurrency
// =============================================================================

func TestResultCache_Stats(t *testing.T) {
	c := New(5, 0)
	c.Put(1, 1)
	c.Get(1)
	c.Get(1)
	c.Get(1)
	c.Get(2)

	s := c.Stats()
	if s.Hits != 3 || s.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 3/1", s.Hits, s.Misses)
	}
	if s.HitRate != 75 {
		t.Errorf("HitRate = %v, want 75", s.HitRate)
	}
	if s.Size != 1 || s.MaxSize != 5 || !s.Enabled {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestResultCache_Concurrent(t *testing.T) {
	c := New(50, time.Minute)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				k := Key(fmt.Sprint(g), fmt.Sprint(i%80))
				if _, ok := c.Get(k); !ok {
					c.Put(k, i)
				}
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 50 {
		t.Errorf("Len() = %d exceeds maxSize", c.Len())
	}
}
