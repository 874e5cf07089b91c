package cachestore

import "testing"

func TestRAMCacheEvictsLeastRecent(t *testing.T) {
	c := newRAMCache(30)
	c.Put("a", Entry{}, 10)
	c.Put("b", Entry{}, 10)
	c.Put("c", Entry{}, 10)
	c.Get("a")

	if n := c.Put("d", Entry{}, 10); n != 1 {
		t.Fatalf("evicted = %d", n)
	}
	if _, ok := c.Get("b"); ok {
		t.Errorf("b should have been evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s missing", k)
		}
	}
	if c.TotalSize() != 30 {
		t.Errorf("total = %d", c.TotalSize())
	}
}

func TestRAMCacheLimits(t *testing.T) {
	off := newRAMCache(0)
	off.Put("a", Entry{}, 1)
	if off.Len() != 0 {
		t.Errorf("disabled cache stored an item")
	}

	c := newRAMCache(10)
	c.Put("a", Entry{}, 5)
	c.Put("a", Entry{}, 50)
	if c.Len() != 0 || c.TotalSize() != 0 {
		t.Errorf("oversized replacement kept: len=%d total=%d", c.Len(), c.TotalSize())
	}

	c.Put("e:x\x00/", Entry{}, 2)
	c.Put("e:x\x00/a", Entry{}, 2)
	c.Put("e:y\x00/", Entry{}, 2)
	c.DeletePrefix("e:x\x00")
	if c.Len() != 1 || c.TotalSize() != 2 {
		t.Errorf("after prefix delete: len=%d total=%d", c.Len(), c.TotalSize())
	}
}
