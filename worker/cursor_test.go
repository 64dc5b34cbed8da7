package worker

import (
	"sync"
	"testing"
)

func TestCursorTakeExhausts(t *testing.T) {
	c := newCursor(3)
	var got []int
	for {
		i, ok := c.take()
		if !ok {
			break
		}
		got = append(got, i)
	}
	if len(got) != 3 {
		t.Fatalf("took %d indices, want 3: %v", len(got), got)
	}
}

func TestCursorConcurrentTakeIsUnique(t *testing.T) {
	const n = 1000
	c := newCursor(n)
	seen := make([]int32, n)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i, ok := c.take()
				if !ok {
					return
				}
				seen[i]++
			}
		}()
	}
	wg.Wait()
	for i, v := range seen {
		if v != 1 {
			t.Fatalf("index %d taken %d times, want 1", i, v)
		}
	}
}

func TestCursorAbortStopsOthers(t *testing.T) {
	c := newCursor(100)
	if _, ok := c.take(); !ok {
		t.Fatal("expected first take to succeed")
	}
	c.abort()
	if _, ok := c.take(); ok {
		t.Fatal("expected take after abort to fail")
	}
}
