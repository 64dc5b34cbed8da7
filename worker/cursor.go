package worker

import "sync/atomic"

// cursor is an atomic fetch-add index into an immutable slice of bundle
// paths, shared by every worker goroutine. A panicking or fatally-erroring
// worker jumps the cursor past the end so peers observe exhaustion on
// their next fetch and wind down without completing their remaining share
// of the work.
type cursor struct {
	next int64
	end  int64
}

func newCursor(n int) *cursor {
	return &cursor{end: int64(n)}
}

// take returns the next index and true, or false once the cursor has
// reached (or been forced past) the end.
func (c *cursor) take() (int, bool) {
	i := atomic.AddInt64(&c.next, 1) - 1
	if i >= atomic.LoadInt64(&c.end) {
		return 0, false
	}
	return int(i), true
}

// abort jumps the cursor past the end, so every other worker's next take()
// fails immediately.
func (c *cursor) abort() {
	atomic.StoreInt64(&c.next, atomic.LoadInt64(&c.end))
}
