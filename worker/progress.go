package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/distribution/bundle-extract/internal/xlog"
	"github.com/distribution/bundle-extract/metrics"
)

// Stats are the counters a progress reporter polls and, at the end of a
// run, the totals returned to the caller. All fields are updated with
// atomic operations so workers never contend on a mutex for bookkeeping.
type Stats struct {
	BundlesProcessed int64
	RecordsExtracted int64
	RecordsDeduped   int64
	RecordsSkipped   int64
	BytesWritten     int64
}

func (s *Stats) addBundle() {
	atomic.AddInt64(&s.BundlesProcessed, 1)
	metrics.BundlesTotal.Inc()
}

func (s *Stats) addExtracted(n int64) {
	atomic.AddInt64(&s.RecordsExtracted, 1)
	atomic.AddInt64(&s.BytesWritten, n)
	metrics.RecordsExtractedTotal.Inc()
	metrics.BytesWrittenTotal.Inc(float64(n))
}

func (s *Stats) addDeduped() {
	atomic.AddInt64(&s.RecordsDeduped, 1)
	metrics.RecordsDedupedTotal.Inc()
}

func (s *Stats) addSkipped() {
	atomic.AddInt64(&s.RecordsSkipped, 1)
	metrics.RecordsSkippedTotal.Inc()
}

// Snapshot is a point-in-time copy of Stats, safe to log or render.
type Snapshot struct {
	BundlesProcessed int
	Total            int
	RecordsExtracted int64
	RecordsDeduped   int64
	RecordsSkipped   int64
	BytesWritten     int64
}

func (s *Stats) snapshot(total int) Snapshot {
	return Snapshot{
		BundlesProcessed: int(atomic.LoadInt64(&s.BundlesProcessed)),
		Total:            total,
		RecordsExtracted: atomic.LoadInt64(&s.RecordsExtracted),
		RecordsDeduped:   atomic.LoadInt64(&s.RecordsDeduped),
		RecordsSkipped:   atomic.LoadInt64(&s.RecordsSkipped),
		BytesWritten:     atomic.LoadInt64(&s.BytesWritten),
	}
}

// ProgressFunc receives each periodic snapshot; Run's caller may use this to
// drive a metrics registry in addition to (or instead of) the default log
// line.
type ProgressFunc func(Snapshot)

// reportProgress polls stats on interval until ctx is done, logging (and,
// if report is non-nil, forwarding) each snapshot.
func reportProgress(ctx context.Context, stats *Stats, total int, interval time.Duration, report ProgressFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := xlog.From(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := stats.snapshot(total)
			logger.Infof("extracting: bundles=%d/%d extracted=%d deduped=%d skipped=%d bytes=%d",
				snap.BundlesProcessed, snap.Total, snap.RecordsExtracted, snap.RecordsDeduped, snap.RecordsSkipped, snap.BytesWritten)
			if report != nil {
				report(snap)
			}
		}
	}
}
