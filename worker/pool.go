// Package worker implements the concurrent run loop: scanning an input
// directory of bundles, distributing them across goroutines, deduplicating
// records across bundles, and routing each record through dispatch.
package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/distribution/bundle-extract/bundlefmt"
	"github.com/distribution/bundle-extract/dispatch"
	"github.com/distribution/bundle-extract/hashutil"
	"github.com/distribution/bundle-extract/internal/xlog"
)

// scriptExt is exempted from dictionary-driven unknown-skip: LuaJIT bytecode
// records carry their own embedded source path and are always extracted,
// dictionary or not.
var scriptExt, _ = hashutil.HashForExtension("lua")

// RunConfig carries everything a run needs beyond the bundle list itself.
type RunConfig struct {
	Bundles  []Bundle
	Dedup    Dedup
	Opts     *dispatch.Options
	Filter   *uint64
	Interval time.Duration
	Report   ProgressFunc
}

// panicRecord captures one worker's fatal failure.
type panicRecord struct {
	bundle string
	err    error
}

// Run drives the worker pool to completion: it distributes cfg.Bundles
// across max(GOMAXPROCS-1, 1) workers (overridable via concurrency),
// decodes each bundle's record stream, deduplicates by (ext, name), and
// dispatches unseen records. It returns the final Snapshot once every worker
// has finished, together with the first fatal error any worker recorded.
func Run(ctx context.Context, concurrency int, cfg RunConfig) (Snapshot, error) {
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0) - 1
	}
	if concurrency < 1 {
		concurrency = 1
	}

	cur := newCursor(len(cfg.Bundles))
	stats := &Stats{}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}

	progressCtx, stopProgress := context.WithCancel(ctx)
	defer stopProgress()
	go reportProgress(progressCtx, stats, len(cfg.Bundles), interval, cfg.Report)

	var panicsMu sync.Mutex
	var panics []panicRecord

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			inBuf := make([]byte, bundlefmt.ChunkSize)
			outBuf := make([]byte, bundlefmt.ChunkSize)
			scratch := make([]byte, cfg.Opts.Codec.ScratchSize())
			pool := &dispatch.Pool{}

			for {
				select {
				case <-groupCtx.Done():
					return groupCtx.Err()
				default:
				}

				idx, ok := cur.take()
				if !ok {
					return nil
				}

				b := cfg.Bundles[idx]
				if err := processBundle(groupCtx, b, cfg, pool, inBuf, outBuf, scratch, stats); err != nil {
					panicsMu.Lock()
					panics = append(panics, panicRecord{bundle: fmt.Sprintf("%016x", b.Hash), err: err})
					panicsMu.Unlock()
					cur.abort()
					return err
				}
			}
		})
	}

	runErr := g.Wait()
	stopProgress()

	final := stats.snapshot(len(cfg.Bundles))
	if runErr != nil {
		panicsMu.Lock()
		defer panicsMu.Unlock()
		if len(panics) > 0 {
			return final, fmt.Errorf("worker: bundle %s failed: %w (and %d more)", panics[0].bundle, panics[0].err, len(panics)-1)
		}
		return final, runErr
	}
	return final, nil
}

func processBundle(ctx context.Context, b Bundle, cfg RunConfig, pool *dispatch.Pool, inBuf, outBuf, scratch []byte, stats *Stats) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	logger := xlog.From(ctx).WithField("bundle", fmt.Sprintf("%016x", b.Hash))

	f, openErr := os.Open(b.Path)
	if openErr != nil {
		return fmt.Errorf("open %s: %w", b.Path, openErr)
	}
	defer f.Close()

	hash := b.Hash
	bundle, openErr := bundlefmt.Open(f, &hash)
	if openErr != nil {
		return fmt.Errorf("open container: %w", openErr)
	}

	if cfg.Filter != nil {
		matched, filterErr := indexHasExt(bundle, *cfg.Filter)
		if filterErr != nil {
			return fmt.Errorf("scan index: %w", filterErr)
		}
		if !matched {
			stats.addBundle()
			return nil
		}
		// Records() below seeks to the chunk table by absolute offset, so
		// the index scan above doesn't need to be undone.
	}

	it, err := bundle.Records(cfg.Opts.Codec, inBuf, outBuf, scratch)
	if err != nil {
		return fmt.Errorf("open record stream: %w", err)
	}

	opts := *cfg.Opts
	opts.BundleDir = filepath.Dir(b.Path)

	for {
		rec, ok, err := it.Next()
		if err != nil {
			return fmt.Errorf("read record: %w", err)
		}
		if !ok {
			break
		}

		if cfg.Filter != nil && rec.Ext() != *cfg.Filter {
			stats.addSkipped()
			continue
		}

		dict := cfg.Opts.Dictionary
		if dict != nil && dict.SkipUnknown && rec.Ext() != scriptExt {
			if _, known := dict.Lookup(rec.Name()); !known {
				stats.addSkipped()
				continue
			}
		}

		first, dedupErr := cfg.Dedup.Claim(dedupKey{Ext: rec.Ext(), Name: rec.Name()})
		if dedupErr != nil {
			return fmt.Errorf("dedup claim: %w", dedupErr)
		}
		if !first {
			stats.addDeduped()
			continue
		}

		n, err := dispatch.Dispatch(rec, pool, &opts)
		if err != nil {
			logger.WithError(err).Warnf("record %016x:%016x failed, continuing", rec.Ext(), rec.Name())
			stats.addSkipped()
			continue
		}
		stats.addExtracted(int64(n))
	}

	stats.addBundle()
	return nil
}

func indexHasExt(b *bundlefmt.Bundle, ext uint64) (bool, error) {
	idx := b.Index()
	for {
		entry, ok, err := idx.Next()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		if entry.Ext == ext {
			return true, nil
		}
	}
}
