// Package metrics declares the Prometheus counters this tool exposes and
// registers them with go-metrics, whose Handler serves them over HTTP.
package metrics

import "github.com/docker/go-metrics"

const (
	// NamespacePrefix is the namespace of prometheus metrics.
	NamespacePrefix = "bundleextract"
)

// WorkerNamespace is the prometheus namespace of worker-pool run metrics.
var WorkerNamespace = metrics.NewNamespace(NamespacePrefix, "worker", nil)

var (
	// BundlesTotal counts bundles the worker pool has finished processing.
	BundlesTotal = WorkerNamespace.NewCounter("bundles_total", "The number of bundles processed")

	// RecordsExtractedTotal counts records successfully extracted to disk.
	RecordsExtractedTotal = WorkerNamespace.NewCounter("records_extracted_total", "The number of records extracted")

	// RecordsDedupedTotal counts records skipped because an identical
	// (extension, name) pair was already claimed by another record.
	RecordsDedupedTotal = WorkerNamespace.NewCounter("records_deduped_total", "The number of records skipped as duplicates")

	// RecordsSkippedTotal counts records skipped for reasons other than
	// deduplication: a --filter mismatch, a name missing from a loaded
	// dictionary, or an extraction error. Records with no registered
	// extractor are written as raw blobs and are not counted here.
	RecordsSkippedTotal = WorkerNamespace.NewCounter("records_skipped_total", "The number of records skipped")

	// BytesWrittenTotal counts bytes written to the output sandbox.
	BytesWrittenTotal = WorkerNamespace.NewCounter("bytes_written_total", "The number of bytes written to the output directory")
)

func init() {
	metrics.Register(WorkerNamespace)
}
