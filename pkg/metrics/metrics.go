// Package metrics provides the Prometheus registry used by duoload.
// All metrics are defined in their respective packages (client, ratelimit,
// transfer, output) and registered via promauto.
//
// duoload is a batch tool, so metrics are not scraped. At the end of a run they
// can be written in the node_exporter textfile collector format.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by duoload.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer paired with Registry.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// WriteTextfile writes every registered metric to path in the textfile
// collector format. The file is written atomically.
func WriteTextfile(path string) error {
	if path == "" {
		return fmt.Errorf("metrics textfile path is required")
	}
	if err := prometheus.WriteToTextfile(path, Gatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Fetch Metrics (pkg/client):
//   - duoload_fetch_requests_total{status} (Counter): HTTP attempts by status code or "network_error"
//   - duoload_fetch_request_duration_seconds (Histogram): duration of a single HTTP attempt
//   - duoload_fetch_errors_total{kind} (Counter): terminal fetch errors by kind
//
// Retry Metrics (pkg/client):
//   - duoload_fetch_retries_total{error_class} (Counter): retry attempts by error class
//   - duoload_fetch_retry_backoff_seconds{error_class} (Histogram): backoff duration by error class
//   - duoload_fetch_retry_exhausted_total{error_class} (Counter): pages that exhausted retries
//
// Pacing Metrics (pkg/ratelimit):
//   - duoload_polite_wait_seconds{backend} (Histogram): time spent in the polite delay
//
// Transfer Metrics (pkg/transfer):
//   - duoload_pages_total (Counter): pages processed
//   - duoload_records_total{outcome} (Counter): records by outcome (admitted, duplicate)
//
// Output Metrics (pkg/output):
//   - duoload_sink_finalize_total{format, result} (Counter): finalize attempts
//
// Example Prometheus Queries:
//
//   # Duplicate ratio
//   duoload_records_total{outcome="duplicate"} / ignoring(outcome) sum(duoload_records_total)
//
//   # Retries per page
//   sum(duoload_fetch_retries_total) / duoload_pages_total
