// Package metrics registers the prometheus counters and histograms used
// to observe flush, batch, and deadlock activity across the core, and
// provides a minimal process-memory probe for the executor's resource
// backpressure check.
package metrics

import (
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the package-level registry all metrics below register
// against, grounded on the teacher's client_golang + otel/prometheus
// exporter wiring (go.opentelemetry.io/otel/exporters/prometheus,
// github.com/prometheus/client_golang in the teacher's go.mod).
var Registry = prometheus.NewRegistry()

var (
	FlushAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskforge_sessionstore_flush_attempts_total",
		Help: "Total number of flushUpdates write attempts, including retries.",
	})
	FlushSuccesses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskforge_sessionstore_flush_success_total",
		Help: "Total number of flushUpdates calls that persisted successfully.",
	})
	FlushFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskforge_sessionstore_flush_failures_total",
		Help: "Total number of flushUpdates calls that exhausted retries or hit a non-retryable error.",
	})
	FlushLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "taskforge_sessionstore_flush_latency_seconds",
		Help:    "Observed latency of a successful flushUpdates call.",
		Buckets: prometheus.DefBuckets,
	})

	BatchesFormed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskforge_executor_batches_total",
		Help: "Total number of batches formed by the concurrent executor.",
	})
	BatchFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskforge_executor_batch_failures_total",
		Help: "Total number of subtask failures observed across all batches.",
	})
	DeadlocksDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskforge_executor_deadlocks_total",
		Help: "Total number of runs that ended in Deadlock.",
	})
)

func init() {
	Registry.MustRegister(FlushAttempts, FlushSuccesses, FlushFailures, FlushLatency, BatchesFormed, BatchFailures, DeadlocksDetected)
}

// ProcessMemoryFraction reports the current process's resident set size
// as a fraction of a configured ceiling (bytes). On any error reading
// /proc/self/status (e.g. non-Linux platforms, sandboxed environments),
// it always returns 0 so backpressure never blocks progress — a
// defensive default matching the teacher's style in its health-check
// packages, where an unavailable signal never turns into a hard failure.
func ProcessMemoryFraction(ceilingBytes uint64) float64 {
	if ceilingBytes == 0 {
		return 0
	}
	data, err := os.ReadFile("/proc/self/status")
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return float64(kb*1024) / float64(ceilingBytes)
	}
	return 0
}
