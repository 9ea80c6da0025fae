// Package stats provides the statistics collector the Sequencer, wire
// protocol parser, and ingest handlers report into, and that cmd/sequencerd
// exposes over the admin surface and its interactive shell.
package stats

// Provider defines the interface for components that expose statistics.
type Provider interface {
	// GetStats returns all statistics.
	GetStats() map[string]interface{}

	// GetStatsFiltered returns statistics whose key starts with prefix.
	GetStatsFiltered(prefix string) map[string]interface{}
}

// Collector interface defines methods for collecting statistics.
type Collector interface {
	Provider

	// TrackOperation records a single operation.
	TrackOperation(op OperationType)

	// TrackOperationWithLatency records an operation with its latency.
	TrackOperationWithLatency(op OperationType, latencyNs uint64)

	// TrackError increments the counter for the specified error type.
	TrackError(errorType string)

	// TrackBytes adds the specified number of bytes to the ingest or
	// merge-output counter.
	TrackBytes(isOutput bool, bytes uint64)

	// TrackActiveRuns records the current number of active runs.
	TrackActiveRuns(count uint64)

	// TrackCheckpoint increments the checkpoint counter.
	TrackCheckpoint()

	// TrackMerge increments the merge counter.
	TrackMerge()
}

var _ Collector = (*AtomicCollector)(nil)
