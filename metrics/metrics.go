package metrics

import "sync/atomic"

// Metrics captures shared operational stats for pipeline runs.
type Metrics struct {
	runsStarted     int64
	runsFailed      int64
	grantsDelivered int64
	sourceFailures  int64
}

// Snapshot provides a consistent view of the current metrics.
type Snapshot struct {
	RunsStarted     int64 `json:"runs_started"`
	RunsFailed      int64 `json:"runs_failed"`
	GrantsDelivered int64 `json:"grants_delivered"`
	SourceFailures  int64 `json:"source_failures"`
}

// New creates a zeroed Metrics instance.
func New() *Metrics {
	return &Metrics{}
}

// RecordRun increments run counters based on outcome.
func (m *Metrics) RecordRun(delivered int, err error) {
	atomic.AddInt64(&m.runsStarted, 1)
	if err != nil {
		atomic.AddInt64(&m.runsFailed, 1)
		return
	}
	atomic.AddInt64(&m.grantsDelivered, int64(delivered))
}

// RecordSourceFailure counts a source that contributed zero records.
func (m *Metrics) RecordSourceFailure() {
	atomic.AddInt64(&m.sourceFailures, 1)
}

// Snapshot returns a read-only view of metrics.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		RunsStarted:     atomic.LoadInt64(&m.runsStarted),
		RunsFailed:      atomic.LoadInt64(&m.runsFailed),
		GrantsDelivered: atomic.LoadInt64(&m.grantsDelivered),
		SourceFailures:  atomic.LoadInt64(&m.sourceFailures),
	}
}
