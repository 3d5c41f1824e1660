package telemetry

// Metrics bundles every gauge/counter the lock manager emits, owned by a
// single Manager instance rather than kept as package-level mutable state.
type Metrics struct {
	LocksGranted       Counter
	LocksAborted       Counter
	ActiveLocks        Gauge
	ActiveTransactions Gauge
	WorkerQueueDepth   Gauge
}

// NewMetrics registers (or noop-stubs, if telemetry is disabled) every
// gauge/counter the lock manager needs.
func NewMetrics() *Metrics {
	return &Metrics{
		LocksGranted:       NewCounter("locks_granted_total", "Number of lock grants issued."),
		LocksAborted:       NewCounter("locks_aborted_total", "Number of lock requests that aborted their transaction."),
		ActiveLocks:        NewGauge("active_locks", "Number of rows currently locked."),
		ActiveTransactions: NewGauge("active_transactions", "Number of registered, non-aborted transactions."),
		WorkerQueueDepth:   NewGauge("worker_queue_depth", "Approximate total jobs queued across all workers."),
	}
}
