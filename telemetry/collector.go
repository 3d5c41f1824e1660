package telemetry

import (
	"sync"
	"time"
)

// StatsProvider is implemented by the lock manager so a MetricsCollector
// can poll it without either package importing the other's concrete
// types.
type StatsProvider interface {
	LockStats() (activeLocks, activeTransactions, queueDepth int)
}

// MetricsCollector periodically polls a StatsProvider and writes the
// results into a Metrics bundle.
type MetricsCollector struct {
	provider StatsProvider
	metrics  *Metrics
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewMetricsCollector(provider StatsProvider, metrics *Metrics, interval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		provider: provider,
		metrics:  metrics,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (mc *MetricsCollector) Start() {
	mc.wg.Add(1)
	go mc.collectLoop()
}

func (mc *MetricsCollector) Stop() {
	close(mc.stopCh)
	mc.wg.Wait()
}

func (mc *MetricsCollector) collectLoop() {
	defer mc.wg.Done()

	ticker := time.NewTicker(mc.interval)
	defer ticker.Stop()

	mc.collect()
	for {
		select {
		case <-ticker.C:
			mc.collect()
		case <-mc.stopCh:
			return
		}
	}
}

func (mc *MetricsCollector) collect() {
	if mc.provider == nil {
		return
	}
	locks, txns, queueDepth := mc.provider.LockStats()
	mc.metrics.ActiveLocks.Set(float64(locks))
	mc.metrics.ActiveTransactions.Set(float64(txns))
	mc.metrics.WorkerQueueDepth.Set(float64(queueDepth))
}
