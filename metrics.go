package afcore

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/afcore/dsp-audio-framework/internal/interfaces"
)

// Observer and NoOpObserver are re-exported from internal/interfaces so
// application code can configure a Device's metrics sink without
// importing an internal package directly.
type Observer = interfaces.Observer
type NoOpObserver = interfaces.NoOpObserver

// LatencyBuckets defines the dispatch-latency histogram buckets in
// nanoseconds, covering 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// poolCounters tracks Acquire successes/failures for one named pool
// (e.g. "control", "event:3:7").
type poolCounters struct {
	success atomic.Uint64
	failure atomic.Uint64
}

// Metrics tracks operational statistics for one core: dispatch
// throughput/latency/errors, per-pool acquire pressure, and worker queue
// depth aggregated across all workers, the DSP-core analogue of a
// device's I/O metrics.
type Metrics struct {
	DispatchOps    atomic.Uint64
	DispatchErrors atomic.Uint64

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	QueueDepthTotal atomic.Uint64
	QueueDepthCount atomic.Uint64
	MaxQueueDepth   atomic.Uint32

	poolsMu sync.RWMutex
	pools   map[string]*poolCounters

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new, running metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{pools: make(map[string]*poolCounters)}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordDispatch records one dispatched message: its latency and whether
// the handler succeeded. The opcode type is not recorded.
func (m *Metrics) RecordDispatch(latencyNs uint64, success bool) {
	m.DispatchOps.Add(1)
	if !success {
		m.DispatchErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordAcquire records one msgpool.Pool.Acquire call against the named
// pool.
func (m *Metrics) RecordAcquire(pool string, success bool) {
	m.poolsMu.RLock()
	c, ok := m.pools[pool]
	m.poolsMu.RUnlock()
	if !ok {
		m.poolsMu.Lock()
		c, ok = m.pools[pool]
		if !ok {
			c = &poolCounters{}
			m.pools[pool] = c
		}
		m.poolsMu.Unlock()
	}
	if success {
		c.success.Add(1)
	} else {
		c.failure.Add(1)
	}
}

// RecordQueueDepth records a worker's current inbound-queue depth.
func (m *Metrics) RecordQueueDepth(depth uint32) {
	m.QueueDepthTotal.Add(uint64(depth))
	m.QueueDepthCount.Add(1)
	for {
		current := m.MaxQueueDepth.Load()
		if depth <= current {
			break
		}
		if m.MaxQueueDepth.CompareAndSwap(current, depth) {
			break
		}
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the core as stopped, freezing uptime calculations.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// PoolSnapshot is a point-in-time acquire-pressure reading for one pool.
type PoolSnapshot struct {
	Name    string
	Success uint64
	Failure uint64
}

// MetricsSnapshot is a point-in-time reading of every counter.
type MetricsSnapshot struct {
	DispatchOps    uint64
	DispatchErrors uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	AvgQueueDepth float64
	MaxQueueDepth uint32

	DispatchRate float64 // dispatches per second
	ErrorRate    float64 // percentage of dispatches that failed

	Pools []PoolSnapshot
}

// Snapshot builds a MetricsSnapshot from the current counter state.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		DispatchOps:    m.DispatchOps.Load(),
		DispatchErrors: m.DispatchErrors.Load(),
		MaxQueueDepth:  m.MaxQueueDepth.Load(),
	}

	queueDepthTotal := m.QueueDepthTotal.Load()
	queueDepthCount := m.QueueDepthCount.Load()
	if queueDepthCount > 0 {
		snap.AvgQueueDepth = float64(queueDepthTotal) / float64(queueDepthCount)
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.DispatchRate = float64(snap.DispatchOps) / uptimeSeconds
	}
	if snap.DispatchOps > 0 {
		snap.ErrorRate = float64(snap.DispatchErrors) / float64(snap.DispatchOps) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	m.poolsMu.RLock()
	for name, c := range m.pools {
		snap.Pools = append(snap.Pools, PoolSnapshot{
			Name:    name,
			Success: c.success.Load(),
			Failure: c.failure.Load(),
		})
	}
	m.poolsMu.RUnlock()

	return snap
}

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes every counter, restarting uptime from now. Useful for
// tests.
func (m *Metrics) Reset() {
	m.DispatchOps.Store(0)
	m.DispatchErrors.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	m.QueueDepthTotal.Store(0)
	m.QueueDepthCount.Store(0)
	m.MaxQueueDepth.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.poolsMu.Lock()
	m.pools = make(map[string]*poolCounters)
	m.poolsMu.Unlock()
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// MetricsObserver implements interfaces.Observer by recording to a
// Metrics instance. It is the default Observer wired into Device when no
// other sink is configured.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver wraps m as an interfaces.Observer.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveDispatch(opcodeType int, latencyNs uint64, success bool) {
	o.metrics.RecordDispatch(latencyNs, success)
}

func (o *MetricsObserver) ObserveAcquire(pool string, success bool) {
	o.metrics.RecordAcquire(pool, success)
}

func (o *MetricsObserver) ObserveQueueDepth(workerIndex int, depth int) {
	o.metrics.RecordQueueDepth(uint32(depth))
}

var _ Observer = (*MetricsObserver)(nil)
