package observability

import (
	"strconv"
	"sync"
	"time"
)

// Pipeline counter names.
const (
	CounterCycles            = "poll_cycles"
	CounterCyclesSkipped     = "poll_cycles_skipped"
	CounterCyclesDiscarded   = "poll_cycles_discarded"
	CounterFetchErrors       = "fetch_errors"
	CounterIssuesMerged      = "issues_merged"
	CounterIssuesNew         = "issues_new"
	CounterEnrichTimeouts    = "enrichment_timeouts"
	CounterEnrichFailures    = "enrichment_failures"
	CounterEnrichCacheHits   = "enrichment_cache_hits"
	CounterMutationsOK       = "mutations_confirmed"
	CounterMutationsRollback = "mutations_rolled_back"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	counters     map[string]int64
	lastCycle    time.Duration
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Requests        map[string]int64 `json:"requests"`
	Errors          map[string]int64 `json:"errors"`
	Pipeline        map[string]int64 `json:"pipeline"`
	LastCycleMillis int64            `json:"last_cycle_ms"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		counters:     make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// Add increments a named pipeline counter by n.
func (m *Metrics) Add(name string, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += n
}

// Inc increments a named pipeline counter.
func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

// ObserveCycle records the duration of the latest poll cycle.
func (m *Metrics) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCycle = d
}

// Counter returns the current value of a pipeline counter.
func (m *Metrics) Counter(name string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// Snapshot copies all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Requests:        copyCounts(m.requestCount),
		Errors:          copyCounts(m.errorCount),
		Pipeline:        copyCounts(m.counters),
		LastCycleMillis: m.lastCycle.Milliseconds(),
	}
}

func copyCounts(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
