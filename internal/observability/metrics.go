package observability

import (
	"strconv"
	"sync"
)

// Metrics provides basic in-memory counters for the outgoing pipeline.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	refreshCount  map[bool]int64
	replayCount   int64
	redirectCount map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:  make(map[string]int64),
		refreshCount:  make(map[bool]int64),
		redirectCount: make(map[string]int64),
	}
}

// RecordRequest increments counters for outgoing requests.
func (m *Metrics) RecordRequest(path, method string, status int) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordRefresh increments refresh attempt counters by outcome.
func (m *Metrics) RecordRefresh(success bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshCount[success]++
}

// RecordReplay increments the replayed-request counter.
func (m *Metrics) RecordReplay() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replayCount++
}

// RecordRedirect increments redirect counters by target.
func (m *Metrics) RecordRedirect(target string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redirectCount[target]++
}

// Refreshes returns the refresh-attempt counter for one outcome.
func (m *Metrics) Refreshes(success bool) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshCount[success]
}

// Replays returns the replayed-request counter.
func (m *Metrics) Replays() int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replayCount
}
