package secrets

import (
	"sort"
	"sync"
	"time"

	"github.com/TheMichaelB/vaultseal/internal/models"
)

// OperationStats aggregates the outcomes of one service operation.
type OperationStats struct {
	Count        uint64        `json:"count"`
	Failures     uint64        `json:"failures"`
	AuthFailures uint64        `json:"auth_failures"`
	Total        time.Duration `json:"total_ns"`
	Max          time.Duration `json:"max_ns"`
}

// Mean returns the average duration, or zero before the first call.
func (s OperationStats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Metrics counts calls, failures and durations per operation. It is safe for
// concurrent use.
type Metrics struct {
	mu  sync.Mutex
	ops map[string]*OperationStats
}

// NewMetrics creates an empty collector.
func NewMetrics() *Metrics {
	return &Metrics{ops: make(map[string]*OperationStats)}
}

func (m *Metrics) stats(op string) *OperationStats {
	s, ok := m.ops[op]
	if !ok {
		s = &OperationStats{}
		m.ops[op] = s
	}
	return s
}

// Record adds one call of op that took d and ended with err.
func (m *Metrics) Record(op string, d time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stats(op)
	s.Count++
	s.Total += d
	if d > s.Max {
		s.Max = d
	}
	if err != nil {
		s.Failures++
	}
	if models.IsAuthFailure(err) {
		s.AuthFailures++
	}
}

// RecordRejected counts a password rejected without an error, as Verify
// reports a mismatch.
func (m *Metrics) RecordRejected(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats(op).AuthFailures++
}

// Snapshot returns a copy of the current counters keyed by operation.
func (m *Metrics) Snapshot() map[string]OperationStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]OperationStats, len(m.ops))
	for op, s := range m.ops {
		out[op] = *s
	}
	return out
}

// Operations returns the recorded operation names in order.
func (m *Metrics) Operations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.ops))
	for op := range m.ops {
		names = append(names, op)
	}
	sort.Strings(names)
	return names
}
