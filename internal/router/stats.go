package router

import (
	"sync/atomic"

	"github.com/gyaneshwarpardhi/paynotify/internal/merchant"
)

// Snapshot is a point-in-time copy of the routing counters.
type Snapshot struct {
	Total            int64            `json:"total"`
	Sent             map[string]int64 `json:"sent"`
	Failed           map[string]int64 `json:"failed"`
	NotRegistered    int64            `json:"not_registered"`
	Inactive         int64            `json:"inactive"`
	AlreadyProcessed int64            `json:"already_processed"`
	ConfigErrors     int64            `json:"config_errors"`
	Exhausted        int64            `json:"exhausted"`
}

// Stats aggregates routing outcomes. Counters are process-local and reset
// on restart.
type Stats struct {
	total            atomic.Int64
	notRegistered    atomic.Int64
	inactive         atomic.Int64
	alreadyProcessed atomic.Int64
	configErrors     atomic.Int64
	exhausted        atomic.Int64

	// fixed at construction; only the counters change
	sent   map[merchant.Kind]*atomic.Int64
	failed map[merchant.Kind]*atomic.Int64
}

// NewStats returns zeroed counters for every merchant kind.
func NewStats() *Stats {
	s := &Stats{
		sent:   make(map[merchant.Kind]*atomic.Int64, len(merchant.Kinds)),
		failed: make(map[merchant.Kind]*atomic.Int64, len(merchant.Kinds)),
	}
	for _, k := range merchant.Kinds {
		s.sent[k] = new(atomic.Int64)
		s.failed[k] = new(atomic.Int64)
	}
	return s
}

func (s *Stats) recordSent(k merchant.Kind) {
	if c, ok := s.sent[k]; ok {
		c.Add(1)
	}
}

func (s *Stats) recordFailed(k merchant.Kind) {
	if c, ok := s.failed[k]; ok {
		c.Add(1)
	}
}

// Snapshot copies the current counter values.
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		Total:            s.total.Load(),
		Sent:             make(map[string]int64, len(s.sent)),
		Failed:           make(map[string]int64, len(s.failed)),
		NotRegistered:    s.notRegistered.Load(),
		Inactive:         s.inactive.Load(),
		AlreadyProcessed: s.alreadyProcessed.Load(),
		ConfigErrors:     s.configErrors.Load(),
		Exhausted:        s.exhausted.Load(),
	}
	for k, c := range s.sent {
		snap.Sent[string(k)] = c.Load()
	}
	for k, c := range s.failed {
		snap.Failed[string(k)] = c.Load()
	}
	return snap
}

// Reset zeroes every counter.
func (s *Stats) Reset() {
	s.total.Store(0)
	s.notRegistered.Store(0)
	s.inactive.Store(0)
	s.alreadyProcessed.Store(0)
	s.configErrors.Store(0)
	s.exhausted.Store(0)
	for _, c := range s.sent {
		c.Store(0)
	}
	for _, c := range s.failed {
		c.Store(0)
	}
}
