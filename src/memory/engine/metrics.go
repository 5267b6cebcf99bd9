package engine

import "sync/atomic"

// Metrics captures lightweight runtime counters for observability.
type Metrics struct {
	stored     atomic.Int64
	increments atomic.Int64
	references atomic.Int64
	queries    atomic.Int64
	retrieved  atomic.Int64
	deleted    atomic.Int64
	misses     atomic.Int64
	lostRaces  atomic.Int64
}

func (m *Metrics) IncStored()         { m.stored.Add(1) }
func (m *Metrics) IncIncrements()     { m.increments.Add(1) }
func (m *Metrics) IncReferences()     { m.references.Add(1) }
func (m *Metrics) IncQueries()        { m.queries.Add(1) }
func (m *Metrics) IncRetrieved(n int) { m.retrieved.Add(int64(n)) }
func (m *Metrics) IncDeleted(n int)   { m.deleted.Add(int64(n)) }
func (m *Metrics) IncMisses()         { m.misses.Add(1) }
func (m *Metrics) IncLostRaces()      { m.lostRaces.Add(1) }

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Stored     int64 `json:"stored"`
	Increments int64 `json:"increments"`
	References int64 `json:"references"`
	Queries    int64 `json:"queries"`
	Retrieved  int64 `json:"retrieved"`
	Deleted    int64 `json:"deleted"`
	Misses     int64 `json:"misses"`
	LostRaces  int64 `json:"lost_races"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		Stored:     m.stored.Load(),
		Increments: m.increments.Load(),
		References: m.references.Load(),
		Queries:    m.queries.Load(),
		Retrieved:  m.retrieved.Load(),
		Deleted:    m.deleted.Load(),
		Misses:     m.misses.Load(),
		LostRaces:  m.lostRaces.Load(),
	}
}
