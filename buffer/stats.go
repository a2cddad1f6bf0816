package buffer

// Stats reports pool occupancy and cumulative counters.
type Stats struct {
	NumFrames int
	Valid     int
	Pinned    int
	Dirty     int

	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
	// Exhausted counts victim searches that found every frame pinned.
	Exhausted uint64
}

// HitRatio returns hits / (hits + misses), or 0 before the first fetch.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats returns a snapshot of the pool.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		NumFrames:  m.numFrames,
		Hits:       m.hits.Load(),
		Misses:     m.misses.Load(),
		Evictions:  m.evictions.Load(),
		Writebacks: m.writebacks.Load(),
		Exhausted:  m.exhausted.Load(),
	}
	for i := range m.descs {
		d := &m.descs[i]
		if !d.valid {
			continue
		}
		s.Valid++
		if d.pinCnt > 0 {
			s.Pinned++
		}
		if d.dirty {
			s.Dirty++
		}
	}
	return s
}
