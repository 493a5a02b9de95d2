package engine

import "noescape.gg/internal/sim/engine/kernel/model"

// Metrics is a thread-safe read-only view of engine counters.
// It is refreshed from the engine goroutine and read from HTTP handlers.
type Metrics struct {
	RaidBlocks      int `json:"raid_blocks"`
	CombatBlocks    int `json:"combat_blocks"`
	Zones           int `json:"zones"`
	PendingTimers   int `json:"pending_timers"`
	PendingUnblocks int `json:"pending_unblocks"`

	CacheHits   uint64 `json:"cache_hits"`
	CacheMisses uint64 `json:"cache_misses"`

	InboxDepth int    `json:"inbox_depth"`
	Handled    uint64 `json:"handled"`
	Fired      uint64 `json:"fired"`
	Dropped    uint64 `json:"dropped"`
}

func (e *Engine) publishMetrics() {
	st := e.social.Stats()
	m := Metrics{
		RaidBlocks:      e.store.Count(model.KindRaid),
		CombatBlocks:    e.store.Count(model.KindCombat),
		PendingTimers:   e.timers.Len(),
		PendingUnblocks: e.life.PendingUnblocks(),
		CacheHits:       st.Hits,
		CacheMisses:     st.Misses,
		InboxDepth:      len(e.inbox),
		Handled:         e.handled.Load(),
		Fired:           e.fired.Load(),
		Dropped:         e.dropped.Load(),
	}
	if e.zones != nil {
		m.Zones = e.zones.Len()
	}
	e.metrics.Store(m)
}

func (e *Engine) Metrics() Metrics {
	if e == nil {
		return Metrics{}
	}
	m, _ := e.metrics.Load().(Metrics)
	return m
}
