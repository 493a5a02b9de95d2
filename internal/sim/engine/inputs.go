package engine

import (
	"noescape.gg/internal/sim/engine/feature/gating"
	"noescape.gg/internal/sim/engine/feature/lifecycle"
	"noescape.gg/internal/sim/engine/feature/policy"
	"noescape.gg/internal/sim/engine/kernel/model"
)

// Input is anything the engine goroutine consumes from its inbox.
type Input interface{ input() }

type StructureDamaged struct{ Hit policy.StructureHit }

type StructureDestroyed struct{ Hit policy.StructureHit }

type PlayerAttacked struct{ Attack policy.Attack }

type PlayerDied struct{ Actor string }

type PlayerWokeUp struct{ Actor string }

type PlayerRespawned struct{ Actor string }

type PlayerConnected struct{ Actor string }

type ZoneEntered struct{ Actor, ZoneID string }

type ZoneExited struct{ Actor, ZoneID string }

type ClanCreated struct{ Tag string }

type ClanUpdated struct{ Tag string }

type ClanDestroyed struct{ Tag string }

// Apply runs Fn on the engine goroutine. The host mirror is updated this way.
type Apply struct{ Fn func() }

type GateReq struct {
	Req  gating.Request
	Resp chan gating.Result
}

type Status struct {
	Actor             string `json:"actor"`
	Blocked           bool   `json:"blocked"`
	RaidRemainingMs   int64  `json:"raid_remaining_ms"`
	CombatRemainingMs int64  `json:"combat_remaining_ms"`
	Message           string `json:"message,omitempty"`
}

type StatusReq struct {
	Actor string
	Resp  chan Status
}

// StopReq stops one kind, or every kind when Kind is 0.
type StopReq struct {
	Actor string
	Kind  model.Kind
	Resp  chan int
}

type BlockView struct {
	Actor       string `json:"actor"`
	Kind        string `json:"kind"`
	StartedAt   int64  `json:"started_at_ms"`
	ExpiresAt   int64  `json:"expires_at_ms"`
	RemainingMs int64  `json:"remaining_ms"`
	MarkerID    string `json:"marker_id,omitempty"`
}

type ZoneView struct {
	ID     string  `json:"id"`
	Radius float64 `json:"radius"`
}

type State struct {
	Blocks          []BlockView `json:"blocks"`
	Zones           []ZoneView  `json:"zones"`
	PendingUnblocks int         `json:"pending_unblocks"`
	PendingTimers   int         `json:"pending_timers"`
}

type StateReq struct{ Resp chan State }

func (StructureDamaged) input()   {}
func (StructureDestroyed) input() {}
func (PlayerAttacked) input()     {}
func (PlayerDied) input()         {}
func (PlayerWokeUp) input()       {}
func (PlayerRespawned) input()    {}
func (PlayerConnected) input()    {}
func (ZoneEntered) input()        {}
func (ZoneExited) input()         {}
func (ClanCreated) input()        {}
func (ClanUpdated) input()        {}
func (ClanDestroyed) input()      {}
func (Apply) input()              {}
func (GateReq) input()            {}
func (StatusReq) input()          {}
func (StopReq) input()            {}
func (StateReq) input()           {}

// Handle applies one input. It must only be called from the engine goroutine
// (Run calls it; tests drive it directly).
func (e *Engine) Handle(in Input) {
	e.handled.Add(1)
	switch v := in.(type) {
	case StructureDamaged:
		e.policy.StructureDamaged(v.Hit)
	case StructureDestroyed:
		e.policy.StructureDestroyed(v.Hit)
	case PlayerAttacked:
		e.policy.PlayerAttacked(v.Attack)
	case PlayerDied:
		e.life.OnLifeEvent(v.Actor, lifecycle.TriggerDeath)
	case PlayerWokeUp:
		e.life.OnLifeEvent(v.Actor, lifecycle.TriggerWakeup)
	case PlayerRespawned:
		e.life.OnLifeEvent(v.Actor, lifecycle.TriggerRespawn)
	case PlayerConnected:
		e.life.OnConnected(v.Actor)
	case ZoneEntered:
		e.zoneEntered(v.Actor, v.ZoneID)
	case ZoneExited:
		e.zoneExited(v.Actor, v.ZoneID)
	case ClanCreated:
		e.social.OnClanChanged(v.Tag)
	case ClanUpdated:
		e.social.OnClanChanged(v.Tag)
	case ClanDestroyed:
		e.social.OnClanDestroyed(v.Tag)
	case Apply:
		if v.Fn != nil {
			v.Fn()
		}
	case GateReq:
		reply(v.Resp, e.gate.Check(v.Req))
	case StatusReq:
		reply(v.Resp, e.status(v.Actor))
	case StopReq:
		n := 0
		if v.Kind.Valid() {
			if e.Stop(v.Actor, v.Kind) {
				n = 1
			}
		} else {
			n = e.StopAll(v.Actor)
		}
		reply(v.Resp, n)
	case StateReq:
		reply(v.Resp, e.state())
	}
}

func reply[T any](ch chan T, v T) {
	if ch == nil {
		return
	}
	select {
	case ch <- v:
	default:
	}
}

func (e *Engine) zoneEntered(actor, zoneID string) {
	if e.zones == nil || !e.zoneEnter || !e.zones.Has(zoneID) {
		return
	}
	p, ok := e.worldPlayer(actor)
	if !ok {
		return
	}
	e.life.Start(actor, model.KindRaid, p.Pos, false)
}

func (e *Engine) zoneExited(actor, zoneID string) {
	if e.zones == nil || !e.zoneLeave || !e.zones.Has(zoneID) {
		return
	}
	if e.life.IsActive(actor, model.KindRaid) {
		e.life.Stop(actor, model.KindRaid)
	}
}
