package engine

import (
	"sort"
	"time"

	"noescape.gg/internal/protocol"
	"noescape.gg/internal/sim/engine/feature/gating"
	"noescape.gg/internal/sim/engine/kernel/model"
	"noescape.gg/internal/sim/host"
)

// The methods below are the engine's query surface. They run on the engine
// goroutine and never fail: anything unknown reads as "not blocked".

func (e *Engine) IsBlocked(actor string) bool {
	return e.IsBlockedKind(actor, model.KindRaid) || e.IsBlockedKind(actor, model.KindCombat)
}

func (e *Engine) IsBlockedKind(actor string, kind model.Kind) bool {
	if e == nil || !kind.Valid() {
		return false
	}
	return e.life.IsActive(actor, kind)
}

func (e *Engine) RemainingTime(actor string, kind model.Kind) time.Duration {
	if e == nil || !kind.Valid() {
		return 0
	}
	return e.life.Remaining(actor, kind)
}

func (e *Engine) Stop(actor string, kind model.Kind) bool {
	if e == nil || !kind.Valid() {
		return false
	}
	return e.life.Stop(actor, kind)
}

func (e *Engine) StopAll(actor string) int {
	if e == nil {
		return 0
	}
	return e.life.StopAll(actor)
}

// CanDo reports whether actor may perform req.Action right now.
func (e *Engine) CanDo(req gating.Request) bool {
	if e == nil {
		return true
	}
	return e.gate.Check(req).Allowed
}

// BlockedMessage is the text shown to a blocked actor, raid first; empty when unblocked.
func (e *Engine) BlockedMessage(actor string) string {
	if e == nil {
		return ""
	}
	return e.gate.Message(actor)
}

func (e *Engine) worldPlayer(actor string) (host.Player, bool) {
	if e.world == nil {
		return host.Player{}, false
	}
	return e.world.Player(actor)
}

func (e *Engine) status(actor string) Status {
	raid := e.RemainingTime(actor, model.KindRaid)
	combat := e.RemainingTime(actor, model.KindCombat)
	return Status{
		Actor:             actor,
		Blocked:           raid > 0 || combat > 0,
		RaidRemainingMs:   raid.Milliseconds(),
		CombatRemainingMs: combat.Milliseconds(),
		Message:           e.BlockedMessage(actor),
	}
}

func (e *Engine) state() State {
	now := e.now()
	s := State{
		Blocks:          []BlockView{},
		Zones:           []ZoneView{},
		PendingUnblocks: e.life.PendingUnblocks(),
		PendingTimers:   e.timers.Len(),
	}
	e.store.Each(func(b *model.Block) {
		if !b.Active(now) {
			return
		}
		s.Blocks = append(s.Blocks, BlockView{
			Actor:       b.Actor,
			Kind:        b.Kind.String(),
			StartedAt:   b.StartedAt.UnixMilli(),
			ExpiresAt:   b.ExpiresAt().UnixMilli(),
			RemainingMs: b.Remaining(now).Milliseconds(),
			MarkerID:    b.MarkerID,
		})
	})
	if e.zones != nil {
		for _, id := range e.zones.IDs() {
			s.Zones = append(s.Zones, ZoneView{ID: id, Radius: e.zones.Radius()})
		}
	}
	return s
}

// Subscriptions lists the EVENT kinds that can change engine state under the
// current config. The host may skip sending the rest.
func (e *Engine) Subscriptions() []string {
	c := e.cfg
	set := map[string]bool{}
	if c.Raid.Block.Enabled {
		if c.Raid.BlockWhen.Damage.Enabled {
			set[protocol.EventStructureDamage] = true
		}
		if c.Raid.BlockWhen.Destroy {
			set[protocol.EventStructureDestroy] = true
		}
	}
	combat := c.Combat.BlockWhen
	if c.Combat.Block.Enabled && (combat.GiveDamage.Enabled || combat.TakeDamage.Enabled) {
		set[protocol.EventPlayerAttack] = true
	}
	for _, u := range []struct {
		enabled bool
		when    bool
		event   string
	}{
		{c.Raid.Block.Enabled, c.Raid.UnblockWhen.Death, protocol.EventPlayerDeath},
		{c.Raid.Block.Enabled, c.Raid.UnblockWhen.Wakeup, protocol.EventPlayerWakeup},
		{c.Raid.Block.Enabled, c.Raid.UnblockWhen.Respawn, protocol.EventPlayerRespawn},
		{c.Combat.Block.Enabled, c.Combat.UnblockWhen.Death, protocol.EventPlayerDeath},
		{c.Combat.Block.Enabled, c.Combat.UnblockWhen.Wakeup, protocol.EventPlayerWakeup},
		{c.Combat.Block.Enabled, c.Combat.UnblockWhen.Respawn, protocol.EventPlayerRespawn},
	} {
		if u.enabled && u.when {
			set[u.event] = true
		}
	}
	if c.Notifications.UI && (c.Raid.Block.Enabled || c.Combat.Block.Enabled) {
		set[protocol.EventPlayerConnected] = true
	}
	if e.zones != nil {
		if e.zoneEnter {
			set[protocol.EventZoneEnter] = true
		}
		if e.zoneLeave {
			set[protocol.EventZoneExit] = true
		}
	}
	if e.social.Options().Clans {
		set[protocol.EventClanCreate] = true
		set[protocol.EventClanUpdate] = true
		set[protocol.EventClanDestroy] = true
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
