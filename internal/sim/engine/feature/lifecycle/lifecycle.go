// Package lifecycle starts, refreshes, expires and stops blocks.
package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"noescape.gg/internal/sim/engine/feature/blockstate"
	"noescape.gg/internal/sim/engine/feature/messages"
	"noescape.gg/internal/sim/engine/feature/zones"
	"noescape.gg/internal/sim/engine/kernel/model"
	"noescape.gg/internal/sim/engine/logic/mathx"
	"noescape.gg/internal/sim/engine/logic/timers"
	"noescape.gg/internal/sim/host"
)

const PermDisable = "noescape.disable"

type Trigger string

const (
	TriggerDeath   Trigger = "death"
	TriggerWakeup  Trigger = "wakeup"
	TriggerRespawn Trigger = "respawn"
)

type KindConfig struct {
	Enabled          bool
	Duration         time.Duration
	Notify           bool
	UnblockOnDeath   bool
	UnblockOnWakeup  bool
	UnblockOnRespawn bool
}

func (k KindConfig) unblocks(tr Trigger) bool {
	switch tr {
	case TriggerDeath:
		return k.UnblockOnDeath
	case TriggerWakeup:
		return k.UnblockOnWakeup
	case TriggerRespawn:
		return k.UnblockOnRespawn
	}
	return false
}

type MapConfig struct {
	Enabled  bool
	Icon     string
	Duration time.Duration
}

type AnnounceConfig struct {
	Enabled    bool
	Background string
	TextColor  string
}

type Config struct {
	Raid         KindConfig
	Combat       KindConfig
	Zones        bool
	Map          MapConfig
	UI           bool
	Chat         bool
	Announce     AnnounceConfig
	UnblockDelay time.Duration
}

func (c Config) Kind(k model.Kind) KindConfig {
	if k == model.KindCombat {
		return c.Combat
	}
	if k == model.KindRaid {
		return c.Raid
	}
	return KindConfig{}
}

type EventSink interface {
	RecordBlock(ev model.BlockEvent)
}

type Deps struct {
	Store       *blockstate.Store
	Timers      *timers.Scheduler
	Zones       *zones.Tracker
	Catalog     *messages.Catalog
	World       host.World
	Permissions host.Permissions
	Notifier    host.Notifier
	Announcer   host.Announcer
	Mapper      host.Mapper
	Vetoer      host.Vetoer
	Sink        EventSink
	Now         func() time.Time
}

type pendingUnblock struct {
	handle  timers.Handle
	trigger Trigger
}

type Manager struct {
	cfg Config
	d   Deps

	unblocks map[model.Key]pendingUnblock
}

func New(cfg Config, d Deps) *Manager {
	if d.Store == nil {
		d.Store = blockstate.New()
	}
	if d.Timers == nil {
		d.Timers = timers.New()
	}
	if d.Catalog == nil {
		d.Catalog = messages.New(messages.DefaultTemplates())
	}
	if d.Notifier == nil {
		d.Notifier = host.NopNotifier{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	m := &Manager{cfg: cfg, d: d, unblocks: map[model.Key]pendingUnblock{}}
	d.Store.OnEvict = m.evicted
	return m
}

func (m *Manager) Config() Config { return m.cfg }

func (m *Manager) Store() *blockstate.Store { return m.d.Store }

// Start blocks actor for kind, or slides an active block's window to now.
// It reports whether the block is (still) in effect.
func (m *Manager) Start(actor string, kind model.Kind, pos mathx.Vec3, createZone bool) bool {
	kc := m.cfg.Kind(kind)
	if !kc.Enabled || kc.Duration <= 0 || !host.IsPlayerID(actor) {
		return false
	}
	if m.d.Permissions != nil && m.d.Permissions.HasPermission(actor, PermDisable) {
		return false
	}
	if m.d.World != nil {
		if p, ok := m.d.World.Player(actor); ok && p.NPC {
			return false
		}
	}
	if m.d.Vetoer != nil && !m.d.Vetoer.AllowBlock(actor, kind.String()) {
		return false
	}

	now := m.d.Now()
	b := m.d.Store.Get(actor, kind, now)
	reason := model.ReasonRefreshed
	if b == nil {
		b = &model.Block{Actor: actor, Kind: kind}
		reason = model.ReasonStarted
	}
	b.StartedAt = now
	b.Duration = kc.Duration
	b.Pos = pos
	m.d.Timers.Cancel(b.Timer)
	b.Timer = m.d.Timers.At(now.Add(kc.Duration), timers.Key{Kind: timers.KindExpire, Actor: actor, Block: kind})
	m.d.Store.Upsert(b)
	m.cancelUnblock(b.Key())

	m.emit(model.BlockEvent{
		At:        now,
		Actor:     actor,
		Kind:      kind.String(),
		Reason:    reason,
		Duration:  kc.Duration,
		ExpiresAt: b.ExpiresAt(),
		Pos:       &pos,
	})
	m.d.Notifier.BlockChanged(actor, kind.String(), true, string(reason))

	if kc.Notify && (b.LastNotifiedAt.IsZero() || now.Sub(b.LastNotifiedAt) >= kc.Duration/2) {
		m.notifyStart(b, now)
	}
	if m.cfg.UI {
		m.d.Notifier.ShowCountdown(actor, kind.String(), b.ExpiresAt(), m.d.Catalog.UILabel(kind))
	}
	if kind == model.KindRaid && m.cfg.Zones && createZone && m.d.Zones != nil {
		m.d.Zones.Ensure(pos)
	}
	return true
}

func (m *Manager) notifyStart(b *model.Block, now time.Time) {
	b.LastNotifiedAt = now
	text := m.d.Catalog.Notifier(b.Kind, b.Duration)
	if m.cfg.Chat {
		m.d.Notifier.Chat(b.Actor, text)
	}
	if m.cfg.Announce.Enabled && m.d.Announcer != nil {
		m.d.Announcer.Announce(b.Actor, text, m.cfg.Announce.Background, m.cfg.Announce.TextColor)
	}
	if b.Kind == model.KindRaid && m.cfg.Map.Enabled && m.d.Mapper != nil {
		m.removeMarker(b)
		id := uuid.NewString()
		if m.d.Mapper.AddMarker(id, m.actorPos(b), m.cfg.Map.Icon, m.cfg.Map.Duration) {
			b.MarkerID = id
			b.MarkerTimer = m.d.Timers.At(now.Add(m.cfg.Map.Duration), timers.Key{Kind: timers.KindMarker, Actor: b.Actor, Block: b.Kind, ID: id})
		}
	}
}

// actorPos is where the actor stands now, or the block origin when unknown.
func (m *Manager) actorPos(b *model.Block) mathx.Vec3 {
	if m.d.World != nil {
		if p, ok := m.d.World.Player(b.Actor); ok {
			return p.Pos
		}
	}
	return b.Pos
}

func (m *Manager) removeMarker(b *model.Block) {
	if b.MarkerID == "" {
		return
	}
	m.d.Timers.Cancel(b.MarkerTimer)
	if m.d.Mapper != nil {
		m.d.Mapper.RemoveMarker(b.MarkerID)
	}
	b.MarkerID = ""
	b.MarkerTimer = 0
}

// Stop ends the block now. Stopping an inactive block is a no-op.
func (m *Manager) Stop(actor string, kind model.Kind) bool {
	return m.release(actor, kind, model.ReasonStopped, "")
}

func (m *Manager) StopAll(actor string) int {
	n := 0
	for _, k := range model.Kinds {
		if m.Stop(actor, k) {
			n++
		}
	}
	return n
}

func (m *Manager) release(actor string, kind model.Kind, reason model.Reason, trigger Trigger) bool {
	b := m.d.Store.Remove(actor, kind)
	m.cancelUnblock(model.Key{Actor: actor, Kind: kind})
	if b == nil {
		return false
	}
	m.d.Timers.Cancel(b.Timer)
	b.Timer = 0
	if reason != model.ReasonExpired && !b.Active(m.d.Now()) {
		reason = model.ReasonExpired
	}
	m.finish(b, reason, trigger)
	return true
}

// finish runs the completion side effects of a block already removed from the store.
func (m *Manager) finish(b *model.Block, reason model.Reason, trigger Trigger) {
	now := m.d.Now()
	m.removeMarker(b)
	if m.cfg.UI {
		m.d.Notifier.HideCountdown(b.Actor, b.Kind.String())
	}
	if m.cfg.Kind(b.Kind).Notify && m.cfg.Chat {
		m.d.Notifier.Chat(b.Actor, m.d.Catalog.Complete(b.Kind))
	}
	m.d.Notifier.BlockChanged(b.Actor, b.Kind.String(), false, string(reason))
	m.emit(model.BlockEvent{At: now, Actor: b.Actor, Kind: b.Kind.String(), Reason: reason, Trigger: string(trigger)})
}

func (m *Manager) evicted(b *model.Block, _ time.Time) {
	m.d.Timers.Cancel(b.Timer)
	b.Timer = 0
	m.cancelUnblock(b.Key())
	m.finish(b, model.ReasonExpired, "")
}

// HandleExpire ends the block only if f is its current expiry timer.
func (m *Manager) HandleExpire(f timers.Fired) bool {
	b := m.d.Store.Peek(f.Key.Actor, f.Key.Block)
	if b == nil || b.Timer != f.Handle {
		return false
	}
	m.d.Store.Remove(b.Actor, b.Kind)
	b.Timer = 0
	m.cancelUnblock(b.Key())
	m.finish(b, model.ReasonExpired, "")
	return true
}

// OnLifeEvent schedules a stop for every active block the trigger unblocks.
func (m *Manager) OnLifeEvent(actor string, tr Trigger) int {
	now := m.d.Now()
	n := 0
	for _, k := range model.Kinds {
		kc := m.cfg.Kind(k)
		if !kc.Enabled || !kc.unblocks(tr) {
			continue
		}
		if m.d.Store.Get(actor, k, now) == nil {
			continue
		}
		n++
		if m.cfg.UnblockDelay <= 0 {
			m.release(actor, k, model.ReasonUnblocked, tr)
			continue
		}
		key := model.Key{Actor: actor, Kind: k}
		m.cancelUnblock(key)
		h := m.d.Timers.At(now.Add(m.cfg.UnblockDelay), timers.Key{Kind: timers.KindUnblock, Actor: actor, Block: k})
		m.unblocks[key] = pendingUnblock{handle: h, trigger: tr}
	}
	return n
}

func (m *Manager) HandleUnblock(f timers.Fired) bool {
	key := model.Key{Actor: f.Key.Actor, Kind: f.Key.Block}
	p, ok := m.unblocks[key]
	if !ok || p.handle != f.Handle {
		return false
	}
	delete(m.unblocks, key)
	return m.release(key.Actor, key.Kind, model.ReasonUnblocked, p.trigger)
}

func (m *Manager) cancelUnblock(key model.Key) {
	p, ok := m.unblocks[key]
	if !ok {
		return
	}
	m.d.Timers.Cancel(p.handle)
	delete(m.unblocks, key)
}

func (m *Manager) HandleMarker(f timers.Fired) bool {
	b := m.d.Store.Peek(f.Key.Actor, f.Key.Block)
	if b == nil || b.MarkerTimer != f.Handle {
		return false
	}
	b.MarkerTimer = 0
	if m.d.Mapper != nil {
		m.d.Mapper.RemoveMarker(b.MarkerID)
	}
	b.MarkerID = ""
	return true
}

// OnConnected re-sends countdowns for blocks that outlived a disconnect.
func (m *Manager) OnConnected(actor string) int {
	if !m.cfg.UI {
		return 0
	}
	blocks := m.d.Store.ActorBlocks(actor, m.d.Now())
	for _, b := range blocks {
		m.d.Notifier.ShowCountdown(actor, b.Kind.String(), b.ExpiresAt(), m.d.Catalog.UILabel(b.Kind))
	}
	return len(blocks)
}

func (m *Manager) IsActive(actor string, kind model.Kind) bool {
	return m.d.Store.IsActive(actor, kind, m.d.Now())
}

func (m *Manager) Remaining(actor string, kind model.Kind) time.Duration {
	now := m.d.Now()
	return m.d.Store.Get(actor, kind, now).Remaining(now)
}

func (m *Manager) PendingUnblocks() int { return len(m.unblocks) }

func (m *Manager) emit(ev model.BlockEvent) {
	if m.d.Sink != nil {
		m.d.Sink.RecordBlock(ev)
	}
}
