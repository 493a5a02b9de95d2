// Package engine runs the block engine on one goroutine. Every host event,
// query and timer fire is handled there, so the features below need no locks.
package engine

import (
	"log"
	"os"
	"sync/atomic"
	"time"

	"noescape.gg/internal/config"
	"noescape.gg/internal/sim/engine/feature/blockstate"
	"noescape.gg/internal/sim/engine/feature/gating"
	"noescape.gg/internal/sim/engine/feature/lifecycle"
	"noescape.gg/internal/sim/engine/feature/messages"
	"noescape.gg/internal/sim/engine/feature/policy"
	"noescape.gg/internal/sim/engine/feature/social"
	"noescape.gg/internal/sim/engine/feature/zones"
	"noescape.gg/internal/sim/engine/kernel/model"
	"noescape.gg/internal/sim/engine/logic/timers"
	"noescape.gg/internal/sim/host"
)

// Sink receives the audit trail. Calls come from the engine goroutine and must not block.
type Sink interface {
	RecordBlock(ev model.BlockEvent)
	RecordDenial(d model.GateDenial)
	RecordZone(ev model.ZoneEvent)
}

// Deps are the host services. Any of them may be nil; the features that need a
// missing one are turned off in New.
type Deps struct {
	World       host.World
	Permissions host.Permissions
	Friends     host.Friends
	Clans       host.Clans
	Zones       host.Zones
	Notifier    host.Notifier
	Announcer   host.Announcer
	Mapper      host.Mapper
	Vetoer      host.Vetoer

	Sink   Sink
	Logger *log.Logger
	Now    func() time.Time
}

type Engine struct {
	cfg    config.Config
	logger *log.Logger
	now    func() time.Time
	sink   Sink
	world  host.World

	inbox chan Input

	timers  *timers.Scheduler
	store   *blockstate.Store
	catalog *messages.Catalog
	social  *social.Cache
	zones   *zones.Tracker
	life    *lifecycle.Manager
	policy  *policy.Evaluator
	gate    *gating.Gate

	zoneEnter bool
	zoneLeave bool

	handled atomic.Uint64
	fired   atomic.Uint64
	dropped atomic.Uint64
	metrics atomic.Value // Metrics
}

const defaultInbox = 4096

func New(cfg config.Config, d Deps) *Engine {
	if d.Logger == nil {
		d.Logger = log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lmicroseconds)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Notifier == nil {
		d.Notifier = host.NopNotifier{}
	}
	cfg = disableMissing(cfg, d)

	e := &Engine{
		cfg:    cfg,
		logger: d.Logger,
		now:    d.Now,
		sink:   d.Sink,
		world:  d.World,
		inbox:  make(chan Input, defaultInbox),
		timers: timers.New(),
		store:  blockstate.New(),
	}
	e.catalog = messages.New(cfg.Messages.Templates())

	r := cfg.Raid
	e.social = social.New(social.Options{
		Friends: r.BlockWho.Friends || r.BlockExcept.Friends,
		Clans:   r.BlockWho.Clan || r.BlockExcept.Clan,
		TTL:     cfg.Settings.CacheTTL(),
	}, d.Friends, d.Clans, d.Now)

	if r.Zone.Enabled {
		e.zones = zones.New(d.Zones, e.timers, r.Block.Distance, r.Block.Duration.Duration(), d.Now)
		if d.Sink != nil {
			e.zones.OnEvent = d.Sink.RecordZone
		}
		e.zoneEnter = r.Zone.Enter
		e.zoneLeave = r.Zone.Leave
	}

	var blockSink lifecycle.EventSink
	if d.Sink != nil {
		blockSink = d.Sink
	}
	e.life = lifecycle.New(lifecycleConfig(cfg), lifecycle.Deps{
		Store:       e.store,
		Timers:      e.timers,
		Zones:       e.zones,
		Catalog:     e.catalog,
		World:       d.World,
		Permissions: d.Permissions,
		Notifier:    d.Notifier,
		Announcer:   d.Announcer,
		Mapper:      d.Mapper,
		Vetoer:      d.Vetoer,
		Sink:        blockSink,
		Now:         d.Now,
	})

	raid, combat := policyConfig(cfg)
	e.policy = policy.New(raid, combat, d.World, e.social, e.life)

	e.gate = gating.New(gating.Config{
		Types:  cfg.Settings.Block.Types,
		Raid:   cfg.Raid.Block.Enabled,
		Combat: cfg.Combat.Block.Enabled,
	}, d.Permissions, e.life, e.catalog, e.policy.IsBuildException, d.Now)
	if d.Sink != nil {
		e.gate.Sink = d.Sink
	}

	e.publishMetrics()
	return e
}

// disableMissing turns off every feature whose host service is absent, one log line each.
func disableMissing(cfg config.Config, d Deps) config.Config {
	in := cfg.Settings.Integrations
	logf := d.Logger.Printf

	if d.World == nil && cfg.Raid.Block.Enabled {
		cfg.Raid.Block.Enabled = false
		logf("world unavailable; raid blocks disabled")
	}
	needFriends := cfg.Raid.BlockWho.Friends || cfg.Raid.BlockExcept.Friends
	if needFriends && (d.Friends == nil || !in.Friends) {
		cfg.Raid.BlockWho.Friends = false
		cfg.Raid.BlockExcept.Friends = false
		logf("friends unavailable; friend options disabled")
	}
	needClans := cfg.Raid.BlockWho.Clan || cfg.Raid.BlockExcept.Clan
	if needClans && (d.Clans == nil || !in.Clans) {
		cfg.Raid.BlockWho.Clan = false
		cfg.Raid.BlockExcept.Clan = false
		logf("clans unavailable; clan options disabled")
	}
	if cfg.Raid.Zone.Enabled && (d.Zones == nil || !in.ZoneManager) {
		cfg.Raid.Zone.Enabled = false
		logf("zone manager unavailable; raid zones disabled")
	}
	if cfg.Raid.Zone.Enabled && !cfg.Raid.Zone.Enter && !cfg.Raid.Zone.Leave {
		cfg.Raid.Zone.Enabled = false
		logf("zone enter and leave both off; raid zones disabled")
	}
	if cfg.Notifications.GUIAnnouncements.Enabled && (d.Announcer == nil || !in.GUIAnnouncements) {
		cfg.Notifications.GUIAnnouncements.Enabled = false
		logf("announcements unavailable; gui announcements disabled")
	}
	if cfg.Raid.Map.Enabled && (d.Mapper == nil || !in.Map) {
		cfg.Raid.Map.Enabled = false
		logf("map unavailable; raid markers disabled")
	}
	if d.Permissions == nil {
		logf("permissions unavailable; gating applies to every player")
	}
	return cfg
}

func lifecycleConfig(cfg config.Config) lifecycle.Config {
	kind := func(enabled bool, dur config.Seconds, notify bool, u config.UnblockWhen) lifecycle.KindConfig {
		return lifecycle.KindConfig{
			Enabled:          enabled,
			Duration:         dur.Duration(),
			Notify:           notify,
			UnblockOnDeath:   u.Death,
			UnblockOnWakeup:  u.Wakeup,
			UnblockOnRespawn: u.Respawn,
		}
	}
	r, c, n := cfg.Raid, cfg.Combat, cfg.Notifications
	return lifecycle.Config{
		Raid:   kind(r.Block.Enabled, r.Block.Duration, r.Block.Notify, r.UnblockWhen),
		Combat: kind(c.Block.Enabled, c.Block.Duration, c.Block.Notify, c.UnblockWhen),
		Zones:  r.Zone.Enabled,
		Map: lifecycle.MapConfig{
			Enabled:  r.Map.Enabled,
			Icon:     r.Map.Icon,
			Duration: r.Map.Duration.Duration(),
		},
		UI:   n.UI,
		Chat: n.Chat,
		Announce: lifecycle.AnnounceConfig{
			Enabled:    n.GUIAnnouncements.Enabled,
			Background: n.GUIAnnouncements.BackgroundColor,
			TextColor:  n.GUIAnnouncements.TextColor,
		},
		UnblockDelay: cfg.Settings.UnblockDelay.Duration(),
	}
}

func policyConfig(cfg config.Config) (policy.RaidConfig, policy.CombatConfig) {
	r, c := cfg.Raid, cfg.Combat
	raid := policy.RaidConfig{
		Enabled:        r.Block.Enabled,
		Distance:       r.Block.Distance,
		DamageTypes:    r.Block.DamageTypes,
		IncludePrefabs: r.Block.IncludePrefabs,
		ExcludePrefabs: r.Block.ExcludePrefabs,
		ExcludeWeapons: r.Block.ExcludeWeapons,
		OnDamage: policy.DamageRule{
			Enabled:      r.BlockWhen.Damage.Enabled,
			MinCondition: r.BlockWhen.Damage.MinCondition,
		},
		OnDestroy:          r.BlockWhen.Destroy,
		Unowned:            r.BlockWhen.Unowned,
		Everyone:           r.BlockWho.Everyone,
		Owner:              r.BlockWho.Owner,
		CupboardAuthorized: r.BlockWho.CupboardAuthorized,
		Clan:               r.BlockWho.Clan,
		Friends:            r.BlockWho.Friends,
		Raider:             r.BlockWho.Raider,
		ExceptOwner:        r.BlockExcept.Owner,
		ExceptFriends:      r.BlockExcept.Friends,
		ExceptClan:         r.BlockExcept.Clan,
	}
	rule := func(d config.DamageCondition) policy.DamageRule {
		return policy.DamageRule{Enabled: d.Enabled, MinCondition: d.MinCondition, MinDamage: d.MinDamage}
	}
	combat := policy.CombatConfig{
		Enabled:     c.Block.Enabled,
		DamageTypes: c.Block.DamageTypes,
		Give:        rule(c.BlockWhen.GiveDamage),
		Take:        rule(c.BlockWhen.TakeDamage),
		NPCGive:     c.BlockWhen.NPCGiveDamage,
		NPCTake:     c.BlockWhen.NPCTakeDamage,
	}
	return raid, combat
}

// Config returns the effective configuration, after missing services were accounted for.
func (e *Engine) Config() config.Config { return e.cfg }

func (e *Engine) Catalog() *messages.Catalog { return e.catalog }

// BlockTypes lists the gated actions.
func (e *Engine) BlockTypes() []string {
	return append([]string(nil), e.cfg.Settings.Block.Types...)
}

// Permissions lists every permission the engine checks.
func (e *Engine) Permissions() []string {
	return append([]string{lifecycle.PermDisable}, gating.Permissions(e.cfg.Settings.Block.Types)...)
}
