// Package policy decides which actors a structure hit or a player attack blocks.
package policy

import (
	"strings"

	"noescape.gg/internal/sim/engine/feature/social"
	"noescape.gg/internal/sim/engine/kernel/model"
	"noescape.gg/internal/sim/engine/logic/mathx"
	"noescape.gg/internal/sim/host"
)

type DamageRule struct {
	Enabled      bool
	MinCondition float64
	MinDamage    float64
}

type RaidConfig struct {
	Enabled        bool
	Distance       float64
	DamageTypes    []string
	IncludePrefabs []string
	ExcludePrefabs []string
	ExcludeWeapons []string

	OnDamage  DamageRule
	OnDestroy bool
	Unowned   bool

	Everyone           bool
	Owner              bool
	CupboardAuthorized bool
	Clan               bool
	Friends            bool
	Raider             bool

	ExceptOwner   bool
	ExceptFriends bool
	ExceptClan    bool
}

// AnyMode reports whether some block mode is configured.
func (c RaidConfig) AnyMode() bool { return c.Everyone || c.Owner || c.Raider }

type CombatConfig struct {
	Enabled     bool
	DamageTypes []string
	Give        DamageRule
	Take        DamageRule
	NPCGive     bool
	NPCTake     bool
}

type Entity struct {
	ID            string
	Prefab        string
	OwnerID       string
	BuildingBlock bool
	Twig          bool
	Health        float64
	MaxHealth     float64
	Pos           mathx.Vec3
}

// Initiator is what dealt the hit: a player, or an entity (trap, turret, rocket) owned by one.
type Initiator struct {
	PlayerID string
	OwnerID  string
}

type StructureHit struct {
	Entity    Entity
	Initiator Initiator
	Weapon    string
	Damage    map[string]float64
	HitPos    mathx.Vec3
}

type Combatant struct {
	ID        string
	Player    bool
	NPC       bool
	Health    float64
	MaxHealth float64
}

type Attack struct {
	Attacker Combatant
	Target   Combatant
	Damage   map[string]float64
}

type Blocker interface {
	Start(actor string, kind model.Kind, pos mathx.Vec3, createZone bool) bool
	IsActive(actor string, kind model.Kind) bool
}

type Grouper interface {
	Group(actor string) social.Group
}

type Evaluator struct {
	raid    RaidConfig
	combat  CombatConfig
	world   host.World
	groups  Grouper
	blocker Blocker

	prefabs map[string]bool
	weapons map[string]bool
}

func New(raid RaidConfig, combat CombatConfig, world host.World, groups Grouper, blocker Blocker) *Evaluator {
	return &Evaluator{
		raid:    raid,
		combat:  combat,
		world:   world,
		groups:  groups,
		blocker: blocker,
		prefabs: map[string]bool{},
		weapons: map[string]bool{},
	}
}

func (e *Evaluator) Raid() RaidConfig { return e.raid }

func (e *Evaluator) Combat() CombatConfig { return e.combat }

// ShouldBlockEscape reports whether target is blocked by a raid started by source.
// group is the source's social group, or nil when exemptions do not apply.
func (e *Evaluator) ShouldBlockEscape(target, source string, group social.Group) bool {
	if target == source {
		return e.raid.AnyMode() && !e.raid.ExceptOwner
	}
	if group.Has(target) {
		return false
	}
	return true
}

// IsEntityBlocked reports whether damage to ent can raid-block anyone.
func (e *Evaluator) IsEntityBlocked(ent Entity) bool {
	if ent.BuildingBlock {
		return !ent.Twig
	}
	if ent.Prefab == "" {
		return false
	}
	if v, ok := e.prefabs[ent.Prefab]; ok {
		return v
	}
	v := containsAny(ent.Prefab, e.raid.IncludePrefabs) && !containsAny(ent.Prefab, e.raid.ExcludePrefabs)
	e.prefabs[ent.Prefab] = v
	return v
}

func (e *Evaluator) IsExcludedWeapon(name string) bool {
	if name == "" {
		return false
	}
	if v, ok := e.weapons[name]; ok {
		return v
	}
	v := containsAny(name, e.raid.ExcludeWeapons)
	e.weapons[name] = v
	return v
}

// IsBuildException reports whether placing prefab stays allowed while raid blocked.
func (e *Evaluator) IsBuildException(prefab string) bool {
	return prefab != "" && containsAny(prefab, e.raid.ExcludePrefabs)
}

func (e *Evaluator) IsRaidDamage(damage map[string]float64) bool {
	return matchesDamage(damage, e.raid.DamageTypes)
}

func (e *Evaluator) IsCombatDamage(damage map[string]float64) bool {
	return matchesDamage(damage, e.combat.DamageTypes)
}

// StructureDamaged handles a hit on an entity and returns the actors it blocked.
func (e *Evaluator) StructureDamaged(hit StructureHit) []string {
	if !e.raid.Enabled || !e.raid.OnDamage.Enabled {
		return nil
	}
	if !e.qualifies(hit) {
		return nil
	}
	pct := mathx.HealthPercent(hit.Entity.Health, hit.Entity.MaxHealth, total(hit.Damage))
	if pct > e.raid.OnDamage.MinCondition {
		return nil
	}
	return e.structureAttack(hit)
}

// StructureDestroyed handles the killing blow on an entity.
func (e *Evaluator) StructureDestroyed(hit StructureHit) []string {
	if !e.raid.Enabled || !e.raid.OnDestroy {
		return nil
	}
	if !e.qualifies(hit) {
		return nil
	}
	return e.structureAttack(hit)
}

func (e *Evaluator) qualifies(hit StructureHit) bool {
	if !e.IsRaidDamage(hit.Damage) {
		return false
	}
	if e.IsExcludedWeapon(hit.Weapon) {
		return false
	}
	return e.IsEntityBlocked(hit.Entity)
}

func (e *Evaluator) resolveSource(in Initiator) (string, bool) {
	if host.IsPlayerID(in.PlayerID) {
		return in.PlayerID, true
	}
	if !host.IsPlayerID(in.OwnerID) || e.world == nil {
		return "", false
	}
	if _, ok := e.world.Player(in.OwnerID); !ok {
		return "", false
	}
	return in.OwnerID, true
}

func (e *Evaluator) structureAttack(hit StructureHit) []string {
	source, ok := e.resolveSource(hit.Initiator)
	if !ok {
		return nil
	}
	owner := hit.Entity.OwnerID
	if !host.IsPlayerID(owner) && !e.raid.Unowned {
		return nil
	}

	var sourceGroup social.Group
	if (e.raid.ExceptClan || e.raid.ExceptFriends) && e.groups != nil {
		sourceGroup = e.groups.Group(source)
	}

	r := &run{e: e, pos: hit.Entity.Pos, seen: map[string]bool{}}
	switch {
	case e.raid.Everyone:
		e.blockAll(r, owner, source, sourceGroup)
	default:
		if e.raid.Owner {
			e.ownerBlock(r, owner, source, sourceGroup)
		}
		if e.raid.Raider {
			e.raiderBlock(r, owner, source, sourceGroup)
		}
	}
	return r.blocked
}

type run struct {
	e       *Evaluator
	pos     mathx.Vec3
	seen    map[string]bool
	blocked []string
}

func (r *run) start(actor string) {
	if r.e.blocker == nil || !host.IsPlayerID(actor) {
		return
	}
	if r.e.blocker.Start(actor, model.KindRaid, r.pos, true) && !r.seen[actor] {
		r.seen[actor] = true
		r.blocked = append(r.blocked, actor)
	}
}

// nearby lists non-NPC players around the hit.
func (e *Evaluator) nearby(pos mathx.Vec3) []string {
	if e.world == nil {
		return nil
	}
	var out []string
	for _, id := range e.world.Nearby(pos, e.raid.Distance) {
		p, ok := e.world.Player(id)
		if !ok || p.NPC {
			continue
		}
		out = append(out, id)
	}
	return out
}

func (e *Evaluator) blockAll(r *run, owner, source string, sourceGroup social.Group) {
	if e.ShouldBlockEscape(owner, source, sourceGroup) {
		r.start(source)
	}
	var g social.Group
	if owner == source || sourceGroup.Has(owner) {
		g = sourceGroup
	}
	for _, id := range e.nearby(r.pos) {
		if id == source {
			continue
		}
		if e.blocker != nil && e.blocker.IsActive(id, model.KindRaid) {
			r.start(id)
			continue
		}
		if e.ShouldBlockEscape(id, source, g) {
			r.start(id)
		}
	}
}

func (e *Evaluator) ownerBlock(r *run, owner, source string, sourceGroup social.Group) {
	if !e.ShouldBlockEscape(owner, source, sourceGroup) {
		return
	}
	targetGroup := social.Group{}
	if (e.raid.Clan || e.raid.Friends) && e.groups != nil && host.IsPlayerID(owner) {
		targetGroup = e.groups.Group(owner)
	}
	if e.raid.CupboardAuthorized {
		targetGroup = e.withCupboards(r.pos, owner, targetGroup)
	}
	for _, id := range e.nearby(r.pos) {
		if id == owner || targetGroup.Has(id) {
			r.start(id)
		}
	}
}

// withCupboards adds players authorized on nearby cupboards that belong to the
// owner or the owner's group.
func (e *Evaluator) withCupboards(pos mathx.Vec3, owner string, group social.Group) social.Group {
	if e.world == nil {
		return group
	}
	out := social.Group{}
	for id := range group {
		out[id] = struct{}{}
	}
	for _, cup := range e.world.Cupboards(pos, e.raid.Distance) {
		if cup.OwnerID != owner && !group.Has(cup.OwnerID) {
			continue
		}
		for _, id := range cup.Authorized {
			out[id] = struct{}{}
		}
	}
	return out
}

func (e *Evaluator) raiderBlock(r *run, owner, source string, sourceGroup social.Group) {
	if !e.ShouldBlockEscape(owner, source, sourceGroup) {
		return
	}
	g := sourceGroup
	if g == nil && (e.raid.Clan || e.raid.Friends) && e.groups != nil {
		g = e.groups.Group(source)
	}
	for _, id := range e.nearby(r.pos) {
		if id == source || g.Has(id) {
			r.start(id)
		}
	}
}

// PlayerAttacked handles one player-vs-player hit and returns the actors it combat-blocked.
func (e *Evaluator) PlayerAttacked(a Attack) []string {
	c := e.combat
	if !c.Enabled || !a.Target.Player {
		return nil
	}
	if a.Target.NPC && !c.NPCGive {
		return nil
	}
	if a.Attacker.NPC && !c.NPCTake {
		return nil
	}
	if !e.IsCombatDamage(a.Damage) {
		return nil
	}
	dmg := total(a.Damage)
	pct := mathx.HealthPercent(a.Target.Health, a.Target.MaxHealth, dmg)

	var out []string
	startCombat := func(actor string) {
		if e.blocker == nil || !host.IsPlayerID(actor) {
			return
		}
		if e.blocker.Start(actor, model.KindCombat, mathx.Vec3{}, false) {
			out = append(out, actor)
		}
	}
	if c.Take.Enabled && pct <= c.Take.MinCondition && dmg >= c.Take.MinDamage {
		startCombat(a.Target.ID)
	}
	if c.Give.Enabled && pct <= c.Give.MinCondition && dmg >= c.Give.MinDamage && a.Attacker.ID != a.Target.ID {
		startCombat(a.Attacker.ID)
	}
	return out
}

func containsAny(name string, parts []string) bool {
	for _, p := range parts {
		if p != "" && strings.Contains(name, p) {
			return true
		}
	}
	return false
}

func matchesDamage(damage map[string]float64, allowed []string) bool {
	for name, amount := range damage {
		if amount <= 0 {
			continue
		}
		for _, t := range allowed {
			if strings.EqualFold(name, t) {
				return true
			}
		}
	}
	return false
}

func total(damage map[string]float64) float64 {
	var sum float64
	for _, v := range damage {
		if v > 0 {
			sum += v
		}
	}
	return sum
}
