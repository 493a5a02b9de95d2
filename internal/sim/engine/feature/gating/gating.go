// Package gating answers whether a blocked actor may perform a game action.
package gating

import (
	"strings"
	"time"

	"noescape.gg/internal/sim/engine/feature/messages"
	"noescape.gg/internal/sim/engine/kernel/model"
	"noescape.gg/internal/sim/host"
)

const (
	ActionRepair = "repair"
	ActionBuild  = "build"
)

func DefaultTypes() []string {
	return []string{
		"remove", "tp", "bank", "trade", "recycle", "shop", "bgrade", "build",
		"repair", "upgrade", "vend", "kit", "assignbed", "craft", "mailbox",
	}
}

// Permission is the grant that opts an actor into gating of action while blocked for kind.
func Permission(kind model.Kind, action string) string {
	return "noescape." + kind.String() + "." + action + "block"
}

// Permissions lists every gating grant for types, raid first.
func Permissions(types []string) []string {
	out := make([]string, 0, 2*len(types))
	for _, k := range model.Kinds {
		for _, t := range types {
			out = append(out, Permission(k, t))
		}
	}
	return out
}

type Config struct {
	Types  []string
	Raid   bool
	Combat bool
}

type Request struct {
	Actor  string
	Action string
	// EntityDamaged is set for repairs of an entity below max health.
	EntityDamaged bool
	Prefab        string
}

type Result struct {
	Allowed bool
	Kind    model.Kind
	Message string
}

type Querier interface {
	Remaining(actor string, kind model.Kind) time.Duration
}

type DenialSink interface {
	RecordDenial(d model.GateDenial)
}

type Gate struct {
	cfg       Config
	types     map[string]bool
	perms     host.Permissions
	q         Querier
	catalog   *messages.Catalog
	exception func(prefab string) bool
	now       func() time.Time

	Sink DenialSink
}

// New builds a gate. With no permission service every actor is treated as opted in.
func New(cfg Config, perms host.Permissions, q Querier, catalog *messages.Catalog, buildException func(string) bool, now func() time.Time) *Gate {
	types := make(map[string]bool, len(cfg.Types))
	for _, t := range cfg.Types {
		types[normalize(t)] = true
	}
	if catalog == nil {
		catalog = messages.New(messages.DefaultTemplates())
	}
	if now == nil {
		now = time.Now
	}
	return &Gate{cfg: cfg, types: types, perms: perms, q: q, catalog: catalog, exception: buildException, now: now}
}

func normalize(action string) string { return strings.ToLower(strings.TrimSpace(action)) }

func (g *Gate) Gated(action string) bool { return g.types[normalize(action)] }

func (g *Gate) enabled(kind model.Kind) bool {
	if kind == model.KindCombat {
		return g.cfg.Combat
	}
	return g.cfg.Raid
}

func (g *Gate) optedIn(actor string, kind model.Kind, action string) bool {
	if g.perms == nil {
		return true
	}
	return g.perms.HasPermission(actor, Permission(kind, action))
}

// Check evaluates raid before combat and never fails; unknown actors are allowed.
func (g *Gate) Check(req Request) Result {
	action := normalize(req.Action)
	if !g.types[action] || !host.IsPlayerID(req.Actor) || g.q == nil {
		return Result{Allowed: true}
	}
	for _, kind := range model.Kinds {
		if !g.enabled(kind) || !g.optedIn(req.Actor, kind, action) {
			continue
		}
		remaining := g.q.Remaining(req.Actor, kind)
		if remaining <= 0 {
			continue
		}
		if action == ActionRepair && req.EntityDamaged {
			return Result{Allowed: true}
		}
		if action == ActionBuild && g.exception != nil && g.exception(req.Prefab) {
			return Result{Allowed: true}
		}
		msg := g.catalog.Blocked(kind, remaining)
		if g.Sink != nil {
			g.Sink.RecordDenial(model.GateDenial{At: g.now(), Actor: req.Actor, Kind: kind.String(), Action: action, Message: msg})
		}
		return Result{Allowed: false, Kind: kind, Message: msg}
	}
	return Result{Allowed: true}
}

// Message returns the blocked text for the actor's first active block, or "".
func (g *Gate) Message(actor string) string {
	if g.q == nil {
		return ""
	}
	for _, kind := range model.Kinds {
		if !g.enabled(kind) {
			continue
		}
		if remaining := g.q.Remaining(actor, kind); remaining > 0 {
			return g.catalog.Blocked(kind, remaining)
		}
	}
	return ""
}
