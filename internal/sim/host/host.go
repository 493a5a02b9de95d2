// Package host declares the lookups and side effects the engine needs from the game server.
// Every call is made from the engine goroutine.
package host

import (
	"time"

	"noescape.gg/internal/sim/engine/logic/mathx"
)

type Player struct {
	ID        string     `json:"id"`
	Pos       mathx.Vec3 `json:"pos"`
	Health    float64    `json:"health"`
	MaxHealth float64    `json:"max_health"`
	NPC       bool       `json:"npc,omitempty"`
	Connected bool       `json:"connected"`
}

type Cupboard struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"owner_id"`
	Pos        mathx.Vec3 `json:"pos"`
	Authorized []string   `json:"authorized,omitempty"`
}

// IsPlayerID reports whether id names a real player rather than "no owner".
func IsPlayerID(id string) bool {
	return id != "" && id != "0"
}

type World interface {
	Player(id string) (Player, bool)
	// Nearby lists player IDs within radius of pos. Sleeping and NPC players are included.
	Nearby(pos mathx.Vec3, radius float64) []string
	Cupboards(pos mathx.Vec3, radius float64) []Cupboard
}

type Permissions interface {
	HasPermission(actor, perm string) bool
}

// Friends returns ok=false when the friends service has no answer for actor.
type Friends interface {
	FriendsOf(actor string) ([]string, bool)
}

type Clans interface {
	ClanOf(actor string) (string, bool)
	MembersOf(tag string) ([]string, bool)
}

type Zones interface {
	CreateOrUpdateZone(id string, radius float64, pos mathx.Vec3)
	EraseZone(id string)
}

type Notifier interface {
	Chat(actor, text string)
	ShowCountdown(actor, kind string, expiresAt time.Time, label string)
	HideCountdown(actor, kind string)
	// BlockChanged broadcasts start/stop to other plugins on the host.
	BlockChanged(actor, kind string, active bool, reason string)
}

type Announcer interface {
	Announce(actor, text, background, textColor string)
}

type Mapper interface {
	AddMarker(id string, pos mathx.Vec3, icon string, duration time.Duration) bool
	RemoveMarker(id string)
}

// Vetoer can reject a block start before it takes effect.
type Vetoer interface {
	AllowBlock(actor, kind string) bool
}

type NopNotifier struct{}

func (NopNotifier) Chat(string, string) {}
func (NopNotifier) ShowCountdown(string, string, time.Time, string) {}
func (NopNotifier) HideCountdown(string, string) {}
func (NopNotifier) BlockChanged(string, string, bool, string) {}
