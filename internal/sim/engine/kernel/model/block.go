package model

import (
	"strings"
	"time"

	"noescape.gg/internal/sim/engine/logic/mathx"
)

type Kind uint8

const (
	KindRaid Kind = iota + 1
	KindCombat
)

var Kinds = []Kind{KindRaid, KindCombat}

func (k Kind) String() string {
	switch k {
	case KindRaid:
		return "raid"
	case KindCombat:
		return "combat"
	default:
		return ""
	}
}

func (k Kind) Valid() bool { return k == KindRaid || k == KindCombat }

func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "raid":
		return KindRaid, true
	case "combat":
		return KindCombat, true
	default:
		return 0, false
	}
}

type Key struct {
	Actor string
	Kind  Kind
}

// Block is a time-boxed restriction on one actor for one kind.
// It is owned by the block store; other components address it by Key.
type Block struct {
	Actor     string
	Kind      Kind
	StartedAt time.Time
	Duration  time.Duration
	Pos       mathx.Vec3

	// LastNotifiedAt is zero until the first start notification went out.
	LastNotifiedAt time.Time

	// Timer is the scheduler handle of the pending expiry (0 = none).
	Timer uint64

	MarkerID    string
	MarkerTimer uint64
}

func (b *Block) Key() Key { return Key{Actor: b.Actor, Kind: b.Kind} }

func (b *Block) ExpiresAt() time.Time { return b.StartedAt.Add(b.Duration) }

func (b *Block) Active(now time.Time) bool {
	if b == nil {
		return false
	}
	return now.Sub(b.StartedAt) < b.Duration
}

func (b *Block) Remaining(now time.Time) time.Duration {
	if !b.Active(now) {
		return 0
	}
	return b.ExpiresAt().Sub(now)
}

// Reason tags a lifecycle transition in events and logs.
type Reason string

const (
	ReasonStarted   Reason = "started"
	ReasonRefreshed Reason = "refreshed"
	ReasonStopped   Reason = "stopped"
	ReasonExpired   Reason = "expired"
	ReasonUnblocked Reason = "unblocked"
)

// Ended reports whether r closes a block.
func (r Reason) Ended() bool {
	return r == ReasonStopped || r == ReasonExpired || r == ReasonUnblocked
}

type BlockEvent struct {
	At        time.Time     `json:"at"`
	Actor     string        `json:"actor"`
	Kind      string        `json:"kind"`
	Reason    Reason        `json:"reason"`
	Duration  time.Duration `json:"duration_ns,omitempty"`
	ExpiresAt time.Time     `json:"expires_at,omitempty"`
	Pos       *mathx.Vec3   `json:"pos,omitempty"`
	Trigger   string        `json:"trigger,omitempty"`
}

type GateDenial struct {
	At      time.Time `json:"at"`
	Actor   string    `json:"actor"`
	Kind    string    `json:"kind"`
	Action  string    `json:"action"`
	Message string    `json:"message"`
}

type ZoneEvent struct {
	At     time.Time  `json:"at"`
	ZoneID string     `json:"zone_id"`
	Op     string     `json:"op"` // create|refresh|erase
	Pos    mathx.Vec3 `json:"pos"`
	Radius float64    `json:"radius"`
}

const (
	ZoneOpCreate  = "create"
	ZoneOpRefresh = "refresh"
	ZoneOpErase   = "erase"
)
