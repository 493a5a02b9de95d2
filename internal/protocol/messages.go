package protocol

import "noescape.gg/internal/sim/engine/logic/mathx"

type Vec3 = mathx.Vec3

// HELLO (host -> engine)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ServerID        string `json:"server_id"`
	Token           string `json:"token,omitempty"`
}

// WELCOME (engine -> host)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	// Subscriptions lists the EVENT kinds the engine acts on; the host may skip the rest.
	Subscriptions []string `json:"subscriptions"`
	BlockTypes    []string `json:"block_types"`
	Permissions   []string `json:"permissions"`
	ConfigDigest  string   `json:"config_digest"`
}

type PlayerState struct {
	ID        string  `json:"id"`
	Pos       Vec3    `json:"pos"`
	Health    float64 `json:"health"`
	MaxHealth float64 `json:"max_health"`
	NPC       bool    `json:"npc,omitempty"`
	Connected bool    `json:"connected"`
}

type PermissionGrant struct {
	Actor string   `json:"actor"`
	Perms []string `json:"perms"`
	// Replace drops the actor's previous grants first; otherwise Perms are added.
	Replace bool     `json:"replace,omitempty"`
	Revoke  []string `json:"revoke,omitempty"`
}

type FriendList struct {
	Actor   string   `json:"actor"`
	Friends []string `json:"friends"`
}

type ClanState struct {
	Tag     string   `json:"tag"`
	Members []string `json:"members"`
}

type CupboardState struct {
	ID         string   `json:"id"`
	OwnerID    string   `json:"owner_id"`
	Pos        Vec3     `json:"pos"`
	Authorized []string `json:"authorized,omitempty"`
}

// STATE (host -> engine): incremental mirror of the host's lookups.
type StateMsg struct {
	Type            string            `json:"type"`
	Players         []PlayerState     `json:"players,omitempty"`
	RemovePlayers   []string          `json:"remove_players,omitempty"`
	Permissions     []PermissionGrant `json:"permissions,omitempty"`
	Friends         []FriendList      `json:"friends,omitempty"`
	Clans           []ClanState       `json:"clans,omitempty"`
	RemoveClans     []string          `json:"remove_clans,omitempty"`
	Cupboards       []CupboardState   `json:"cupboards,omitempty"`
	RemoveCupboards []string          `json:"remove_cupboards,omitempty"`
}

type EntityState struct {
	ID            string  `json:"id,omitempty"`
	Prefab        string  `json:"prefab,omitempty"`
	OwnerID       string  `json:"owner_id,omitempty"`
	BuildingBlock bool    `json:"building_block,omitempty"`
	Twig          bool    `json:"twig,omitempty"`
	Health        float64 `json:"health"`
	MaxHealth     float64 `json:"max_health"`
	Pos           Vec3    `json:"pos"`
}

type InitiatorState struct {
	PlayerID string `json:"player_id,omitempty"`
	OwnerID  string `json:"owner_id,omitempty"`
}

type CombatantState struct {
	ID        string  `json:"id"`
	Player    bool    `json:"player"`
	NPC       bool    `json:"npc,omitempty"`
	Health    float64 `json:"health"`
	MaxHealth float64 `json:"max_health"`
}

// EVENT (host -> engine)
type EventMsg struct {
	Type      string             `json:"type"`
	Event     string             `json:"event"`
	Actor     string             `json:"actor,omitempty"`
	Entity    *EntityState       `json:"entity,omitempty"`
	Initiator *InitiatorState    `json:"initiator,omitempty"`
	Attacker  *CombatantState    `json:"attacker,omitempty"`
	Target    *CombatantState    `json:"target,omitempty"`
	Weapon    string             `json:"weapon,omitempty"`
	Damage    map[string]float64 `json:"damage,omitempty"`
	HitPos    *Vec3              `json:"hit_pos,omitempty"`
	ZoneID    string             `json:"zone_id,omitempty"`
	Tag       string             `json:"tag,omitempty"`
}

// GATE (host -> engine)
type GateMsg struct {
	Type          string `json:"type"`
	ReqID         string `json:"req_id"`
	Actor         string `json:"actor"`
	Action        string `json:"action"`
	EntityDamaged bool   `json:"entity_damaged,omitempty"`
	Prefab        string `json:"prefab,omitempty"`
}

type GateResultMsg struct {
	Type    string `json:"type"`
	ReqID   string `json:"req_id"`
	Allowed bool   `json:"allowed"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// QUERY (host -> engine)
type QueryMsg struct {
	Type  string `json:"type"`
	ReqID string `json:"req_id"`
	Actor string `json:"actor"`
	Kind  string `json:"kind,omitempty"`
}

type QueryResultMsg struct {
	Type              string `json:"type"`
	ReqID             string `json:"req_id"`
	Actor             string `json:"actor"`
	Blocked           bool   `json:"blocked"`
	RaidRemainingMs   int64  `json:"raid_remaining_ms"`
	CombatRemainingMs int64  `json:"combat_remaining_ms"`
	Message           string `json:"message,omitempty"`
}

// STOP (host -> engine)
type StopMsg struct {
	Type  string `json:"type"`
	ReqID string `json:"req_id,omitempty"`
	Actor string `json:"actor"`
	Kind  string `json:"kind,omitempty"`
}

type StopResultMsg struct {
	Type    string `json:"type"`
	ReqID   string `json:"req_id,omitempty"`
	Actor   string `json:"actor"`
	Stopped int    `json:"stopped"`
}

// NOTIFY (engine -> host)
type NotifyMsg struct {
	Type        string `json:"type"`
	Op          string `json:"op"`
	Actor       string `json:"actor,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Text        string `json:"text,omitempty"`
	Label       string `json:"label,omitempty"`
	ExpiresAtMs int64  `json:"expires_at_ms,omitempty"`
	MarkerID    string `json:"marker_id,omitempty"`
	Pos         *Vec3  `json:"pos,omitempty"`
	Icon        string `json:"icon,omitempty"`
	DurationMs  int64  `json:"duration_ms,omitempty"`
	Background  string `json:"background,omitempty"`
	TextColor   string `json:"text_color,omitempty"`
}

// ZONE (engine -> host)
type ZoneMsg struct {
	Type   string  `json:"type"`
	Op     string  `json:"op"`
	ZoneID string  `json:"zone_id"`
	Radius float64 `json:"radius,omitempty"`
	Pos    *Vec3   `json:"pos,omitempty"`
}

// BLOCK (engine -> host): start/stop broadcast for other plugins.
type BlockMsg struct {
	Type   string `json:"type"`
	Actor  string `json:"actor"`
	Kind   string `json:"kind"`
	Active bool   `json:"active"`
	Reason string `json:"reason"`
}

type ErrorMsg struct {
	Type    string `json:"type"`
	ReqID   string `json:"req_id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
