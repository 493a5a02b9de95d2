package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello       = "HELLO"
	TypeWelcome     = "WELCOME"
	TypeState       = "STATE"
	TypeEvent       = "EVENT"
	TypeGate        = "GATE"
	TypeGateResult  = "GATE_RESULT"
	TypeQuery       = "QUERY"
	TypeQueryResult = "QUERY_RESULT"
	TypeStop        = "STOP"
	TypeStopResult  = "STOP_RESULT"
	TypeNotify      = "NOTIFY"
	TypeZone        = "ZONE"
	TypeBlock       = "BLOCK"
	TypeError       = "ERROR"
)

// Game events carried by EVENT.
const (
	EventStructureDamage  = "STRUCTURE_DAMAGE"
	EventStructureDestroy = "STRUCTURE_DESTROY"
	EventPlayerAttack     = "PLAYER_ATTACK"
	EventPlayerDeath      = "PLAYER_DEATH"
	EventPlayerWakeup     = "PLAYER_WAKEUP"
	EventPlayerRespawn    = "PLAYER_RESPAWN"
	EventPlayerConnected  = "PLAYER_CONNECTED"
	EventZoneEnter        = "ZONE_ENTER"
	EventZoneExit         = "ZONE_EXIT"
	EventClanCreate       = "CLAN_CREATE"
	EventClanUpdate       = "CLAN_UPDATE"
	EventClanDestroy      = "CLAN_DESTROY"
)

// NOTIFY ops.
const (
	NotifyChat          = "chat"
	NotifyAnnounce      = "announce"
	NotifyCountdownShow = "countdown_show"
	NotifyCountdownHide = "countdown_hide"
	NotifyMarkerAdd     = "marker_add"
	NotifyMarkerRemove  = "marker_remove"
)

// ZONE ops.
const (
	ZoneCreate = "create"
	ZoneErase  = "erase"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	ReqID           string `json:"req_id,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
