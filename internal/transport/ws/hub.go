package ws

import (
	"encoding/json"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"noescape.gg/internal/protocol"
	"noescape.gg/internal/sim/engine/logic/mathx"
)

// Hub fans engine side effects out to the connected hosts as NOTIFY, ZONE and
// BLOCK messages. It implements host.Notifier, Announcer, Mapper and Zones.
// Sends never block the engine: a full session queue drops the message.
type Hub struct {
	log *log.Logger

	mu       sync.RWMutex
	sessions map[string]chan []byte

	sent    atomic.Uint64
	dropped atomic.Uint64
}

type HubStats struct {
	Sessions int    `json:"sessions"`
	Sent     uint64 `json:"sent"`
	Dropped  uint64 `json:"dropped"`
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{log: logger, sessions: map[string]chan []byte{}}
}

func (h *Hub) attach(id string, out chan []byte) {
	h.mu.Lock()
	h.sessions[id] = out
	h.mu.Unlock()
}

func (h *Hub) detach(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
}

func (h *Hub) SessionIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	n := len(h.sessions)
	h.mu.RUnlock()
	return HubStats{Sessions: n, Sent: h.sent.Load(), Dropped: h.dropped.Load()}
}

// broadcast reports whether at least one session queued the message.
func (h *Hub) broadcast(v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		if h.log != nil {
			h.log.Printf("hub: marshal: %v", err)
		}
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	ok := false
	for _, out := range h.sessions {
		select {
		case out <- b:
			h.sent.Add(1)
			ok = true
		default:
			h.dropped.Add(1)
		}
	}
	return ok
}

func (h *Hub) notify(m protocol.NotifyMsg) bool {
	m.Type = protocol.TypeNotify
	return h.broadcast(m)
}

func (h *Hub) Chat(actor, text string) {
	h.notify(protocol.NotifyMsg{Op: protocol.NotifyChat, Actor: actor, Text: text})
}

func (h *Hub) ShowCountdown(actor, kind string, expiresAt time.Time, label string) {
	h.notify(protocol.NotifyMsg{
		Op:          protocol.NotifyCountdownShow,
		Actor:       actor,
		Kind:        kind,
		Label:       label,
		ExpiresAtMs: expiresAt.UnixMilli(),
	})
}

func (h *Hub) HideCountdown(actor, kind string) {
	h.notify(protocol.NotifyMsg{Op: protocol.NotifyCountdownHide, Actor: actor, Kind: kind})
}

func (h *Hub) BlockChanged(actor, kind string, active bool, reason string) {
	h.broadcast(protocol.BlockMsg{Type: protocol.TypeBlock, Actor: actor, Kind: kind, Active: active, Reason: reason})
}

func (h *Hub) Announce(actor, text, background, textColor string) {
	h.notify(protocol.NotifyMsg{
		Op:         protocol.NotifyAnnounce,
		Actor:      actor,
		Text:       text,
		Background: background,
		TextColor:  textColor,
	})
}

// AddMarker reports false when no host is connected to place it.
func (h *Hub) AddMarker(id string, pos mathx.Vec3, icon string, duration time.Duration) bool {
	return h.notify(protocol.NotifyMsg{
		Op:         protocol.NotifyMarkerAdd,
		MarkerID:   id,
		Pos:        &pos,
		Icon:       icon,
		DurationMs: duration.Milliseconds(),
	})
}

func (h *Hub) RemoveMarker(id string) {
	h.notify(protocol.NotifyMsg{Op: protocol.NotifyMarkerRemove, MarkerID: id})
}

func (h *Hub) CreateOrUpdateZone(id string, radius float64, pos mathx.Vec3) {
	h.broadcast(protocol.ZoneMsg{Type: protocol.TypeZone, Op: protocol.ZoneCreate, ZoneID: id, Radius: radius, Pos: &pos})
}

func (h *Hub) EraseZone(id string) {
	h.broadcast(protocol.ZoneMsg{Type: protocol.TypeZone, Op: protocol.ZoneErase, ZoneID: id})
}
