// Package hostmirror keeps the engine's copy of the host lookups (players,
// permissions, friends, clans, cupboards) fed by STATE messages. It is owned by
// the engine goroutine: ApplyState runs there through an engine.Apply input.
package hostmirror

import (
	"sort"
	"strings"

	"noescape.gg/internal/protocol"
	"noescape.gg/internal/sim/engine/logic/mathx"
	"noescape.gg/internal/sim/host"
)

type Mirror struct {
	players   map[string]host.Player
	perms     map[string]map[string]bool
	friends   map[string][]string
	clanOf    map[string]string
	clans     map[string][]string
	cupboards map[string]host.Cupboard
}

func New() *Mirror {
	return &Mirror{
		players:   map[string]host.Player{},
		perms:     map[string]map[string]bool{},
		friends:   map[string][]string{},
		clanOf:    map[string]string{},
		clans:     map[string][]string{},
		cupboards: map[string]host.Cupboard{},
	}
}

func (m *Mirror) Player(id string) (host.Player, bool) {
	p, ok := m.players[id]
	return p, ok
}

func (m *Mirror) Nearby(pos mathx.Vec3, radius float64) []string {
	var out []string
	for id, p := range m.players {
		if mathx.Within(p.Pos, pos, radius) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (m *Mirror) Cupboards(pos mathx.Vec3, radius float64) []host.Cupboard {
	var out []host.Cupboard
	for _, c := range m.cupboards {
		if mathx.Within(c.Pos, pos, radius) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Mirror) HasPermission(actor, perm string) bool {
	return m.perms[actor][strings.ToLower(perm)]
}

// FriendsOf reports ok=false for actors the host never sent a list for.
func (m *Mirror) FriendsOf(actor string) ([]string, bool) {
	list, ok := m.friends[actor]
	if !ok {
		return nil, false
	}
	return append([]string(nil), list...), true
}

func (m *Mirror) ClanOf(actor string) (string, bool) {
	tag, ok := m.clanOf[actor]
	return tag, ok
}

func (m *Mirror) MembersOf(tag string) ([]string, bool) {
	members, ok := m.clans[tag]
	if !ok {
		return nil, false
	}
	return append([]string(nil), members...), true
}

func (m *Mirror) UpsertPlayer(p host.Player) {
	if p.ID == "" {
		return
	}
	m.players[p.ID] = p
}

func (m *Mirror) RemovePlayer(id string) {
	delete(m.players, id)
}

// Grant adds perms to actor, or replaces the actor's grants when replace is set.
func (m *Mirror) Grant(actor string, perms []string, replace bool) {
	set := m.perms[actor]
	if set == nil || replace {
		set = map[string]bool{}
		m.perms[actor] = set
	}
	for _, p := range perms {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			set[p] = true
		}
	}
}

func (m *Mirror) Revoke(actor string, perms []string) {
	set := m.perms[actor]
	for _, p := range perms {
		delete(set, strings.ToLower(strings.TrimSpace(p)))
	}
	if len(set) == 0 {
		delete(m.perms, actor)
	}
}

func (m *Mirror) SetFriends(actor string, friends []string) {
	m.friends[actor] = append([]string(nil), friends...)
}

// SetClan replaces the member list of tag and re-points every member's clan.
func (m *Mirror) SetClan(tag string, members []string) {
	for _, old := range m.clans[tag] {
		if m.clanOf[old] == tag {
			delete(m.clanOf, old)
		}
	}
	m.clans[tag] = append([]string(nil), members...)
	for _, id := range members {
		m.clanOf[id] = tag
	}
}

func (m *Mirror) RemoveClan(tag string) {
	for _, id := range m.clans[tag] {
		if m.clanOf[id] == tag {
			delete(m.clanOf, id)
		}
	}
	delete(m.clans, tag)
}

func (m *Mirror) UpsertCupboard(c host.Cupboard) {
	if c.ID == "" {
		return
	}
	m.cupboards[c.ID] = c
}

func (m *Mirror) RemoveCupboard(id string) {
	delete(m.cupboards, id)
}

type Counts struct {
	Players   int `json:"players"`
	Permitted int `json:"permitted"`
	Friends   int `json:"friends"`
	Clans     int `json:"clans"`
	Cupboards int `json:"cupboards"`
}

func (m *Mirror) Counts() Counts {
	return Counts{
		Players:   len(m.players),
		Permitted: len(m.perms),
		Friends:   len(m.friends),
		Clans:     len(m.clans),
		Cupboards: len(m.cupboards),
	}
}

// ApplyState folds one STATE message into the mirror. Removals run after upserts.
func (m *Mirror) ApplyState(msg protocol.StateMsg) {
	for _, p := range msg.Players {
		m.UpsertPlayer(host.Player{
			ID:        p.ID,
			Pos:       p.Pos,
			Health:    p.Health,
			MaxHealth: p.MaxHealth,
			NPC:       p.NPC,
			Connected: p.Connected,
		})
	}
	for _, g := range msg.Permissions {
		m.Grant(g.Actor, g.Perms, g.Replace)
		if len(g.Revoke) > 0 {
			m.Revoke(g.Actor, g.Revoke)
		}
	}
	for _, f := range msg.Friends {
		m.SetFriends(f.Actor, f.Friends)
	}
	for _, c := range msg.Clans {
		m.SetClan(c.Tag, c.Members)
	}
	for _, c := range msg.Cupboards {
		m.UpsertCupboard(host.Cupboard{ID: c.ID, OwnerID: c.OwnerID, Pos: c.Pos, Authorized: c.Authorized})
	}

	for _, id := range msg.RemovePlayers {
		m.RemovePlayer(id)
	}
	for _, tag := range msg.RemoveClans {
		m.RemoveClan(tag)
	}
	for _, id := range msg.RemoveCupboards {
		m.RemoveCupboard(id)
	}
}
