// Package social memoizes friend and clan lookups for exemption checks.
package social

import (
	"sort"
	"time"

	"noescape.gg/internal/sim/host"
)

// Group is the set of actors an exemption treats as allies.
type Group map[string]struct{}

func (g Group) Has(actor string) bool {
	if g == nil {
		return false
	}
	_, ok := g[actor]
	return ok
}

func (g Group) Sorted() []string {
	out := make([]string, 0, len(g))
	for id := range g {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type Options struct {
	Friends bool
	Clans   bool
	TTL     time.Duration
}

type Stats struct {
	Hits   uint64
	Misses uint64
}

type listEntry struct {
	members   []string
	checkedAt time.Time
}

type tagEntry struct {
	tag       string
	checkedAt time.Time
}

type Cache struct {
	opts    Options
	friends host.Friends
	clans   host.Clans
	now     func() time.Time

	friendsOf map[string]listEntry
	clanOf    map[string]tagEntry
	membersOf map[string]listEntry

	stats Stats
}

// New builds a cache. A nil service turns the matching option off.
func New(opts Options, friends host.Friends, clans host.Clans, now func() time.Time) *Cache {
	if friends == nil {
		opts.Friends = false
	}
	if clans == nil {
		opts.Clans = false
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{
		opts:      opts,
		friends:   friends,
		clans:     clans,
		now:       now,
		friendsOf: map[string]listEntry{},
		clanOf:    map[string]tagEntry{},
		membersOf: map[string]listEntry{},
	}
}

func (c *Cache) Options() Options { return c.opts }

func (c *Cache) Stats() Stats { return c.stats }

func (c *Cache) fresh(checkedAt, now time.Time) bool {
	return now.Sub(checkedAt) <= c.opts.TTL
}

// Group merges the actor's friends and clan members, whichever are enabled.
func (c *Cache) Group(actor string) Group {
	g := Group{}
	if !host.IsPlayerID(actor) {
		return g
	}
	if c.opts.Friends {
		for _, id := range c.FriendsOf(actor) {
			g[id] = struct{}{}
		}
	}
	if c.opts.Clans {
		for _, id := range c.ClanMembersOf(actor) {
			g[id] = struct{}{}
		}
	}
	return g
}

func (c *Cache) FriendsOf(actor string) []string {
	if !c.opts.Friends {
		return nil
	}
	now := c.now()
	if e, ok := c.friendsOf[actor]; ok && c.fresh(e.checkedAt, now) {
		c.stats.Hits++
		return e.members
	}
	c.stats.Misses++
	list, ok := c.friends.FriendsOf(actor)
	if !ok {
		list = nil
	}
	c.friendsOf[actor] = listEntry{members: list, checkedAt: now}
	return list
}

func (c *Cache) ClanOf(actor string) string {
	if !c.opts.Clans {
		return ""
	}
	now := c.now()
	if e, ok := c.clanOf[actor]; ok && c.fresh(e.checkedAt, now) {
		c.stats.Hits++
		return e.tag
	}
	c.stats.Misses++
	tag, ok := c.clans.ClanOf(actor)
	if !ok {
		tag = ""
	}
	c.clanOf[actor] = tagEntry{tag: tag, checkedAt: now}
	return tag
}

func (c *Cache) MembersOf(tag string) []string {
	if !c.opts.Clans || tag == "" {
		return nil
	}
	now := c.now()
	if e, ok := c.membersOf[tag]; ok && c.fresh(e.checkedAt, now) {
		c.stats.Hits++
		return e.members
	}
	c.stats.Misses++
	return c.refreshMembers(tag, now)
}

func (c *Cache) ClanMembersOf(actor string) []string {
	return c.MembersOf(c.ClanOf(actor))
}

func (c *Cache) refreshMembers(tag string, now time.Time) []string {
	list, ok := c.clans.MembersOf(tag)
	if !ok {
		list = nil
	}
	c.membersOf[tag] = listEntry{members: list, checkedAt: now}
	return list
}

// OnClanChanged re-fetches a created or updated clan and points every member's
// cached tag at it.
func (c *Cache) OnClanChanged(tag string) {
	if !c.opts.Clans || tag == "" {
		return
	}
	now := c.now()
	c.stats.Misses++
	members := c.refreshMembers(tag, now)
	in := make(map[string]struct{}, len(members))
	for _, id := range members {
		in[id] = struct{}{}
		c.clanOf[id] = tagEntry{tag: tag, checkedAt: now}
	}
	// Actors that left the clan.
	for id, e := range c.clanOf {
		if e.tag != tag {
			continue
		}
		if _, ok := in[id]; !ok {
			delete(c.clanOf, id)
		}
	}
}

func (c *Cache) OnClanDestroyed(tag string) {
	if tag == "" {
		return
	}
	delete(c.membersOf, tag)
	for id, e := range c.clanOf {
		if e.tag == tag {
			delete(c.clanOf, id)
		}
	}
}

// Forget drops every cached entry for actor.
func (c *Cache) Forget(actor string) {
	delete(c.friendsOf, actor)
	delete(c.clanOf, actor)
}
