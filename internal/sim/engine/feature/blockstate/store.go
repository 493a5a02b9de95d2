package blockstate

import (
	"sort"
	"time"

	"noescape.gg/internal/sim/engine/kernel/model"
)

// Store holds at most one block per (actor, kind). Reads of an expired
// block remove it and report nothing; OnEvict lets the owner release timers.
type Store struct {
	blocks  map[model.Key]*model.Block
	OnEvict func(b *model.Block, now time.Time)
}

func New() *Store {
	return &Store{blocks: map[model.Key]*model.Block{}}
}

func (s *Store) Get(actor string, kind model.Kind, now time.Time) *model.Block {
	k := model.Key{Actor: actor, Kind: kind}
	b := s.blocks[k]
	if b == nil {
		return nil
	}
	if b.Active(now) {
		return b
	}
	delete(s.blocks, k)
	if s.OnEvict != nil {
		s.OnEvict(b, now)
	}
	return nil
}

// Peek returns the stored block without the expiry check.
func (s *Store) Peek(actor string, kind model.Kind) *model.Block {
	return s.blocks[model.Key{Actor: actor, Kind: kind}]
}

func (s *Store) Upsert(b *model.Block) {
	if b == nil || b.Actor == "" {
		return
	}
	s.blocks[b.Key()] = b
}

func (s *Store) Remove(actor string, kind model.Kind) *model.Block {
	k := model.Key{Actor: actor, Kind: kind}
	b := s.blocks[k]
	if b != nil {
		delete(s.blocks, k)
	}
	return b
}

func (s *Store) IsActive(actor string, kind model.Kind, now time.Time) bool {
	return s.Get(actor, kind, now) != nil
}

// Count returns the number of stored blocks of kind (0 = all kinds), active or not.
func (s *Store) Count(kind model.Kind) int {
	if kind == 0 {
		return len(s.blocks)
	}
	n := 0
	for k := range s.blocks {
		if k.Kind == kind {
			n++
		}
	}
	return n
}

// Each visits blocks in (actor, kind) order.
func (s *Store) Each(fn func(b *model.Block)) {
	keys := make([]model.Key, 0, len(s.blocks))
	for k := range s.blocks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Actor != keys[j].Actor {
			return keys[i].Actor < keys[j].Actor
		}
		return keys[i].Kind < keys[j].Kind
	})
	for _, k := range keys {
		fn(s.blocks[k])
	}
}

// ActorBlocks returns the active blocks of actor, raid first.
func (s *Store) ActorBlocks(actor string, now time.Time) []*model.Block {
	var out []*model.Block
	for _, k := range model.Kinds {
		if b := s.Get(actor, k, now); b != nil {
			out = append(out, b)
		}
	}
	return out
}
