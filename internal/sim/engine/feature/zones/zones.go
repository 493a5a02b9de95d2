// Package zones tracks the named raid zones registered with the host's zone service.
package zones

import (
	"sort"
	"time"

	"noescape.gg/internal/sim/engine/kernel/model"
	"noescape.gg/internal/sim/engine/logic/mathx"
	"noescape.gg/internal/sim/engine/logic/timers"
	"noescape.gg/internal/sim/host"
)

type Zone struct {
	ID          string
	Pos         mathx.Vec3
	Timer       timers.Handle
	CreatedAt   time.Time
	RefreshedAt time.Time
}

type Tracker struct {
	radius   float64
	duration time.Duration
	svc      host.Zones
	timers   *timers.Scheduler
	now      func() time.Time

	zones map[string]*Zone

	// OnEvent is optional.
	OnEvent func(model.ZoneEvent)
}

// New returns a tracker for zones of the given radius that live for duration after
// their last refresh.
func New(svc host.Zones, sched *timers.Scheduler, radius float64, duration time.Duration, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		radius:   radius,
		duration: duration,
		svc:      svc,
		timers:   sched,
		now:      now,
		zones:    map[string]*Zone{},
	}
}

func (t *Tracker) Radius() float64 { return t.radius }

// Ensure returns the zone covering pos, refreshing its timer, or creates one.
// A zone covers pos when its id matches pos or its center is closer than radius/2;
// the nearest such zone wins.
func (t *Tracker) Ensure(pos mathx.Vec3) *Zone {
	now := t.now()
	if z := t.covering(pos); z != nil {
		t.refresh(z, now)
		return z
	}
	z := &Zone{ID: pos.Key(), Pos: pos, CreatedAt: now, RefreshedAt: now}
	z.Timer = t.timers.At(now.Add(t.duration), timers.Key{Kind: timers.KindZone, ID: z.ID})
	t.zones[z.ID] = z
	if t.svc != nil {
		t.svc.CreateOrUpdateZone(z.ID, t.radius, pos)
	}
	t.emit(now, z, model.ZoneOpCreate)
	return z
}

func (t *Tracker) covering(pos mathx.Vec3) *Zone {
	if z := t.zones[pos.Key()]; z != nil {
		return z
	}
	var best *Zone
	bestDist := t.radius / 2
	for _, z := range t.zones {
		d := mathx.Dist(z.Pos, pos)
		if d >= bestDist {
			continue
		}
		if best == nil || d < mathx.Dist(best.Pos, pos) || (d == mathx.Dist(best.Pos, pos) && z.ID < best.ID) {
			best = z
		}
	}
	return best
}

func (t *Tracker) refresh(z *Zone, now time.Time) {
	t.timers.Cancel(z.Timer)
	z.Timer = t.timers.At(now.Add(t.duration), timers.Key{Kind: timers.KindZone, ID: z.ID})
	z.RefreshedAt = now
	t.emit(now, z, model.ZoneOpRefresh)
}

// Refresh resets the timer of a tracked zone. Unknown ids are ignored.
func (t *Tracker) Refresh(id string) bool {
	z := t.zones[id]
	if z == nil {
		return false
	}
	t.refresh(z, t.now())
	return true
}

func (t *Tracker) Erase(id string) bool {
	z := t.zones[id]
	if z == nil {
		return false
	}
	t.timers.Cancel(z.Timer)
	delete(t.zones, id)
	if t.svc != nil {
		t.svc.EraseZone(id)
	}
	t.emit(t.now(), z, model.ZoneOpErase)
	return true
}

// HandleExpire erases the zone only if f is its current timer.
func (t *Tracker) HandleExpire(f timers.Fired) bool {
	z := t.zones[f.Key.ID]
	if z == nil || z.Timer != f.Handle {
		return false
	}
	z.Timer = 0
	return t.Erase(z.ID)
}

func (t *Tracker) EraseAll() int {
	ids := t.IDs()
	for _, id := range ids {
		t.Erase(id)
	}
	return len(ids)
}

func (t *Tracker) Has(id string) bool { return t.zones[id] != nil }

func (t *Tracker) Get(id string) (Zone, bool) {
	z := t.zones[id]
	if z == nil {
		return Zone{}, false
	}
	return *z, true
}

func (t *Tracker) Len() int { return len(t.zones) }

func (t *Tracker) IDs() []string {
	out := make([]string, 0, len(t.zones))
	for id := range t.zones {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (t *Tracker) emit(now time.Time, z *Zone, op string) {
	if t.OnEvent == nil {
		return
	}
	t.OnEvent(model.ZoneEvent{At: now, ZoneID: z.ID, Op: op, Pos: z.Pos, Radius: t.radius})
}
