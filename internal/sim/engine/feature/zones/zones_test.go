package zones

import (
	"testing"
	"time"

	"noescape.gg/internal/sim/engine/logic/mathx"
	"noescape.gg/internal/sim/engine/logic/timers"
)

type fakeZoneService struct {
	created []string
	erased  []string
}

func (f *fakeZoneService) CreateOrUpdateZone(id string, _ float64, _ mathx.Vec3) {
	f.created = append(f.created, id)
}

func (f *fakeZoneService) EraseZone(id string) { f.erased = append(f.erased, id) }

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTracker() (*Tracker, *fakeZoneService, *timers.Scheduler, *clock) {
	svc := &fakeZoneService{}
	sched := timers.New()
	clk := &clock{t: time.Unix(1000, 0)}
	return New(svc, sched, 100, 300*time.Second, clk.now), svc, sched, clk
}

func TestEnsureMergesNearbyPositions(t *testing.T) {
	tr, svc, sched, clk := newTracker()

	z1 := tr.Ensure(mathx.Vec3{X: 0, Y: 0, Z: 0})
	firstTimer := z1.Timer
	clk.t = clk.t.Add(10 * time.Second)
	z2 := tr.Ensure(mathx.Vec3{X: 30, Y: 0, Z: 20})

	if z1.ID != z2.ID {
		t.Fatalf("expected merge into %q, got %q", z1.ID, z2.ID)
	}
	if tr.Len() != 1 || len(svc.created) != 1 {
		t.Fatalf("merge must not duplicate zones: len=%d created=%v", tr.Len(), svc.created)
	}
	if sched.Pending(firstTimer) || !sched.Pending(z2.Timer) || sched.Len() != 1 {
		t.Fatalf("merge must replace the zone timer")
	}

	far := tr.Ensure(mathx.Vec3{X: 51, Y: 0, Z: 0})
	if far.ID == z1.ID || tr.Len() != 2 {
		t.Fatalf("position beyond radius/2 must create a new zone")
	}
}

func TestEnsureMergeBoundIsExclusive(t *testing.T) {
	tr, _, _, _ := newTracker()
	a := tr.Ensure(mathx.Vec3{X: 0})
	inside := tr.Ensure(mathx.Vec3{X: 49.9})
	if inside.ID != a.ID || tr.Len() != 1 {
		t.Fatalf("position under radius/2 must merge")
	}
	edge := tr.Ensure(mathx.Vec3{X: 50})
	if edge.ID == a.ID || tr.Len() != 2 {
		t.Fatalf("position exactly radius/2 away must create a new zone")
	}
}

func TestEnsurePicksNearestZone(t *testing.T) {
	tr, _, _, _ := newTracker()
	a := tr.Ensure(mathx.Vec3{X: 0})
	b := tr.Ensure(mathx.Vec3{X: 60})
	got := tr.Ensure(mathx.Vec3{X: 35})
	if got.ID != b.ID {
		t.Fatalf("expected nearest zone %q, got %q (other %q)", b.ID, got.ID, a.ID)
	}
}

func TestZoneExpiresWithoutRefresh(t *testing.T) {
	tr, svc, sched, clk := newTracker()
	z := tr.Ensure(mathx.Vec3{X: 1, Y: 2, Z: 3})
	stale := z.Timer

	clk.t = clk.t.Add(200 * time.Second)
	tr.Ensure(mathx.Vec3{X: 1, Y: 2, Z: 3})

	if tr.HandleExpire(timers.Fired{Handle: stale, Key: timers.Key{Kind: timers.KindZone, ID: z.ID}}) {
		t.Fatalf("stale timer must be a no-op")
	}
	fired := sched.Due(clk.t.Add(300 * time.Second))
	if len(fired) != 1 {
		t.Fatalf("expected one zone timer, got %d", len(fired))
	}
	if !tr.HandleExpire(fired[0]) {
		t.Fatalf("current timer should erase the zone")
	}
	if tr.Has(z.ID) || len(svc.erased) != 1 || svc.erased[0] != z.ID {
		t.Fatalf("zone not erased: %v", svc.erased)
	}
}

func TestEraseAll(t *testing.T) {
	tr, svc, sched, _ := newTracker()
	tr.Ensure(mathx.Vec3{X: 0})
	tr.Ensure(mathx.Vec3{X: 500})
	if n := tr.EraseAll(); n != 2 {
		t.Fatalf("expected 2 erased zones, got %d", n)
	}
	if tr.Len() != 0 || sched.Len() != 0 || len(svc.erased) != 2 {
		t.Fatalf("erase all left state behind")
	}
	if tr.Erase("missing") {
		t.Fatalf("erasing an unknown zone should report false")
	}
}
