package lifecycle

import (
	"testing"
	"time"

	"noescape.gg/internal/sim/engine/feature/blockstate"
	"noescape.gg/internal/sim/engine/feature/zones"
	"noescape.gg/internal/sim/engine/kernel/model"
	"noescape.gg/internal/sim/engine/logic/mathx"
	"noescape.gg/internal/sim/engine/logic/timers"
	"noescape.gg/internal/sim/host"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type recorder struct {
	chats     []string
	shown     int
	hidden    int
	changes   []string
	markers   map[string]bool
	markerAt  []mathx.Vec3
	announces int
}

func (r *recorder) Chat(_ string, text string) { r.chats = append(r.chats, text) }

func (r *recorder) ShowCountdown(string, string, time.Time, string) { r.shown++ }

func (r *recorder) HideCountdown(string, string) { r.hidden++ }

func (r *recorder) BlockChanged(actor, kind string, active bool, reason string) {
	r.changes = append(r.changes, kind+":"+reason)
}

func (r *recorder) Announce(string, string, string, string) { r.announces++ }

func (r *recorder) AddMarker(id string, pos mathx.Vec3, _ string, _ time.Duration) bool {
	r.markerAt = append(r.markerAt, pos)
	if r.markers == nil {
		r.markers = map[string]bool{}
	}
	r.markers[id] = true
	return true
}

func (r *recorder) RemoveMarker(id string) { delete(r.markers, id) }

type sink struct{ events []model.BlockEvent }

func (s *sink) RecordBlock(ev model.BlockEvent) { s.events = append(s.events, ev) }

type perms map[string]bool

func (p perms) HasPermission(actor, perm string) bool { return p[actor+"|"+perm] }

type world map[string]host.Player

func (w world) Player(id string) (host.Player, bool) {
	p, ok := w[id]
	return p, ok
}

func (w world) Nearby(mathx.Vec3, float64) []string { return nil }

func (w world) Cupboards(mathx.Vec3, float64) []host.Cupboard { return nil }

type veto map[string]bool

func (v veto) AllowBlock(actor, kind string) bool { return !v[actor] }

func testConfig() Config {
	kc := KindConfig{Enabled: true, Duration: 300 * time.Second, Notify: true, UnblockOnDeath: true, UnblockOnRespawn: true}
	return Config{
		Raid:         kc,
		Combat:       KindConfig{Enabled: true, Duration: 180 * time.Second, Notify: true, UnblockOnDeath: true},
		UI:           true,
		Chat:         true,
		UnblockDelay: 300 * time.Millisecond,
	}
}

type fixture struct {
	m     *Manager
	clk   *clock
	rec   *recorder
	sink  *sink
	sched *timers.Scheduler
}

func newFixture(cfg Config, mutate func(*Deps)) *fixture {
	clk := &clock{t: time.Unix(10_000, 0)}
	rec := &recorder{}
	s := &sink{}
	sched := timers.New()
	d := Deps{
		Store:    blockstate.New(),
		Timers:   sched,
		Notifier: rec,
		Sink:     s,
		Now:      clk.now,
	}
	if mutate != nil {
		mutate(&d)
	}
	return &fixture{m: New(cfg, d), clk: clk, rec: rec, sink: s, sched: sched}
}

// fire runs every due timer through the manager, as the engine loop would.
func (f *fixture) fire() {
	for _, ev := range f.sched.Due(f.clk.now()) {
		switch ev.Key.Kind {
		case timers.KindExpire:
			f.m.HandleExpire(ev)
		case timers.KindUnblock:
			f.m.HandleUnblock(ev)
		case timers.KindMarker:
			f.m.HandleMarker(ev)
		}
	}
}

func TestSlidingWindowScenario(t *testing.T) {
	f := newFixture(testConfig(), nil)
	const a = "76561198000000001"

	if !f.m.Start(a, model.KindRaid, mathx.Vec3{}, true) {
		t.Fatalf("start should succeed")
	}
	if !f.m.IsActive(a, model.KindRaid) || f.m.Remaining(a, model.KindRaid) != 300*time.Second {
		t.Fatalf("expected full 300s window at t=0, got %v", f.m.Remaining(a, model.KindRaid))
	}

	f.clk.advance(150 * time.Second)
	f.fire()
	f.m.Start(a, model.KindRaid, mathx.Vec3{}, true)
	if got := f.m.Remaining(a, model.KindRaid); got != 300*time.Second {
		t.Fatalf("second hit must reset to 300s, got %v", got)
	}

	f.clk.advance(299 * time.Second)
	f.fire()
	if !f.m.IsActive(a, model.KindRaid) {
		t.Fatalf("block must still be active at t=449s")
	}

	f.clk.advance(1 * time.Second)
	f.fire()
	if f.m.IsActive(a, model.KindRaid) {
		t.Fatalf("block must be inactive at t=450s")
	}
	if f.sched.Len() != 0 {
		t.Fatalf("expected no pending timers, got %d", f.sched.Len())
	}

	var reasons []model.Reason
	for _, ev := range f.sink.events {
		reasons = append(reasons, ev.Reason)
	}
	want := []model.Reason{model.ReasonStarted, model.ReasonRefreshed, model.ReasonExpired}
	if len(reasons) != len(want) {
		t.Fatalf("events: got %v want %v", reasons, want)
	}
	for i := range want {
		if reasons[i] != want[i] {
			t.Fatalf("events: got %v want %v", reasons, want)
		}
	}
}

func TestNotifyRateLimitedToHalfDuration(t *testing.T) {
	f := newFixture(testConfig(), nil)
	const a = "1001"

	f.m.Start(a, model.KindRaid, mathx.Vec3{}, true)
	f.clk.advance(100 * time.Second)
	f.m.Start(a, model.KindRaid, mathx.Vec3{}, true)
	if len(f.rec.chats) != 1 {
		t.Fatalf("refresh within duration/2 must not notify again, chats=%v", f.rec.chats)
	}
	f.clk.advance(50 * time.Second)
	f.m.Start(a, model.KindRaid, mathx.Vec3{}, true)
	if len(f.rec.chats) != 2 || f.rec.chats[1] != "You are raid blocked for 5 minute(s)" {
		t.Fatalf("expected second notification at duration/2, chats=%v", f.rec.chats)
	}
	if f.rec.shown != 3 {
		t.Fatalf("countdown should be refreshed on every start, got %d", f.rec.shown)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	f := newFixture(testConfig(), nil)
	const a = "1001"
	f.m.Start(a, model.KindCombat, mathx.Vec3{}, false)

	if !f.m.Stop(a, model.KindCombat) {
		t.Fatalf("first stop should end the block")
	}
	if f.m.IsActive(a, model.KindCombat) {
		t.Fatalf("block must be inactive right after stop")
	}
	if f.m.Stop(a, model.KindCombat) {
		t.Fatalf("second stop must be a no-op")
	}
	if f.sched.Len() != 0 {
		t.Fatalf("stop must cancel the expiry timer")
	}
	last := f.rec.chats[len(f.rec.chats)-1]
	if last != "You are no longer combat blocked." || f.rec.hidden != 1 {
		t.Fatalf("expected one completion message, chats=%v hidden=%d", f.rec.chats, f.rec.hidden)
	}
	if got := f.rec.changes[len(f.rec.changes)-1]; got != "combat:stopped" {
		t.Fatalf("unexpected final change %q", got)
	}
}

func TestStaleExpiryIsNoop(t *testing.T) {
	f := newFixture(testConfig(), nil)
	const a = "1001"
	f.m.Start(a, model.KindRaid, mathx.Vec3{}, true)
	stale := f.m.Store().Peek(a, model.KindRaid).Timer
	f.m.Start(a, model.KindRaid, mathx.Vec3{}, true)

	ok := f.m.HandleExpire(timers.Fired{Handle: stale, Key: timers.Key{Kind: timers.KindExpire, Actor: a, Block: model.KindRaid}})
	if ok || !f.m.IsActive(a, model.KindRaid) {
		t.Fatalf("stale expiry must not end the block")
	}
}

func TestLazyExpiryRunsCompletion(t *testing.T) {
	f := newFixture(testConfig(), nil)
	const a = "1001"
	f.m.Start(a, model.KindCombat, mathx.Vec3{}, false)
	f.clk.advance(181 * time.Second)

	if f.m.IsActive(a, model.KindCombat) {
		t.Fatalf("expired block must read inactive before the timer fires")
	}
	if f.sched.Len() != 0 || f.rec.hidden != 1 {
		t.Fatalf("lazy eviction must cancel the timer and hide the countdown")
	}
	if ev := f.sink.events[len(f.sink.events)-1]; ev.Reason != model.ReasonExpired {
		t.Fatalf("expected expired event, got %+v", ev)
	}
}

func TestUnblockTriggersAfterDelay(t *testing.T) {
	f := newFixture(testConfig(), nil)
	const a = "1001"
	f.m.Start(a, model.KindRaid, mathx.Vec3{}, true)
	f.m.Start(a, model.KindCombat, mathx.Vec3{}, false)

	if n := f.m.OnLifeEvent(a, TriggerRespawn); n != 1 {
		t.Fatalf("respawn unblocks raid only, got %d", n)
	}
	if !f.m.IsActive(a, model.KindRaid) {
		t.Fatalf("unblock must wait for the grace delay")
	}
	f.clk.advance(300 * time.Millisecond)
	f.fire()
	if f.m.IsActive(a, model.KindRaid) || !f.m.IsActive(a, model.KindCombat) {
		t.Fatalf("expected raid unblocked and combat kept")
	}
	if ev := f.sink.events[len(f.sink.events)-1]; ev.Reason != model.ReasonUnblocked || ev.Trigger != "respawn" {
		t.Fatalf("unexpected unblock event %+v", ev)
	}

	if n := f.m.OnLifeEvent(a, TriggerWakeup); n != 0 {
		t.Fatalf("wakeup is not configured to unblock, got %d", n)
	}
}

func TestReblockCancelsPendingUnblock(t *testing.T) {
	f := newFixture(testConfig(), nil)
	const a = "1001"
	f.m.Start(a, model.KindRaid, mathx.Vec3{}, true)
	f.m.OnLifeEvent(a, TriggerDeath)
	f.clk.advance(100 * time.Millisecond)
	f.m.Start(a, model.KindRaid, mathx.Vec3{}, true)
	f.clk.advance(time.Second)
	f.fire()
	if !f.m.IsActive(a, model.KindRaid) || f.m.PendingUnblocks() != 0 {
		t.Fatalf("block started after the trigger must survive")
	}
}

func TestStartGuards(t *testing.T) {
	cfg := testConfig()
	cfg.Combat.Enabled = false
	f := newFixture(cfg, func(d *Deps) {
		d.Permissions = perms{"2|" + PermDisable: true}
		d.World = world{"3": {ID: "3", NPC: true}, "4": {ID: "4"}}
		d.Vetoer = veto{"4": true}
	})
	cases := []struct {
		name  string
		actor string
		kind  model.Kind
	}{
		{"disabled kind", "1", model.KindCombat},
		{"disable permission", "2", model.KindRaid},
		{"npc", "3", model.KindRaid},
		{"vetoed", "4", model.KindRaid},
		{"not a player", "0", model.KindRaid},
	}
	for _, tc := range cases {
		if f.m.Start(tc.actor, tc.kind, mathx.Vec3{}, true) {
			t.Fatalf("%s: start should be a no-op", tc.name)
		}
	}
	if f.m.Store().Count(0) != 0 || len(f.sink.events) != 0 {
		t.Fatalf("guarded starts must leave no state")
	}
}

func TestMarkerAndZoneOnRaidStart(t *testing.T) {
	cfg := testConfig()
	cfg.Zones = true
	cfg.Map = MapConfig{Enabled: true, Icon: "special", Duration: 150 * time.Second}
	cfg.Announce = AnnounceConfig{Enabled: true, Background: "Red", TextColor: "White"}
	var zt *zones.Tracker
	f := newFixture(cfg, nil)
	zt = zones.New(nil, f.sched, 100, 300*time.Second, f.clk.now)
	f.m.d.Zones = zt
	f.m.d.Mapper = f.rec
	f.m.d.Announcer = f.rec

	const a = "1001"
	f.m.Start(a, model.KindRaid, mathx.Vec3{X: 10}, true)
	if zt.Len() != 1 || len(f.rec.markers) != 1 || f.rec.announces != 1 {
		t.Fatalf("expected zone, marker and announcement; zones=%d markers=%d announces=%d", zt.Len(), len(f.rec.markers), f.rec.announces)
	}

	f.clk.advance(150 * time.Second)
	f.fire()
	if len(f.rec.markers) != 0 {
		t.Fatalf("marker must be removed after the map duration")
	}
	if !f.m.IsActive(a, model.KindRaid) {
		t.Fatalf("raid block outlives its marker")
	}

	f.m.Start("1002", model.KindRaid, mathx.Vec3{X: 20}, false)
	if zt.Len() != 1 {
		t.Fatalf("createZone=false must not create zones")
	}
}

func TestMarkerGoesWhereTheActorStands(t *testing.T) {
	cfg := testConfig()
	cfg.Map = MapConfig{Enabled: true, Duration: 150 * time.Second}
	f := newFixture(cfg, func(d *Deps) {
		d.World = world{"1001": {ID: "1001", Pos: mathx.Vec3{X: 42, Z: 7}}}
	})
	f.m.d.Mapper = f.rec

	f.m.Start("1001", model.KindRaid, mathx.Vec3{X: 10}, false)
	f.m.Start("1002", model.KindRaid, mathx.Vec3{X: 20}, false)
	if len(f.rec.markerAt) != 2 {
		t.Fatalf("markers: %v", f.rec.markerAt)
	}
	if got := f.rec.markerAt[0]; got != (mathx.Vec3{X: 42, Z: 7}) {
		t.Fatalf("marker for a known player at %v", got)
	}
	if got := f.rec.markerAt[1]; got != (mathx.Vec3{X: 20}) {
		t.Fatalf("unknown player falls back to the block origin, got %v", got)
	}
}

func TestOnConnectedResendsCountdowns(t *testing.T) {
	f := newFixture(testConfig(), nil)
	const a = "1001"
	f.m.Start(a, model.KindRaid, mathx.Vec3{}, true)
	f.m.Start(a, model.KindCombat, mathx.Vec3{}, false)
	before := f.rec.shown
	if n := f.m.OnConnected(a); n != 2 || f.rec.shown != before+2 {
		t.Fatalf("expected two countdowns re-sent, got n=%d", n)
	}
	if f.m.StopAll(a) != 2 {
		t.Fatalf("stop all should end both blocks")
	}
}
