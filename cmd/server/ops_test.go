package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"noescape.gg/internal/config"
	"noescape.gg/internal/persistence/indexdb"
	"noescape.gg/internal/persistence/r2s3"
	"noescape.gg/internal/sim/engine"
	"noescape.gg/internal/sim/engine/kernel/model"
	"noescape.gg/internal/transport/ws"
)

type fakeOpsEngine struct {
	metrics engine.Metrics
	state   engine.State

	stopActor string
	stopKind  model.Kind
}

func (f *fakeOpsEngine) Metrics() engine.Metrics { return f.metrics }

func (f *fakeOpsEngine) State(context.Context) (engine.State, error) { return f.state, nil }

func (f *fakeOpsEngine) StopBlock(_ context.Context, actor string, kind model.Kind) (int, error) {
	f.stopActor, f.stopKind = actor, kind
	return 1, nil
}

type fakeHubStats struct{}

func (fakeHubStats) Stats() ws.HubStats { return ws.HubStats{Sessions: 2, Sent: 10, Dropped: 1} }

type fakeIndexStats struct{}

func (fakeIndexStats) Stats() indexdb.Stats {
	return indexdb.Stats{QueueDepth: 3, DropBlockTotal: 1, DropZoneTotal: 2}
}

func TestMetricsExposition(t *testing.T) {
	o := &opsHandler{
		eng: &fakeOpsEngine{metrics: engine.Metrics{RaidBlocks: 4, CombatBlocks: 1, Zones: 2, CacheHits: 7, InboxDepth: 5}},
		hub: fakeHubStats{},
		idx: fakeIndexStats{},
	}
	rec := httptest.NewRecorder()
	o.metrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`noescape_active_blocks{kind="raid"} 4`,
		`noescape_active_blocks{kind="combat"} 1`,
		`noescape_raid_zones 2`,
		`noescape_social_cache_total{result="hit"} 7`,
		`noescape_queue_depth{queue="inbox"} 5`,
		`noescape_queue_depth{queue="index"} 3`,
		`noescape_index_dropped_total 3`,
		`noescape_host_sessions 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "noescape_event_log_errors_total") {
		t.Fatalf("event log metrics without a logger")
	}
}

type fakeArchiveStats struct{}

func (fakeArchiveStats) Stats() r2s3.Stats { return r2s3.Stats{UploadedTotal: 3, FailedTotal: 1} }

func TestMetricsIncludeArchive(t *testing.T) {
	o := &opsHandler{eng: &fakeOpsEngine{}, archive: fakeArchiveStats{}}
	rec := httptest.NewRecorder()
	o.metrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`noescape_archive_uploads_total{result="ok"} 3`,
		`noescape_archive_uploads_total{result="failed"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestOpenArchiveNeedsBucket(t *testing.T) {
	t.Setenv("NOESCAPE_R2_BUCKET", "")
	a, err := openArchive(nil)
	if err != nil || a != nil {
		t.Fatalf("no bucket: %v %v", a, err)
	}
	t.Setenv("NOESCAPE_R2_BUCKET", "logs")
	t.Setenv("NOESCAPE_R2_ENDPOINT", "")
	if _, err := openArchive(nil); err == nil {
		t.Fatalf("expected error without endpoint and keys")
	}
}

func TestAdminStateIsLoopbackOnly(t *testing.T) {
	o := &opsHandler{eng: &fakeOpsEngine{state: engine.State{Blocks: []engine.BlockView{{Actor: "p1", Kind: "raid"}}}}}

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "10.0.0.5:4000"
	rec := httptest.NewRecorder()
	o.state(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote caller: got %d want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	rec = httptest.NewRecorder()
	o.state(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("loopback caller: got %d", rec.Code)
	}
	var resp struct {
		State engine.State `json:"state"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.State.Blocks) != 1 || resp.State.Blocks[0].Actor != "p1" {
		t.Fatalf("unexpected state: %+v", resp.State)
	}
}

func TestAdminStop(t *testing.T) {
	eng := &fakeOpsEngine{}
	o := &opsHandler{eng: eng}

	do := func(method, target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, nil)
		req.RemoteAddr = "[::1]:5000"
		rec := httptest.NewRecorder()
		o.stop(rec, req)
		return rec
	}

	if rec := do(http.MethodGet, "/admin/v1/stop?actor=p1"); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET: got %d", rec.Code)
	}
	if rec := do(http.MethodPost, "/admin/v1/stop"); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing actor: got %d", rec.Code)
	}
	if rec := do(http.MethodPost, "/admin/v1/stop?actor=p1&kind=pvp"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad kind: got %d", rec.Code)
	}
	rec := do(http.MethodPost, "/admin/v1/stop?actor=p1&kind=combat")
	if rec.Code != http.StatusOK {
		t.Fatalf("stop: got %d %s", rec.Code, rec.Body.String())
	}
	if eng.stopActor != "p1" || eng.stopKind != model.KindCombat {
		t.Fatalf("engine saw %q %v", eng.stopActor, eng.stopKind)
	}
	do(http.MethodPost, "/admin/v1/stop?actor=p2")
	if eng.stopKind != 0 {
		t.Fatalf("no kind must stop every kind, got %v", eng.stopKind)
	}
}

type countSink struct{ blocks, denials, zones int }

func (c *countSink) RecordBlock(model.BlockEvent)  { c.blocks++ }
func (c *countSink) RecordDenial(model.GateDenial) { c.denials++ }
func (c *countSink) RecordZone(model.ZoneEvent)    { c.zones++ }

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &countSink{}, &countSink{}
	m := multiSink{a, nil, b}
	m.RecordBlock(model.BlockEvent{})
	m.RecordDenial(model.GateDenial{})
	m.RecordZone(model.ZoneEvent{})
	if a.blocks != 1 || b.blocks != 1 || a.denials != 1 || b.zones != 1 {
		t.Fatalf("fan out mismatch: %+v %+v", a, b)
	}
}

func TestConfigDigestStable(t *testing.T) {
	d1, err := configDigest(config.Default())
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	d2, _ := configDigest(config.Default())
	if d1 != d2 || len(d1) != 64 {
		t.Fatalf("digest not stable: %s %s", d1, d2)
	}
	cfg := config.Default()
	cfg.Raid.Block.Distance = cfg.Raid.Block.Distance + 1
	if d3, _ := configDigest(cfg); d3 == d1 {
		t.Fatalf("digest must change with config")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "  ", "b", "c"); got != "b" {
		t.Fatalf("got %q", got)
	}
}
