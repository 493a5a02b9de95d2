package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"noescape.gg/internal/persistence/indexdb"
	persistlog "noescape.gg/internal/persistence/log"
	"noescape.gg/internal/sim/engine/kernel/model"
)

func TestDBCmdListsEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noescape.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	now := time.Now()
	idx.RecordBlock(model.BlockEvent{At: now.Add(-time.Minute), Actor: "p1", Kind: "raid", Reason: model.ReasonStarted, Duration: 300 * time.Second, Trigger: "structure_damage"})
	idx.RecordBlock(model.BlockEvent{At: now.Add(-time.Minute), Actor: "p2", Kind: "combat", Reason: model.ReasonStarted})
	idx.RecordDenial(model.GateDenial{At: now, Actor: "p1", Kind: "raid", Action: "tp", Message: "blocked"})
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var out bytes.Buffer
	if err := dbCmd([]string{"-db", path, "-kind", "raid", "events"}, &out); err != nil {
		t.Fatalf("db events: %v", err)
	}
	s := out.String()
	if !strings.Contains(s, "p1") || strings.Contains(s, "p2") || !strings.Contains(s, "5m0s") || !strings.Contains(s, "1 rows") {
		t.Fatalf("unexpected events output:\n%s", s)
	}

	out.Reset()
	if err := dbCmd([]string{"-db", path, "-json", "denials"}, &out); err != nil {
		t.Fatalf("db denials: %v", err)
	}
	if !strings.Contains(out.String(), `"Action":"tp"`) {
		t.Fatalf("unexpected denials output:\n%s", out.String())
	}

	if err := dbCmd([]string{"-db", path, "bogus"}, &out); err == nil {
		t.Fatalf("expected error for unknown query")
	}
	if err := dbCmd([]string{"-db", filepath.Join(t.TempDir(), "missing.sqlite")}, &out); err == nil {
		t.Fatalf("expected error for missing index")
	}
}

func TestLogCmdFilters(t *testing.T) {
	dir := t.TempDir()
	l := persistlog.NewBlockLogger(dir)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l.RecordBlock(model.BlockEvent{At: at, Actor: "p1", Kind: "raid", Reason: model.ReasonStarted, Duration: 300 * time.Second})
	l.RecordBlock(model.BlockEvent{At: at, Actor: "p2", Kind: "combat", Reason: model.ReasonExpired})
	l.RecordZone(model.ZoneEvent{At: at, ZoneID: "z1", Op: model.ZoneOpCreate, Radius: 50})
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var out bytes.Buffer
	if err := logCmd([]string{"-data", dir, "-actor", "p1"}, &out); err != nil {
		t.Fatalf("log: %v", err)
	}
	s := out.String()
	if !strings.Contains(s, "2024-05-01T12:00:00Z block p1 raid started for=5m0s") || strings.Contains(s, "p2") {
		t.Fatalf("unexpected log output:\n%s", s)
	}
	if !strings.Contains(s, "1 records in 1 files") {
		t.Fatalf("missing summary:\n%s", s)
	}

	out.Reset()
	if err := logCmd([]string{"-data", dir, "-type", "zone"}, &out); err != nil {
		t.Fatalf("log zones: %v", err)
	}
	if !strings.Contains(out.String(), "zone z1 create r=50") {
		t.Fatalf("unexpected zone output:\n%s", out.String())
	}

	if err := logCmd([]string{"-data", t.TempDir()}, &out); err == nil {
		t.Fatalf("expected error without log files")
	}
}

func TestConfigCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noescape.yaml")
	var out bytes.Buffer

	if err := configCmd([]string{"init", "-config", path}, &out); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("init did not write config: %v", err)
	}
	out.Reset()
	if err := configCmd([]string{"check", "-config", path}, &out); err != nil {
		t.Fatalf("check fresh config: %v", err)
	}
	if !strings.Contains(out.String(), "ok") {
		t.Fatalf("unexpected check output: %s", out.String())
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("raid:\n  block:\n    duration: soon\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := configCmd([]string{"check", "-config", bad}, &out); err == nil {
		t.Fatalf("expected check failure for bad duration")
	}

	out.Reset()
	if err := configCmd([]string{"schema"}, &out); err != nil {
		t.Fatalf("schema: %v", err)
	}
	if !strings.Contains(out.String(), `"raid"`) {
		t.Fatalf("schema missing raid section")
	}
	if err := configCmd(nil, &out); err == nil {
		t.Fatalf("expected usage error")
	}
}

func TestStopCmdPostsToAdmin(t *testing.T) {
	var gotMethod, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotQuery = r.Method, r.URL.RawQuery
		_, _ = w.Write([]byte(`{"ok":true,"stopped":1}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	if err := stopCmd([]string{"-url", srv.URL, "-actor", "p1", "-kind", "raid"}, &out); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if gotMethod != http.MethodPost || gotQuery != "actor=p1&kind=raid" {
		t.Fatalf("server saw %s %s", gotMethod, gotQuery)
	}
	if !strings.Contains(out.String(), `"stopped":1`) {
		t.Fatalf("unexpected output: %s", out.String())
	}
	if err := stopCmd([]string{"-url", srv.URL}, &out); err == nil {
		t.Fatalf("expected missing actor error")
	}
}
