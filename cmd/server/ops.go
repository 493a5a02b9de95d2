package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"noescape.gg/internal/persistence/indexdb"
	"noescape.gg/internal/persistence/r2s3"
	"noescape.gg/internal/sim/engine"
	"noescape.gg/internal/sim/engine/kernel/model"
	"noescape.gg/internal/transport/ws"
)

type opsEngine interface {
	Metrics() engine.Metrics
	State(ctx context.Context) (engine.State, error)
	StopBlock(ctx context.Context, actor string, kind model.Kind) (int, error)
}

type opsHandler struct {
	eng      opsEngine
	hub      interface{ Stats() ws.HubStats }
	idx      interface{ Stats() indexdb.Stats }
	blockLog interface{ Errors() uint64 }
	archive  interface{ Stats() r2s3.Stats }
}

func (o *opsHandler) metrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
	m := o.eng.Metrics()

	fmt.Fprintf(rw, "# HELP noescape_active_blocks Active blocks per kind.\n")
	fmt.Fprintf(rw, "# TYPE noescape_active_blocks gauge\n")
	fmt.Fprintf(rw, "noescape_active_blocks{kind=%q} %d\n", "raid", m.RaidBlocks)
	fmt.Fprintf(rw, "noescape_active_blocks{kind=%q} %d\n", "combat", m.CombatBlocks)

	fmt.Fprintf(rw, "# HELP noescape_raid_zones Tracked raid zones.\n")
	fmt.Fprintf(rw, "# TYPE noescape_raid_zones gauge\n")
	fmt.Fprintf(rw, "noescape_raid_zones %d\n", m.Zones)

	fmt.Fprintf(rw, "# HELP noescape_pending Pending scheduler entries.\n")
	fmt.Fprintf(rw, "# TYPE noescape_pending gauge\n")
	fmt.Fprintf(rw, "noescape_pending{what=%q} %d\n", "timers", m.PendingTimers)
	fmt.Fprintf(rw, "noescape_pending{what=%q} %d\n", "unblocks", m.PendingUnblocks)

	fmt.Fprintf(rw, "# HELP noescape_social_cache_total Friend/clan cache lookups.\n")
	fmt.Fprintf(rw, "# TYPE noescape_social_cache_total counter\n")
	fmt.Fprintf(rw, "noescape_social_cache_total{result=%q} %d\n", "hit", m.CacheHits)
	fmt.Fprintf(rw, "noescape_social_cache_total{result=%q} %d\n", "miss", m.CacheMisses)

	fmt.Fprintf(rw, "# HELP noescape_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(rw, "# TYPE noescape_queue_depth gauge\n")
	fmt.Fprintf(rw, "noescape_queue_depth{queue=%q} %d\n", "inbox", m.InboxDepth)
	if o.idx != nil {
		st := o.idx.Stats()
		fmt.Fprintf(rw, "noescape_queue_depth{queue=%q} %d\n", "index", st.QueueDepth)
		fmt.Fprintf(rw, "# HELP noescape_index_dropped_total Index records dropped on a full queue.\n")
		fmt.Fprintf(rw, "# TYPE noescape_index_dropped_total counter\n")
		fmt.Fprintf(rw, "noescape_index_dropped_total %d\n", st.DropBlockTotal+st.DropDenialTotal+st.DropZoneTotal)
	}

	fmt.Fprintf(rw, "# HELP noescape_engine_total Engine work counters.\n")
	fmt.Fprintf(rw, "# TYPE noescape_engine_total counter\n")
	fmt.Fprintf(rw, "noescape_engine_total{what=%q} %d\n", "handled", m.Handled)
	fmt.Fprintf(rw, "noescape_engine_total{what=%q} %d\n", "fired", m.Fired)
	fmt.Fprintf(rw, "noescape_engine_total{what=%q} %d\n", "dropped", m.Dropped)

	if o.hub != nil {
		hs := o.hub.Stats()
		fmt.Fprintf(rw, "# HELP noescape_host_sessions Connected host sessions.\n")
		fmt.Fprintf(rw, "# TYPE noescape_host_sessions gauge\n")
		fmt.Fprintf(rw, "noescape_host_sessions %d\n", hs.Sessions)
		fmt.Fprintf(rw, "# HELP noescape_host_messages_total Messages pushed to hosts.\n")
		fmt.Fprintf(rw, "# TYPE noescape_host_messages_total counter\n")
		fmt.Fprintf(rw, "noescape_host_messages_total{result=%q} %d\n", "sent", hs.Sent)
		fmt.Fprintf(rw, "noescape_host_messages_total{result=%q} %d\n", "dropped", hs.Dropped)
	}
	if o.blockLog != nil {
		fmt.Fprintf(rw, "# HELP noescape_event_log_errors_total Event log write failures.\n")
		fmt.Fprintf(rw, "# TYPE noescape_event_log_errors_total counter\n")
		fmt.Fprintf(rw, "noescape_event_log_errors_total %d\n", o.blockLog.Errors())
	}
	if o.archive != nil {
		as := o.archive.Stats()
		fmt.Fprintf(rw, "# HELP noescape_archive_uploads_total Block log files shipped to the bucket.\n")
		fmt.Fprintf(rw, "# TYPE noescape_archive_uploads_total counter\n")
		fmt.Fprintf(rw, "noescape_archive_uploads_total{result=%q} %d\n", "ok", as.UploadedTotal)
		fmt.Fprintf(rw, "noescape_archive_uploads_total{result=%q} %d\n", "failed", as.FailedTotal)
		fmt.Fprintf(rw, "noescape_archive_uploads_total{result=%q} %d\n", "dropped", as.DroppedTotal)
	}
}

func (o *opsHandler) state(rw http.ResponseWriter, r *http.Request) {
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	st, err := o.eng.State(ctx)
	rw.Header().Set("Content-Type", "application/json")
	if err != nil {
		rw.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
		return
	}
	resp := struct {
		State   engine.State   `json:"state"`
		Metrics engine.Metrics `json:"metrics"`
	}{State: st, Metrics: o.eng.Metrics()}
	_ = json.NewEncoder(rw).Encode(resp)
}

// stop handles POST /admin/v1/stop?actor=<id>[&kind=raid|combat].
func (o *opsHandler) stop(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	actor := strings.TrimSpace(r.URL.Query().Get("actor"))
	if actor == "" {
		http.Error(rw, "missing actor", http.StatusBadRequest)
		return
	}
	var kind model.Kind
	if k := r.URL.Query().Get("kind"); k != "" {
		var ok bool
		if kind, ok = model.ParseKind(k); !ok {
			http.Error(rw, "bad kind", http.StatusBadRequest)
			return
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	n, err := o.eng.StopBlock(ctx, actor, kind)
	rw.Header().Set("Content-Type", "application/json")
	if err != nil {
		rw.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
		return
	}
	_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "stopped": n})
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// multiSink fans the engine audit trail out to every configured sink.
type multiSink []engine.Sink

func (m multiSink) RecordBlock(ev model.BlockEvent) {
	for _, s := range m {
		if s != nil {
			s.RecordBlock(ev)
		}
	}
}

func (m multiSink) RecordDenial(d model.GateDenial) {
	for _, s := range m {
		if s != nil {
			s.RecordDenial(d)
		}
	}
}

func (m multiSink) RecordZone(ev model.ZoneEvent) {
	for _, s := range m {
		if s != nil {
			s.RecordZone(ev)
		}
	}
}
