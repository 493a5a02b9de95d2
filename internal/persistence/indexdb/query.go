package indexdb

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// Filter narrows a query. Zero values match everything; Limit <= 0 means 100.
type Filter struct {
	Actor string
	Kind  string
	Since time.Time
	Limit int
}

type BlockRow struct {
	At        time.Time
	Actor     string
	Kind      string
	Reason    string
	Duration  time.Duration
	ExpiresAt time.Time
	Trigger   string
}

type DenialRow struct {
	At      time.Time
	Actor   string
	Kind    string
	Action  string
	Message string
}

type ZoneRow struct {
	At     time.Time
	ZoneID string
	Op     string
	X      float64
	Y      float64
	Z      float64
	Radius float64
}

func fromMs(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v).UTC()
}

func where(f Filter, actorCol, kindCol string) (string, []any) {
	var conds []string
	var args []any
	if f.Actor != "" && actorCol != "" {
		conds = append(conds, actorCol+" = ?")
		args = append(args, f.Actor)
	}
	if f.Kind != "" && kindCol != "" {
		conds = append(conds, kindCol+" = ?")
		args = append(args, f.Kind)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "at_ms >= ?")
		args = append(args, f.Since.UnixMilli())
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q := ""
	if len(conds) > 0 {
		q = " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY at_ms DESC, id DESC LIMIT ?"
	args = append(args, limit)
	return q, args
}

// BlockEvents returns the newest matching lifecycle events first.
func BlockEvents(ctx context.Context, db *sql.DB, f Filter) ([]BlockRow, error) {
	q, args := where(f, "actor", "kind")
	rows, err := db.QueryContext(ctx, `SELECT at_ms,actor,kind,reason,duration_ms,expires_at_ms,trigger_name FROM block_events`+q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BlockRow
	for rows.Next() {
		var r BlockRow
		var at, dur, exp int64
		if err := rows.Scan(&at, &r.Actor, &r.Kind, &r.Reason, &dur, &exp, &r.Trigger); err != nil {
			return nil, err
		}
		r.At, r.ExpiresAt = fromMs(at), fromMs(exp)
		r.Duration = time.Duration(dur) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

func Denials(ctx context.Context, db *sql.DB, f Filter) ([]DenialRow, error) {
	q, args := where(f, "actor", "kind")
	rows, err := db.QueryContext(ctx, `SELECT at_ms,actor,kind,action,message FROM gate_denials`+q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DenialRow
	for rows.Next() {
		var r DenialRow
		var at int64
		if err := rows.Scan(&at, &r.Actor, &r.Kind, &r.Action, &r.Message); err != nil {
			return nil, err
		}
		r.At = fromMs(at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ZoneEvents filters on zone id through Filter.Actor.
func ZoneEvents(ctx context.Context, db *sql.DB, f Filter) ([]ZoneRow, error) {
	q, args := where(f, "zone_id", "")
	rows, err := db.QueryContext(ctx, `SELECT at_ms,zone_id,op,x,y,z,radius FROM zone_events`+q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ZoneRow
	for rows.Next() {
		var r ZoneRow
		var at int64
		if err := rows.Scan(&at, &r.ZoneID, &r.Op, &r.X, &r.Y, &r.Z, &r.Radius); err != nil {
			return nil, err
		}
		r.At = fromMs(at)
		out = append(out, r)
	}
	return out, rows.Err()
}
