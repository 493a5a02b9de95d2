package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"noescape.gg/internal/persistence/indexdb"
)

func dbCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("db", flag.ContinueOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default <data>/index/noescape.sqlite)")
	actor := fs.String("actor", "", "actor filter (zone id for zones)")
	kind := fs.String("kind", "", "kind filter: raid|combat")
	since := fs.Duration("since", 0, "only rows newer than this (e.g. 1h)")
	limit := fs.Int("limit", 20, "result limit")
	asJSON := fs.Bool("json", false, "print rows as json lines")
	if err := fs.Parse(args); err != nil {
		return err
	}

	q := "events"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "noescape.sqlite")
	}
	db, err := indexdb.OpenExisting(path)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer db.Close()

	now := time.Now()
	f := indexdb.Filter{Actor: *actor, Kind: *kind, Limit: *limit}
	if *since > 0 {
		f.Since = now.Add(-*since)
	}
	ctx := context.Background()

	switch q {
	case "events":
		rows, err := indexdb.BlockEvents(ctx, db, f)
		if err != nil {
			return err
		}
		if *asJSON {
			return writeJSONLines(out, rows)
		}
		return writeBlockRows(out, rows, now)
	case "denials":
		rows, err := indexdb.Denials(ctx, db, f)
		if err != nil {
			return err
		}
		if *asJSON {
			return writeJSONLines(out, rows)
		}
		return writeDenialRows(out, rows, now)
	case "zones":
		rows, err := indexdb.ZoneEvents(ctx, db, f)
		if err != nil {
			return err
		}
		if *asJSON {
			return writeJSONLines(out, rows)
		}
		return writeZoneRows(out, rows, now)
	default:
		return fmt.Errorf("unknown db query %q (events|denials|zones)", q)
	}
}

func when(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func writeBlockRows(out io.Writer, rows []indexdb.BlockRow, now time.Time) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tACTOR\tKIND\tREASON\tDURATION\tTRIGGER")
	for _, r := range rows {
		dur := "-"
		if r.Duration > 0 {
			dur = r.Duration.String()
		}
		trig := r.Trigger
		if trig == "" {
			trig = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", when(r.At, now), r.Actor, r.Kind, r.Reason, dur, trig)
	}
	fmt.Fprintf(tw, "%s rows\n", humanize.Comma(int64(len(rows))))
	return tw.Flush()
}

func writeDenialRows(out io.Writer, rows []indexdb.DenialRow, now time.Time) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tACTOR\tKIND\tACTION\tMESSAGE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", when(r.At, now), r.Actor, r.Kind, r.Action, r.Message)
	}
	fmt.Fprintf(tw, "%s rows\n", humanize.Comma(int64(len(rows))))
	return tw.Flush()
}

func writeZoneRows(out io.Writer, rows []indexdb.ZoneRow, now time.Time) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tZONE\tOP\tPOS\tRADIUS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f,%.1f,%.1f\t%s\n", when(r.At, now), r.ZoneID, r.Op, r.X, r.Y, r.Z, humanize.Ftoa(r.Radius))
	}
	fmt.Fprintf(tw, "%s rows\n", humanize.Comma(int64(len(rows))))
	return tw.Flush()
}

func writeJSONLines[T any](out io.Writer, rows []T) error {
	enc := json.NewEncoder(out)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
