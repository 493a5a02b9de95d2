package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	persistlog "noescape.gg/internal/persistence/log"
)

func logCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("log", flag.ContinueOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	actor := fs.String("actor", "", "only records for this actor (or zone id)")
	typ := fs.String("type", "", "only records of this type: block|denial|zone")
	raw := fs.Bool("json", false, "print records as stored")
	if err := fs.Parse(args); err != nil {
		return err
	}

	files := fs.Args()
	if len(files) == 0 {
		var err error
		if files, err = persistlog.Files(*dataDir); err != nil {
			return err
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no block logs under %s", filepath.Join(*dataDir, "events"))
	}

	match := func(r persistlog.Record) bool {
		if *typ != "" && r.Type != *typ {
			return false
		}
		if *actor == "" {
			return true
		}
		switch {
		case r.Block != nil:
			return r.Block.Actor == *actor
		case r.Denial != nil:
			return r.Denial.Actor == *actor
		case r.Zone != nil:
			return r.Zone.ZoneID == *actor
		}
		return false
	}

	enc := json.NewEncoder(out)
	total := 0
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		var werr error
		err = persistlog.Decode(f, func(r persistlog.Record) bool {
			if !match(r) {
				return true
			}
			total++
			if *raw {
				werr = enc.Encode(r)
			} else {
				_, werr = fmt.Fprintln(out, formatRecord(r))
			}
			return werr == nil
		})
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if werr != nil {
			return werr
		}
	}
	if !*raw {
		fmt.Fprintf(out, "%s records in %d files\n", humanize.Comma(int64(total)), len(files))
	}
	return nil
}

func formatRecord(r persistlog.Record) string {
	ts := r.At().UTC().Format(time.RFC3339)
	switch {
	case r.Block != nil:
		b := r.Block
		parts := []string{ts, "block", b.Actor, b.Kind, string(b.Reason)}
		if b.Duration > 0 {
			parts = append(parts, "for="+b.Duration.String())
		}
		if b.Trigger != "" {
			parts = append(parts, "trigger="+b.Trigger)
		}
		return strings.Join(parts, " ")
	case r.Denial != nil:
		d := r.Denial
		return fmt.Sprintf("%s denial %s %s %s %q", ts, d.Actor, d.Kind, d.Action, d.Message)
	case r.Zone != nil:
		z := r.Zone
		return fmt.Sprintf("%s zone %s %s r=%s at=%.1f,%.1f,%.1f", ts, z.ZoneID, z.Op, humanize.Ftoa(z.Radius), z.Pos.X, z.Pos.Y, z.Pos.Z)
	}
	return ts + " " + r.Type
}
