package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"

	"noescape.gg/internal/sim/engine/kernel/model"
)

// JSONLZstdWriter appends one JSON document per line into hourly
// <prefix>-YYYY-MM-DD-HH.jsonl.zst files. Each open/close yields one zstd
// frame, so reopening an hour appends a new frame to the same file.
type JSONLZstdWriter struct {
	dir    string
	prefix string
	now    func() time.Time

	// onClose receives the path of every file the writer finishes with.
	onClose func(path string)

	mu      sync.Mutex
	curHour string
	path    string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(dir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{dir: dir, prefix: prefix, now: time.Now}
}

func (l *JSONLZstdWriter) rotateIfNeeded(t time.Time) error {
	hour := t.UTC().Format("2006-01-02-15")
	if hour == l.curHour && l.f != nil {
		return nil
	}
	if err := l.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(l.dir, fmt.Sprintf("%s-%s.jsonl.zst", l.prefix, hour))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	l.curHour = hour
	l.path = path
	l.f = f
	l.enc = enc
	l.w = bufio.NewWriterSize(enc, 64*1024)
	return nil
}

func (l *JSONLZstdWriter) WriteJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.rotateIfNeeded(l.now()); err != nil {
		return err
	}
	if _, err := l.w.Write(b); err != nil {
		return err
	}
	return l.w.WriteByte('\n')
}

// Flush pushes buffered lines through the encoder so readers of the current
// hour see them.
func (l *JSONLZstdWriter) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return nil
	}
	if err := l.w.Flush(); err != nil {
		return err
	}
	return l.enc.Flush()
}

func (l *JSONLZstdWriter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *JSONLZstdWriter) closeLocked() error {
	if l.f == nil {
		return nil
	}
	var errs []error
	if l.w != nil {
		errs = append(errs, l.w.Flush())
	}
	if l.enc != nil {
		errs = append(errs, l.enc.Close())
	}
	errs = append(errs, l.f.Close())
	closed := l.path
	l.f, l.enc, l.w = nil, nil, nil
	l.curHour, l.path = "", ""
	err := errors.Join(errs...)
	if err == nil && l.onClose != nil {
		l.onClose(closed)
	}
	return err
}

const (
	RecordBlock  = "block"
	RecordDenial = "denial"
	RecordZone   = "zone"
)

// Record is one line of the block event log.
type Record struct {
	Type   string            `json:"type"`
	Block  *model.BlockEvent `json:"block,omitempty"`
	Denial *model.GateDenial `json:"denial,omitempty"`
	Zone   *model.ZoneEvent  `json:"zone,omitempty"`
}

// At returns the timestamp of whichever payload the record carries.
func (r Record) At() time.Time {
	switch {
	case r.Block != nil:
		return r.Block.At
	case r.Denial != nil:
		return r.Denial.At
	case r.Zone != nil:
		return r.Zone.At
	}
	return time.Time{}
}

// BlockLogger is the engine audit sink backed by data/events/blocks-*.jsonl.zst.
type BlockLogger struct {
	w      *JSONLZstdWriter
	errors atomic.Uint64
}

func NewBlockLogger(dataDir string) *BlockLogger {
	return &BlockLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "events"), "blocks")}
}

// OnFileClosed registers fn to run whenever an hourly file is rotated out or
// the logger is closed. Call it before the first record is written.
func (l *BlockLogger) OnFileClosed(fn func(path string)) { l.w.onClose = fn }

func (l *BlockLogger) write(r Record) {
	if err := l.w.WriteJSON(r); err != nil {
		l.errors.Add(1)
	}
}

func (l *BlockLogger) RecordBlock(ev model.BlockEvent) {
	l.write(Record{Type: RecordBlock, Block: &ev})
}

func (l *BlockLogger) RecordDenial(d model.GateDenial) {
	l.write(Record{Type: RecordDenial, Denial: &d})
}

func (l *BlockLogger) RecordZone(ev model.ZoneEvent) {
	l.write(Record{Type: RecordZone, Zone: &ev})
}

// Errors counts records that could not be written.
func (l *BlockLogger) Errors() uint64 { return l.errors.Load() }

func (l *BlockLogger) Flush() error { return l.w.Flush() }

func (l *BlockLogger) Close() error { return l.w.Close() }

// Decode streams the records of one .jsonl.zst file. fn returning false stops early.
func Decode(r io.Reader, fn func(Record) bool) error {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return err
	}
	defer dec.Close()
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if !fn(rec) {
			return nil
		}
	}
	return sc.Err()
}

func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []Record
	err = Decode(f, func(r Record) bool {
		out = append(out, r)
		return true
	})
	return out, err
}

// Files lists the block log files under dataDir, oldest first.
func Files(dataDir string) ([]string, error) {
	return filepath.Glob(filepath.Join(dataDir, "events", "blocks-*.jsonl.zst"))
}
