package log

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"noescape.gg/internal/sim/engine/kernel/model"
	"noescape.gg/internal/sim/engine/logic/mathx"
)

func TestBlockLoggerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewBlockLogger(dir)
	t0 := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	l.w.now = func() time.Time { return t0 }

	pos := mathx.Vec3{X: 1, Y: 2, Z: 3}
	l.RecordBlock(model.BlockEvent{At: t0, Actor: "p1", Kind: "raid", Reason: model.ReasonStarted, Duration: 300 * time.Second, Pos: &pos})
	l.RecordDenial(model.GateDenial{At: t0, Actor: "p1", Kind: "raid", Action: "tp", Message: "blocked"})
	l.RecordZone(model.ZoneEvent{At: t0, ZoneID: "z1", Op: model.ZoneOpCreate, Pos: pos, Radius: 50})
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if l.Errors() != 0 {
		t.Fatalf("write errors: %d", l.Errors())
	}

	files, err := Files(dir)
	if err != nil || len(files) != 1 {
		t.Fatalf("files: %v %v", files, err)
	}
	if got := filepath.Base(files[0]); got != "blocks-2024-05-01-12.jsonl.zst" {
		t.Fatalf("file name: %s", got)
	}
	recs, err := ReadFile(files[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("records: got %d want 3", len(recs))
	}
	if recs[0].Type != RecordBlock || recs[0].Block.Actor != "p1" || recs[0].Block.Pos.Z != 3 {
		t.Fatalf("block record: %+v", recs[0])
	}
	if recs[1].Type != RecordDenial || recs[1].Denial.Action != "tp" {
		t.Fatalf("denial record: %+v", recs[1])
	}
	if recs[2].Type != RecordZone || recs[2].Zone.Radius != 50 || !recs[2].At().Equal(t0) {
		t.Fatalf("zone record: %+v", recs[2])
	}
}

func TestWriterRotatesHourlyAndAppendsFrames(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(filepath.Join(dir, "events"), "blocks")
	now := time.Date(2024, 5, 1, 12, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	write := func(actor string) {
		t.Helper()
		if err := w.WriteJSON(Record{Type: RecordBlock, Block: &model.BlockEvent{Actor: actor}}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write("a")
	now = now.Add(2 * time.Minute)
	write("b")
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopening the same hour appends a second frame.
	now = now.Add(time.Minute)
	write("c")
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, _ := Files(dir)
	if len(files) != 2 {
		t.Fatalf("expected 2 hourly files, got %v", files)
	}
	recs, err := ReadFile(files[1])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(recs) != 2 || recs[0].Block.Actor != "b" || recs[1].Block.Actor != "c" {
		t.Fatalf("unexpected records in second hour: %+v", recs)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl.zst")
	if err := os.WriteFile(path, []byte("not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(path); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestOnFileClosedSeesRotatedFiles(t *testing.T) {
	dir := t.TempDir()
	l := NewBlockLogger(dir)
	now := time.Date(2024, 5, 1, 12, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return now }
	var closed []string
	l.OnFileClosed(func(path string) { closed = append(closed, filepath.Base(path)) })

	l.RecordBlock(model.BlockEvent{Actor: "a"})
	now = now.Add(2 * time.Minute)
	l.RecordBlock(model.BlockEvent{Actor: "b"})
	if len(closed) != 1 || closed[0] != "blocks-2024-05-01-12.jsonl.zst" {
		t.Fatalf("after rotation: %v", closed)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(closed) != 2 || closed[1] != "blocks-2024-05-01-13.jsonl.zst" {
		t.Fatalf("after close: %v", closed)
	}
	if err := l.Close(); err != nil || len(closed) != 2 {
		t.Fatalf("second close: %v %v", closed, err)
	}
}
