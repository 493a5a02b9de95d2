package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"noescape.gg/internal/sim/engine/kernel/model"
)

// SQLiteIndex mirrors the block event log into sqlite for ad-hoc queries.
// Writes are queued and applied by one goroutine; a full queue drops the
// record, the jsonl log stays the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropBlock  atomic.Uint64
	dropDenial atomic.Uint64
	dropZone   atomic.Uint64
	writeFail  atomic.Uint64
}

type reqKind int

const (
	reqBlock reqKind = iota + 1
	reqDenial
	reqZone
)

type req struct {
	kind reqKind

	block  model.BlockEvent
	denial model.GateDenial
	zone   model.ZoneEvent
}

type Stats struct {
	QueueDepth      int    `json:"queue_depth"`
	QueueCapacity   int    `json:"queue_capacity"`
	DropBlockTotal  uint64 `json:"drop_block_total"`
	DropDenialTotal uint64 `json:"drop_denial_total"`
	DropZoneTotal   uint64 `json:"drop_zone_total"`
	WriteFailTotal  uint64 `json:"write_fail_total"`
}

const defaultQueue = 65536

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{db: db, ch: make(chan req, defaultQueue)}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

// OpenExisting opens an index for queries without starting the writer.
func OpenExisting(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS block_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at_ms INTEGER NOT NULL,
			actor TEXT NOT NULL,
			kind TEXT NOT NULL,
			reason TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			expires_at_ms INTEGER NOT NULL,
			x REAL,
			y REAL,
			z REAL,
			trigger_name TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_block_events_actor_at ON block_events(actor, at_ms);`,
		`CREATE INDEX IF NOT EXISTS idx_block_events_at ON block_events(at_ms);`,
		`CREATE TABLE IF NOT EXISTS gate_denials (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at_ms INTEGER NOT NULL,
			actor TEXT NOT NULL,
			kind TEXT NOT NULL,
			action TEXT NOT NULL,
			message TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_gate_denials_actor_at ON gate_denials(actor, at_ms);`,
		`CREATE TABLE IF NOT EXISTS zone_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at_ms INTEGER NOT NULL,
			zone_id TEXT NOT NULL,
			op TEXT NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			z REAL NOT NULL,
			radius REAL NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_zone_events_zone_at ON zone_events(zone_id, at_ms);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// DB exposes the handle for queries issued by the owning process.
func (s *SQLiteIndex) DB() *sql.DB { return s.db }

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) RecordBlock(ev model.BlockEvent) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqBlock, block: ev}, &s.dropBlock)
}

func (s *SQLiteIndex) RecordDenial(d model.GateDenial) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqDenial, denial: d}, &s.dropDenial)
}

func (s *SQLiteIndex) RecordZone(ev model.ZoneEvent) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqZone, zone: ev}, &s.dropZone)
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:      len(s.ch),
		QueueCapacity:   cap(s.ch),
		DropBlockTotal:  s.dropBlock.Load(),
		DropDenialTotal: s.dropDenial.Load(),
		DropZoneTotal:   s.dropZone.Load(),
		WriteFailTotal:  s.writeFail.Load(),
	}
}

func ms(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertBlock, _ := s.db.Prepare(`INSERT INTO block_events(at_ms,actor,kind,reason,duration_ms,expires_at_ms,x,y,z,trigger_name) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertDenial, _ := s.db.Prepare(`INSERT INTO gate_denials(at_ms,actor,kind,action,message) VALUES(?,?,?,?,?)`)
	insertZone, _ := s.db.Prepare(`INSERT INTO zone_events(at_ms,zone_id,op,x,y,z,radius) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertBlock, insertDenial, insertZone} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeFail.Add(uint64(opCount))
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil {
			s.writeFail.Add(1)
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			s.writeFail.Add(1)
			return
		}
		opCount++
	}

	// Idle flush so a quiet server still commits its last records.
	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		select {
		case r, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			begin()
			if tx == nil {
				s.writeFail.Add(1)
				continue
			}
			switch r.kind {
			case reqBlock:
				b := r.block
				var x, y, z any
				if b.Pos != nil {
					x, y, z = b.Pos.X, b.Pos.Y, b.Pos.Z
				}
				exec(insertBlock, ms(b.At), b.Actor, b.Kind, string(b.Reason), b.Duration.Milliseconds(), ms(b.ExpiresAt), x, y, z, b.Trigger)
			case reqDenial:
				d := r.denial
				exec(insertDenial, ms(d.At), d.Actor, d.Kind, d.Action, d.Message)
			case reqZone:
				z := r.zone
				exec(insertZone, ms(z.At), z.ZoneID, z.Op, z.Pos.X, z.Pos.Y, z.Pos.Z, z.Radius)
			}
			if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
		case <-ticker.C:
			if tx != nil && time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
		}
	}
}
