package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"beltline.ai/internal/persistence/snapshot"
	"beltline.ai/internal/protocol"
	"beltline.ai/internal/sim/tuning"
	"beltline.ai/internal/sim/world"
)

func TestSQLiteIndex_WritesAndReads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "world.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := idx.UpsertTuning(tuning.Defaults()); err != nil {
		t.Fatalf("UpsertTuning: %v", err)
	}

	emit := int64(7)
	_ = idx.WriteTick(world.TickLogEntry{
		Tick:   0,
		Digest: "d0",
		Commands: []world.RecordedCmd{
			{SessionID: "S1", Cmd: protocol.CmdMsg{Op: protocol.OpPlaceExtractor, Pos: [2]int{0, 0}, Emit: &emit}, OK: true},
			{SessionID: "S1", Cmd: protocol.CmdMsg{Op: protocol.OpPlaceBelt, Pos: [2]int{0, 0}, Dir: "UP"}, Code: protocol.ErrOccupied},
		},
	})
	_ = idx.WriteTick(world.TickLogEntry{
		Tick:       51,
		Digest:     "d51",
		Deliveries: []world.DeliveryRecord{{Pos: [2]int{4, 0}, Value: 7}, {Pos: [2]int{4, 1}, Value: -2}},
	})
	_ = idx.WriteAudit(world.AuditEntry{Tick: 51, Actor: "WORLD", Action: "DELIVER", Pos: [2]int{4, 0}, Value: &emit})
	tok := int64(3)
	idx.RecordSnapshot("/data/3000.snap.zst", snapshot.SnapshotV1{
		Header:   snapshot.Header{Version: snapshot.Version, Tick: 3000},
		Tiles:    []snapshot.TileV1{{Kind: "BELT", Token: &tok}, {Kind: "CONSUMER"}},
		Counters: snapshot.CountersV1{Delivered: 2},
	})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if st := idx.Stats(); st.DropTickTotal+st.DropAuditTotal+st.DropSnapshotTotal != 0 {
		t.Fatalf("unexpected drops: %+v", st)
	}

	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()
	ctx := context.Background()

	ticks, err := r.Ticks(ctx, 10)
	if err != nil {
		t.Fatalf("Ticks: %v", err)
	}
	if len(ticks) != 2 || ticks[0].Tick != 51 || ticks[0].Deliveries != 2 || ticks[1].Commands != 2 {
		t.Fatalf("ticks=%+v", ticks)
	}

	dels, err := r.Deliveries(ctx, 10)
	if err != nil {
		t.Fatalf("Deliveries: %v", err)
	}
	if len(dels) != 2 || dels[0].Value != -2 || dels[1].Pos != [2]int{4, 0} {
		t.Fatalf("deliveries=%+v", dels)
	}

	snaps, err := r.Snapshots(ctx, 10)
	if err != nil {
		t.Fatalf("Snapshots: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Tiles != 2 || snaps[0].Tokens != 1 || snaps[0].TokenSum != 3 {
		t.Fatalf("snapshots=%+v", snaps)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var okCount, failCount int
	if err := db.QueryRow(`SELECT SUM(ok), COUNT(*)-SUM(ok) FROM commands WHERE tick=0`).Scan(&okCount, &failCount); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if okCount != 1 || failCount != 1 {
		t.Fatalf("ok=%d fail=%d", okCount, failCount)
	}
	var digest string
	if err := db.QueryRow(`SELECT digest FROM config WHERE name='tuning'`).Scan(&digest); err != nil || len(digest) != 64 {
		t.Fatalf("tuning digest=%q err=%v", digest, err)
	}
}

func TestSQLiteIndex_DropsWhenQueueFull(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: world.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(world.TickLogEntry{Tick: 2})
	_ = s.WriteAudit(world.AuditEntry{Tick: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropTickTotal != 1 || st.DropAuditTotal != 1 || st.DropSnapshotTotal != 1 {
		t.Fatalf("stats=%+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}
