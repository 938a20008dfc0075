package log

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"beltline.ai/internal/protocol"
	"beltline.ai/internal/sim/world"
)

func readTicks(t *testing.T, files []string) []world.TickLogEntry {
	t.Helper()
	var out []world.TickLogEntry
	for _, f := range files {
		err := ReadJSONLZstd(f, func(line []byte) error {
			var e world.TickLogEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
	}
	return out
}

func TestTickLogger_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	tl := NewTickLogger(dir)
	now := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	tl.clock = func() time.Time { return now }

	for tick := uint64(1); tick <= 3; tick++ {
		if err := tl.WriteTick(world.TickLogEntry{Tick: tick, Digest: "d"}); err != nil {
			t.Fatalf("WriteTick(%d): %v", tick, err)
		}
		now = now.Add(time.Minute)
	}
	if err := tl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := ListFiles(filepath.Join(dir, KindTicks), KindTicks)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "ticks-2026-03-01-10.jsonl.zst" {
		t.Fatalf("files=%v", files)
	}
	if filepath.Base(files[1]) != SegmentName(KindTicks, now) {
		t.Fatalf("second segment=%s", files[1])
	}
	got := readTicks(t, files)
	if len(got) != 3 || got[0].Tick != 1 || got[2].Tick != 3 {
		t.Fatalf("ticks=%+v", got)
	}
}

func TestTickLogger_RejectsOutOfOrderTicks(t *testing.T) {
	dir := t.TempDir()
	tl := NewTickLogger(dir)
	defer tl.Close()

	if err := tl.WriteTick(world.TickLogEntry{Tick: 0}); err != nil {
		t.Fatalf("WriteTick(0): %v", err)
	}
	if err := tl.WriteTick(world.TickLogEntry{Tick: 0}); err == nil {
		t.Fatalf("repeated tick accepted")
	}
	if err := tl.WriteTick(world.TickLogEntry{Tick: 5}); err != nil {
		t.Fatalf("WriteTick(5): %v", err)
	}
	if err := tl.WriteTick(world.TickLogEntry{Tick: 4}); err == nil {
		t.Fatalf("older tick accepted")
	}
}

func TestAuditLogger_OrderAndAction(t *testing.T) {
	dir := t.TempDir()
	al := NewAuditLogger(dir)
	defer al.Close()

	v := int64(7)
	for _, e := range []world.AuditEntry{
		{Tick: 4, Actor: "S1", Action: "PLACE_BELT", Pos: [2]int{3, 0}, Kind: "BELT"},
		{Tick: 4, Actor: "WORLD", Action: "DELIVER", Pos: [2]int{4, 0}, Value: &v},
	} {
		if err := al.WriteAudit(e); err != nil {
			t.Fatalf("WriteAudit: %v", err)
		}
	}
	if err := al.WriteAudit(world.AuditEntry{Tick: 3, Action: "REMOVE"}); err == nil {
		t.Fatalf("older tick accepted")
	}
	if err := al.WriteAudit(world.AuditEntry{Tick: 5}); err == nil {
		t.Fatalf("entry without action accepted")
	}
}

func TestTickAndAuditLoggers(t *testing.T) {
	dir := t.TempDir()
	tl := NewTickLogger(dir)
	al := NewAuditLogger(dir)

	v := int64(7)
	params := &protocol.WorldParams{TickRateHz: 30, ExtractIntervalSec: 1, OperatorIntervalSec: 0.5, BeltTilesPerSec: 2, MaxCatchUp: 5}
	if err := tl.WriteTick(world.TickLogEntry{Tick: 4, Params: params, Digest: "abc", Deliveries: []world.DeliveryRecord{{Pos: [2]int{4, 0}, Value: 7}}}); err != nil {
		t.Fatalf("WriteTick: %v", err)
	}
	if err := al.WriteAudit(world.AuditEntry{Tick: 4, Actor: "WORLD", Action: "DELIVER", Pos: [2]int{4, 0}, Value: &v}); err != nil {
		t.Fatalf("WriteAudit: %v", err)
	}
	if err := tl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := al.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	ticks, _ := ListFiles(filepath.Join(dir, KindTicks), KindTicks)
	audits, _ := ListFiles(filepath.Join(dir, KindAudit), KindAudit)
	if len(ticks) != 1 || len(audits) != 1 {
		t.Fatalf("ticks=%v audits=%v", ticks, audits)
	}

	got := readTicks(t, ticks)
	if len(got) != 1 || got[0].Tick != 4 || len(got[0].Deliveries) != 1 || got[0].Deliveries[0].Value != 7 {
		t.Fatalf("entries=%+v", got)
	}
	if got[0].Params == nil || *got[0].Params != *params {
		t.Fatalf("entries=%+v", got)
	}
}
