package world

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"beltline.ai/internal/persistence/snapshot"
	"beltline.ai/internal/protocol"
	"beltline.ai/internal/sim/grid"
)

func newTestWorld(t *testing.T, hz int) *World {
	t.Helper()
	w, err := New(WorldConfig{ID: "test", TickRateHz: hz})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func cmd(id, op string, x, y int) protocol.CmdMsg {
	return protocol.CmdMsg{Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, CmdID: id, Op: op, Pos: [2]int{x, y}}
}

func belt(id string, x, y int, dir string) protocol.CmdMsg {
	c := cmd(id, protocol.OpPlaceBelt, x, y)
	c.Dir = dir
	return c
}

func extractor(id string, x, y int, emit int64) protocol.CmdMsg {
	c := cmd(id, protocol.OpPlaceExtractor, x, y)
	c.Emit = &emit
	return c
}

// lineCmds builds extractor(0,0) -> belts x=1..3 -> consumer(4,0).
func lineCmds() []CommandEnvelope {
	cmds := []protocol.CmdMsg{
		extractor("c0", 0, 0, 7),
		belt("c1", 1, 0, "RIGHT"),
		belt("c2", 2, 0, "RIGHT"),
		belt("c3", 3, 0, "RIGHT"),
		cmd("c4", protocol.OpPlaceConsumer, 4, 0),
	}
	out := make([]CommandEnvelope, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, CommandEnvelope{SessionID: "S1", Cmd: c})
	}
	return out
}

func applyOne(t *testing.T, w *World, c protocol.CmdMsg) protocol.CmdResultMsg {
	t.Helper()
	resp := make(chan protocol.CmdResultMsg, 1)
	w.StepOnce([]CommandEnvelope{{SessionID: "S1", Cmd: c, Resp: resp}})
	select {
	case r := <-resp:
		return r
	default:
		t.Fatalf("no result for %s", c.CmdID)
	}
	return protocol.CmdResultMsg{}
}

func TestCommands_ResultCodes(t *testing.T) {
	w := newTestWorld(t, 20)

	if r := applyOne(t, w, belt("a", 0, 0, "UP")); !r.OK || r.CmdID != "a" {
		t.Fatalf("place belt: %+v", r)
	}
	if r := applyOne(t, w, belt("b", 0, 0, "DOWN")); r.OK || r.Code != protocol.ErrOccupied {
		t.Fatalf("expected occupied: %+v", r)
	}
	if w.grid.At(0, 0).Dir != grid.Up {
		t.Fatalf("rejected placement modified the cell")
	}
	if r := applyOne(t, w, belt("c", 1, 0, "SIDEWAYS")); r.OK || r.Code != protocol.ErrBadRequest {
		t.Fatalf("expected bad request: %+v", r)
	}
	if r := applyOne(t, w, cmd("d", protocol.OpRemove, 9, 9)); r.OK || r.Code != protocol.ErrEmpty {
		t.Fatalf("expected empty: %+v", r)
	}
	if r := applyOne(t, w, cmd("e", "ROTATE", 0, 0)); r.OK || r.Code != protocol.ErrBadRequest {
		t.Fatalf("expected unknown op rejected: %+v", r)
	}
	if r := applyOne(t, w, cmd("f", protocol.OpPlaceExtractor, 5, 5)); r.OK || r.Code != protocol.ErrBadRequest {
		t.Fatalf("expected missing emit rejected: %+v", r)
	}

	op := cmd("g", protocol.OpPlaceOperator, 10, 10)
	op.Kind, op.Orient = "ADD", "HORIZONTAL"
	if r := applyOne(t, w, op); !r.OK {
		t.Fatalf("place operator: %+v", r)
	}
	if w.grid.At(9, 10).Role != grid.RoleInputA || w.grid.At(11, 10).Role != grid.RoleInputB {
		t.Fatalf("operator inputs not placed")
	}
	if r := applyOne(t, w, cmd("h", protocol.OpRemove, 11, 10)); !r.OK {
		t.Fatalf("remove operator input: %+v", r)
	}
	if w.grid.Len() != 1 {
		t.Fatalf("tiles=%d, want only the belt", w.grid.Len())
	}
}

func TestDeterminism_SameCommandsSameDigest(t *testing.T) {
	w1 := newTestWorld(t, 20)
	w2 := newTestWorld(t, 20)

	for i := 0; i < 120; i++ {
		var cmds []CommandEnvelope
		if i == 0 {
			cmds = lineCmds()
		}
		tick1, d1 := w1.StepOnce(cmds)
		tick2, d2 := w2.StepOnce(cmds)
		if tick1 != tick2 || d1 != d2 {
			t.Fatalf("tick %d diverged: %s vs %s", i, d1, d2)
		}
	}
}

func TestStep_StreamsDeliveriesToSessions(t *testing.T) {
	w := newTestWorld(t, 20)
	out := make(chan []byte, 512)
	resp := make(chan protocol.WelcomeMsg, 1)
	w.step([]SubscribeRequest{{Name: "viewer", Out: out, Resp: resp}}, nil, lineCmds())

	welcome := <-resp
	if welcome.SessionID == "" || welcome.WorldID != "test" || welcome.WorldParams.TickRateHz != 20 {
		t.Fatalf("welcome=%+v", welcome)
	}

	for i := 0; i < 100; i++ {
		w.StepOnce(nil)
	}

	deliveries := 0
	results := 0
	for len(out) > 0 {
		b := <-out
		base, err := protocol.DecodeBase(b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		switch base.Type {
		case protocol.TypeDelivery:
			var d protocol.DeliveryMsg
			if err := json.Unmarshal(b, &d); err != nil {
				t.Fatalf("unmarshal delivery: %v", err)
			}
			if d.Value != 7 || d.Pos != [2]int{4, 0} {
				t.Fatalf("delivery=%+v", d)
			}
			deliveries++
		case protocol.TypeCmdResult:
			results++
		case protocol.TypeFrame:
			t.Fatalf("frames disabled but got one")
		}
	}
	if results != 5 {
		t.Fatalf("cmd results=%d, want 5", results)
	}
	if deliveries == 0 {
		t.Fatalf("expected deliveries after 5s")
	}
	m := w.Metrics()
	if m.Delivered != uint64(deliveries) || m.DeliveredValue != int64(7*deliveries) {
		t.Fatalf("metrics=%+v deliveries=%d", m, deliveries)
	}
	if m.Tick != w.CurrentTick() || m.Sessions != 1 {
		t.Fatalf("metrics=%+v", m)
	}
}

func TestStep_FramesFollowSessionCadence(t *testing.T) {
	w := newTestWorld(t, 20)
	out := make(chan []byte, 64)
	resp := make(chan protocol.WelcomeMsg, 1)
	w.step([]SubscribeRequest{{Out: out, Resp: resp, FrameEvery: 5}}, nil, nil)
	<-resp
	for i := 0; i < 19; i++ {
		w.StepOnce(nil)
	}
	// Ticks 0, 5, 10, 15.
	if len(out) != 4 {
		t.Fatalf("frames=%d, want 4", len(out))
	}
	var f protocol.FrameMsg
	if err := json.Unmarshal(<-out, &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.Type != protocol.TypeFrame || len(f.Digest) != 64 {
		t.Fatalf("frame=%+v", f)
	}
}

type captureLogger struct {
	ticks  []TickLogEntry
	audits []AuditEntry
}

func (c *captureLogger) WriteTick(e TickLogEntry) error {
	c.ticks = append(c.ticks, e)
	return nil
}

func (c *captureLogger) WriteAudit(e AuditEntry) error {
	c.audits = append(c.audits, e)
	return nil
}

func TestLoggers_RecordCommandsAndDeliveries(t *testing.T) {
	w := newTestWorld(t, 20)
	lg := &captureLogger{}
	w.SetTickLogger(lg)
	w.SetAuditLogger(lg)

	cmds := append(lineCmds(), CommandEnvelope{SessionID: "S2", Cmd: belt("dup", 1, 0, "LEFT")})
	w.StepOnce(cmds)
	for i := 0; i < 80; i++ {
		w.StepOnce(nil)
	}

	if len(lg.ticks) != 81 {
		t.Fatalf("tick entries=%d", len(lg.ticks))
	}
	first := lg.ticks[0]
	if len(first.Commands) != 6 || first.Commands[5].OK || first.Commands[5].Code != protocol.ErrOccupied {
		t.Fatalf("first tick commands=%+v", first.Commands)
	}

	placed, delivered := 0, 0
	for _, a := range lg.audits {
		switch a.Action {
		case "DELIVER":
			delivered++
			if a.Value == nil || *a.Value != 7 {
				t.Fatalf("deliver audit=%+v", a)
			}
		default:
			placed++
		}
	}
	if placed != 5 {
		t.Fatalf("placement audits=%d, want 5 (rejected command must not be audited)", placed)
	}
	if delivered == 0 {
		t.Fatalf("no delivery audits")
	}
}

func TestSnapshot_RoundTripContinuesIdentically(t *testing.T) {
	w1 := newTestWorld(t, 20)
	w1.StepOnce(lineCmds())
	for i := 0; i < 36; i++ {
		w1.StepOnce(nil)
	}

	snap := w1.ExportSnapshot(w1.CurrentTick() - 1)
	w2 := newTestWorld(t, 20)
	if err := w2.ImportSnapshot(snap); err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	if w2.CurrentTick() != w1.CurrentTick() {
		t.Fatalf("tick=%d want %d", w2.CurrentTick(), w1.CurrentTick())
	}

	for i := 0; i < 100; i++ {
		tick1, d1 := w1.StepOnce(nil)
		tick2, d2 := w2.StepOnce(nil)
		if tick1 != tick2 || d1 != d2 {
			t.Fatalf("diverged at tick %d", tick1)
		}
	}
	if w1.deliveredTotal != w2.deliveredTotal {
		t.Fatalf("delivered %d vs %d", w1.deliveredTotal, w2.deliveredTotal)
	}
}

func TestImportSnapshot_NormalizesStalledTransfer(t *testing.T) {
	tok := int64(5)
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.Version, WorldID: "x", Tick: 9},
		Tiles: []snapshot.TileV1{
			// Destination recorded but transfer never started.
			{Pos: [2]int{0, 0}, Kind: "BELT", Dir: "RIGHT", Dest: &[2]int{1, 0}, Token: &tok},
			{Pos: [2]int{1, 0}, Kind: "CONSUMER"},
		},
	}
	w := newTestWorld(t, 20)
	if err := w.ImportSnapshot(snap); err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	b := w.grid.At(0, 0)
	if !b.Settled() {
		t.Fatalf("belt not settled after import: %+v", b)
	}
	for i := 0; i < 20; i++ {
		w.StepOnce(nil)
	}
	if w.deliveredTotal != 1 || w.deliveredValue != 5 {
		t.Fatalf("delivered=%d value=%d", w.deliveredTotal, w.deliveredValue)
	}
}

func TestImportSnapshot_RejectsBadTiles(t *testing.T) {
	tok := int64(1)
	cases := map[string][]snapshot.TileV1{
		"kind":      {{Pos: [2]int{0, 0}, Kind: "PIPE"}},
		"dir":       {{Pos: [2]int{0, 0}, Kind: "BELT", Dir: "NORTH"}},
		"token":     {{Pos: [2]int{0, 0}, Kind: "CONSUMER", Token: &tok}},
		"duplicate": {{Pos: [2]int{0, 0}, Kind: "CONSUMER"}, {Pos: [2]int{0, 0}, Kind: "CONSUMER"}},
		"orphan input": {
			{Pos: [2]int{-1, 0}, Kind: "OPERATOR", Role: "INPUT_A", Op: "ADD", Orient: "HORIZONTAL", Origin: [2]int{0, 0}, Token: &tok},
		},
		"origin without inputs": {
			{Pos: [2]int{0, 0}, Kind: "OPERATOR", Role: "ORIGIN", Op: "ADD", Orient: "HORIZONTAL", Origin: [2]int{0, 0}},
		},
		"input points elsewhere": append(operatorUnit("ADD"),
			snapshot.TileV1{Pos: [2]int{5, 5}, Kind: "OPERATOR", Role: "INPUT_B", Op: "ADD", Orient: "HORIZONTAL", Origin: [2]int{0, 0}}),
		"mixed ops": func() []snapshot.TileV1 {
			unit := operatorUnit("ADD")
			unit[2].Op = "MULTIPLY"
			return unit
		}(),
	}
	for name, tiles := range cases {
		w := newTestWorld(t, 20)
		snap := snapshot.SnapshotV1{Header: snapshot.Header{Version: snapshot.Version}, Tiles: tiles}
		if err := w.ImportSnapshot(snap); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

// operatorUnit is a complete horizontal operator with its origin at (0,0).
func operatorUnit(op string) []snapshot.TileV1 {
	cell := func(x int, role string) snapshot.TileV1 {
		return snapshot.TileV1{Pos: [2]int{x, 0}, Kind: "OPERATOR", Role: role, Op: op, Orient: "HORIZONTAL", Origin: [2]int{0, 0}}
	}
	return []snapshot.TileV1{cell(-1, "INPUT_A"), cell(0, "ORIGIN"), cell(1, "INPUT_B")}
}

func TestImportSnapshot_AcceptsCompleteOperator(t *testing.T) {
	w := newTestWorld(t, 20)
	snap := snapshot.SnapshotV1{Header: snapshot.Header{Version: snapshot.Version}, Tiles: operatorUnit("SUBTRACT")}
	if err := w.ImportSnapshot(snap); err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	if _, _, ok := w.grid.OperatorInputs(grid.Pos{}); !ok {
		t.Fatalf("operator unit not restored")
	}
}

func TestRun_AdminSnapshotReachesSink(t *testing.T) {
	w := newTestWorld(t, 100)
	sink := make(chan snapshot.SnapshotV1, 1)
	w.SetSnapshotSink(sink)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	resp := make(chan protocol.CmdResultMsg, 1)
	w.Inbox() <- CommandEnvelope{SessionID: "admin", Cmd: belt("b1", 3, 3, "DOWN"), Resp: resp}
	if r := <-resp; !r.OK {
		t.Fatalf("cmd result=%+v", r)
	}

	info, err := w.RequestSnapshot(ctx)
	if err != nil {
		t.Fatalf("RequestSnapshot: %v", err)
	}
	snap := <-sink
	if snap.Header.Tick != info.Tick || len(snap.Tiles) != 1 || snap.Tiles[0].Dir != "DOWN" {
		t.Fatalf("snapshot=%+v info=%+v", snap, info)
	}
	if info.Tiles != 1 || info.Tokens != 0 || info.Delivered != 0 {
		t.Fatalf("info=%+v", info)
	}

	w.Stop()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestNew_RejectsZeroTickRate(t *testing.T) {
	if _, err := New(WorldConfig{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestTickLog_RecordsParamsOncePerRun(t *testing.T) {
	w := newTestWorld(t, 20)
	lg := &captureLogger{}
	w.SetTickLogger(lg)
	w.StepOnce(nil)
	w.StepOnce(nil)

	if lg.ticks[0].Params == nil || *lg.ticks[0].Params != w.Params() {
		t.Fatalf("first entry params=%v", lg.ticks[0].Params)
	}
	if lg.ticks[1].Params != nil {
		t.Fatalf("second entry repeats params")
	}

	snap := w.ExportSnapshot(w.CurrentTick() - 1)
	resumed := newTestWorld(t, 50)
	if err := resumed.ImportSnapshot(snap); err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	resumed.SetTickLogger(lg)
	resumed.StepOnce(nil)
	got := lg.ticks[2].Params
	if got == nil || got.TickRateHz != 20 {
		t.Fatalf("resumed entry params=%v", got)
	}

	p := resumed.Params()
	p.BeltTilesPerSec = 8
	if err := resumed.ApplyParams(p); err != nil {
		t.Fatalf("ApplyParams: %v", err)
	}
	resumed.StepOnce(nil)
	if got := lg.ticks[3].Params; got == nil || got.BeltTilesPerSec != 8 {
		t.Fatalf("reconfigured entry params=%v", got)
	}
	if err := resumed.ApplyParams(protocol.WorldParams{}); err == nil {
		t.Fatalf("expected error for zero tick rate")
	}
}

func TestRequestSnapshot_SinkErrors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	noSink := newTestWorld(t, 100)
	blocked := newTestWorld(t, 100)
	blocked.SetSnapshotSink(make(chan snapshot.SnapshotV1))
	for _, w := range []*World{noSink, blocked} {
		go func(w *World) { _ = w.Run(ctx) }(w)
	}
	defer noSink.Stop()
	defer blocked.Stop()

	if _, err := noSink.RequestSnapshot(ctx); !errors.Is(err, ErrNoSnapshotSink) {
		t.Fatalf("err=%v, want ErrNoSnapshotSink", err)
	}
	info, err := blocked.RequestSnapshot(ctx)
	if !errors.Is(err, ErrSnapshotSinkFull) {
		t.Fatalf("err=%v, want ErrSnapshotSinkFull", err)
	}
	if info.Tiles != 0 {
		t.Fatalf("info=%+v", info)
	}
}
