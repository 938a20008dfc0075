package worldtest

import (
	"path/filepath"
	"testing"

	"beltline.ai/internal/persistence/snapshot"
	"beltline.ai/internal/protocol"
	world "beltline.ai/internal/sim/world"
)

// Harness drives a world through its exported command surface:
// - Do() applies edit commands in one tick via StepOnce()
// - StepN() advances without commands
// - tick and audit entries are captured through the logger hooks
//
// It avoids world internals so scenarios read like a client session.
type Harness struct {
	T *testing.T
	W *world.World

	Ticks  []world.TickLogEntry
	Audits []world.AuditEntry
}

func NewHarness(t *testing.T, cfg world.WorldConfig) *Harness {
	t.Helper()
	w, err := world.New(cfg)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return NewHarnessWithWorld(t, w)
}

// NewHarnessWithWorld attaches to an already-constructed world, such as one
// resumed from a snapshot.
func NewHarnessWithWorld(t *testing.T, w *world.World) *Harness {
	t.Helper()
	if w == nil {
		t.Fatalf("NewHarnessWithWorld: nil world")
	}
	h := &Harness{T: t, W: w}
	w.SetTickLogger(tickSink{h})
	w.SetAuditLogger(auditSink{h})
	return h
}

type tickSink struct{ h *Harness }

func (s tickSink) WriteTick(e world.TickLogEntry) error {
	s.h.Ticks = append(s.h.Ticks, e)
	return nil
}

type auditSink struct{ h *Harness }

func (s auditSink) WriteAudit(e world.AuditEntry) error {
	s.h.Audits = append(s.h.Audits, e)
	return nil
}

// Do applies cmds in order within one tick and returns their results.
func (h *Harness) Do(cmds ...protocol.CmdMsg) []protocol.CmdResultMsg {
	h.T.Helper()
	envs := make([]world.CommandEnvelope, 0, len(cmds))
	resps := make([]chan protocol.CmdResultMsg, 0, len(cmds))
	for _, c := range cmds {
		c.Type = protocol.TypeCmd
		c.ProtocolVersion = protocol.Version
		ch := make(chan protocol.CmdResultMsg, 1)
		envs = append(envs, world.CommandEnvelope{SessionID: "S_harness", Cmd: c, Resp: ch})
		resps = append(resps, ch)
	}
	h.W.StepOnce(envs)
	out := make([]protocol.CmdResultMsg, 0, len(resps))
	for _, ch := range resps {
		select {
		case r := <-ch:
			out = append(out, r)
		default:
			h.T.Fatalf("no result for command")
		}
	}
	return out
}

// MustDo is Do that fails the test on any rejected command.
func (h *Harness) MustDo(cmds ...protocol.CmdMsg) {
	h.T.Helper()
	for i, r := range h.Do(cmds...) {
		if !r.OK {
			h.T.Fatalf("cmd %d (%s at %v) rejected: %s %s", i, cmds[i].Op, cmds[i].Pos, r.Code, r.Message)
		}
	}
}

// StepN advances n ticks and returns the deliveries made during them.
func (h *Harness) StepN(n int) []world.DeliveryRecord {
	h.T.Helper()
	var out []world.DeliveryRecord
	for i := 0; i < n; i++ {
		before := len(h.Ticks)
		h.W.StepOnce(nil)
		for _, e := range h.Ticks[before:] {
			out = append(out, e.Deliveries...)
		}
	}
	return out
}

// Deliveries returns every delivery logged so far.
func (h *Harness) Deliveries() []world.DeliveryRecord {
	var out []world.DeliveryRecord
	for _, e := range h.Ticks {
		out = append(out, e.Deliveries...)
	}
	return out
}

func (h *Harness) LastDigest() string {
	if len(h.Ticks) == 0 {
		return ""
	}
	return h.Ticks[len(h.Ticks)-1].Digest
}

// Resume writes a snapshot of the last stepped tick to dir, reads it back and
// returns a harness over a fresh world imported from it.
func (h *Harness) Resume(dir string, cfg world.WorldConfig) *Harness {
	h.T.Helper()
	tick := h.W.CurrentTick() - 1
	path := filepath.Join(dir, "snapshots", "resume.snap.zst")
	if err := snapshot.WriteSnapshot(path, h.W.ExportSnapshot(tick)); err != nil {
		h.T.Fatalf("WriteSnapshot: %v", err)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		h.T.Fatalf("ReadSnapshot: %v", err)
	}
	w, err := world.New(cfg)
	if err != nil {
		h.T.Fatalf("world.New: %v", err)
	}
	if err := w.ImportSnapshot(snap); err != nil {
		h.T.Fatalf("ImportSnapshot: %v", err)
	}
	return NewHarnessWithWorld(h.T, w)
}

func Belt(x, y int, dir string) protocol.CmdMsg {
	return protocol.CmdMsg{Op: protocol.OpPlaceBelt, Pos: [2]int{x, y}, Dir: dir}
}

func Extractor(x, y int, emit int64) protocol.CmdMsg {
	return protocol.CmdMsg{Op: protocol.OpPlaceExtractor, Pos: [2]int{x, y}, Emit: &emit}
}

func Operator(x, y int, kind, orient string) protocol.CmdMsg {
	return protocol.CmdMsg{Op: protocol.OpPlaceOperator, Pos: [2]int{x, y}, Kind: kind, Orient: orient}
}

func Consumer(x, y int) protocol.CmdMsg {
	return protocol.CmdMsg{Op: protocol.OpPlaceConsumer, Pos: [2]int{x, y}}
}

func Remove(x, y int) protocol.CmdMsg {
	return protocol.CmdMsg{Op: protocol.OpRemove, Pos: [2]int{x, y}}
}
