package world

import (
	"fmt"

	"beltline.ai/internal/protocol"
	"beltline.ai/internal/sim/grid"
)

type cmdResult struct {
	Tick    uint64
	OK      bool
	Code    string
	Message string
}

func rejected(tick uint64, code, format string, args ...any) cmdResult {
	return cmdResult{Tick: tick, Code: code, Message: fmt.Sprintf(format, args...)}
}

// applyCmd performs one grid edit. Placement never overwrites; a rejected
// command leaves the grid untouched.
func (w *World) applyCmd(actor string, cmd protocol.CmdMsg, nowTick uint64) cmdResult {
	p := grid.PosFromArray(cmd.Pos)
	entry := AuditEntry{Tick: nowTick, Actor: actor, Action: cmd.Op, Pos: cmd.Pos}

	switch cmd.Op {
	case protocol.OpPlaceBelt:
		dir, ok := grid.ParseDirection(cmd.Dir)
		if !ok {
			return rejected(nowTick, protocol.ErrBadRequest, "bad dir %q", cmd.Dir)
		}
		if !w.engine.PlaceBelt(p, dir) {
			return rejected(nowTick, protocol.ErrOccupied, "cell %s occupied", p)
		}
		entry.Kind = grid.KindBelt.String()

	case protocol.OpPlaceExtractor:
		if cmd.Emit == nil {
			return rejected(nowTick, protocol.ErrBadRequest, "missing emit")
		}
		if !w.engine.PlaceExtractor(p, *cmd.Emit) {
			return rejected(nowTick, protocol.ErrOccupied, "cell %s occupied", p)
		}
		entry.Kind = grid.KindExtractor.String()
		entry.Value = int64Ptr(*cmd.Emit)

	case protocol.OpPlaceOperator:
		op, ok := grid.ParseOpKind(cmd.Kind)
		if !ok {
			return rejected(nowTick, protocol.ErrBadRequest, "bad operator kind %q", cmd.Kind)
		}
		orient, ok := grid.ParseOrientation(cmd.Orient)
		if !ok {
			return rejected(nowTick, protocol.ErrBadRequest, "bad orient %q", cmd.Orient)
		}
		if !w.engine.PlaceOperator(p, op, orient) {
			return rejected(nowTick, protocol.ErrOccupied, "operator footprint at %s occupied", p)
		}
		entry.Kind = grid.KindOperator.String()
		entry.Reason = op.String() + "/" + orient.String()

	case protocol.OpPlaceConsumer:
		if !w.engine.PlaceConsumer(p) {
			return rejected(nowTick, protocol.ErrOccupied, "cell %s occupied", p)
		}
		entry.Kind = grid.KindConsumer.String()

	case protocol.OpRemove:
		prev := w.grid.Tile(p)
		if !w.engine.Remove(p) {
			return rejected(nowTick, protocol.ErrEmpty, "cell %s empty", p)
		}
		entry.Kind = prev.Kind.String()
		if prev.HasToken {
			entry.Value = int64Ptr(prev.Token)
			entry.Reason = "token destroyed"
		}

	default:
		return rejected(nowTick, protocol.ErrBadRequest, "unknown op %q", cmd.Op)
	}

	w.audit(entry)
	return cmdResult{Tick: nowTick, OK: true}
}
