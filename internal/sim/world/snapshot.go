package world

import (
	"fmt"
	"math"

	"beltline.ai/internal/persistence/snapshot"
	"beltline.ai/internal/sim/engine"
	"beltline.ai/internal/sim/grid"
)

func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	params := w.worldParams()
	timers := w.engine.Timers()

	tiles := make([]snapshot.TileV1, 0, w.grid.Len())
	w.grid.Each(func(p grid.Pos, t grid.Tile) {
		tiles = append(tiles, tileToV1(p, t))
	})

	return snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
		},
		TickRateHz:          w.cfg.TickRateHz,
		ExtractIntervalSec:  params.ExtractIntervalSec,
		OperatorIntervalSec: params.OperatorIntervalSec,
		BeltTilesPerSec:     params.BeltTilesPerSec,
		MaxCatchUp:          params.MaxCatchUp,
		Timers: snapshot.TimersV1{
			ExtractPending:  timers.ExtractPending,
			OperatorPending: timers.OperatorPending,
		},
		Tiles: tiles,
		Counters: snapshot.CountersV1{
			Delivered:      w.deliveredTotal,
			DeliveredValue: w.deliveredValue,
			Commands:       w.commandsTotal,
		},
	}
}

// ImportSnapshot replaces the world state. It must be called before Run
// starts; the world loop is not running concurrently.
func (w *World) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	g := grid.New()
	for i, tv := range snap.Tiles {
		p, t, err := tileFromV1(tv)
		if err != nil {
			return fmt.Errorf("tile %d: %w", i, err)
		}
		if !g.Tile(p).IsEmpty() {
			return fmt.Errorf("tile %d: duplicate position %s", i, p)
		}
		g.Set(p, t)
	}
	if err := checkOperatorUnits(g); err != nil {
		return err
	}

	if snap.TickRateHz > 0 {
		w.cfg.TickRateHz = snap.TickRateHz
		w.dt = 1.0 / float64(snap.TickRateHz)
	}
	if snap.ExtractIntervalSec > 0 {
		w.cfg.Engine.ExtractInterval = snap.ExtractIntervalSec
	}
	if snap.OperatorIntervalSec > 0 {
		w.cfg.Engine.OperatorInterval = snap.OperatorIntervalSec
	}
	if snap.BeltTilesPerSec > 0 {
		w.cfg.Engine.BeltSpeed = snap.BeltTilesPerSec
	}
	if snap.MaxCatchUp > 0 {
		w.cfg.Engine.MaxCatchUp = snap.MaxCatchUp
	}
	if snap.Header.WorldID != "" {
		w.cfg.ID = snap.Header.WorldID
	}

	w.grid = g
	w.engine = w.newEngine(g)
	w.engine.RestoreTimers(engine.Timers{
		ExtractPending:  snap.Timers.ExtractPending,
		OperatorPending: snap.Timers.OperatorPending,
	})
	w.deliveredTotal = snap.Counters.Delivered
	w.deliveredValue = snap.Counters.DeliveredValue
	w.commandsTotal = snap.Counters.Commands
	w.tick.Store(snap.Header.Tick + 1)
	w.paramsLogged = false
	return nil
}

// checkOperatorUnits rejects operator cells that are not part of a complete
// three-cell unit. Placement never produces them, so a snapshot holding one
// is corrupt.
func checkOperatorUnits(g *grid.Grid) error {
	var err error
	g.Each(func(p grid.Pos, t grid.Tile) {
		if err != nil || t.Kind != grid.KindOperator {
			return
		}
		a, b, ok := g.OperatorInputs(t.Origin)
		if !ok || (p != t.Origin && p != a && p != b) {
			err = fmt.Errorf("operator %s cell at %s has no complete unit at %s", t.Role, p, t.Origin)
			return
		}
		origin := g.Tile(t.Origin)
		if t.Op != origin.Op || t.Orient != origin.Orient {
			err = fmt.Errorf("operator cell at %s disagrees with origin %s", p, t.Origin)
		}
	})
	return err
}

func tileToV1(p grid.Pos, t grid.Tile) snapshot.TileV1 {
	out := snapshot.TileV1{Pos: p.ToArray(), Kind: t.Kind.String()}
	switch t.Kind {
	case grid.KindBelt:
		out.Dir = t.Dir.String()
		out.Progress = t.Progress
		if t.HasDest {
			d := t.Dest.ToArray()
			out.Dest = &d
		}
	case grid.KindExtractor:
		out.Emit = t.Emit
	case grid.KindOperator:
		out.Role = t.Role.String()
		out.Op = t.Op.String()
		out.Orient = t.Orient.String()
		out.Origin = t.Origin.ToArray()
	}
	if t.HasToken {
		v := t.Token
		out.Token = &v
	}
	return out
}

func tileFromV1(v snapshot.TileV1) (grid.Pos, grid.Tile, error) {
	p := grid.PosFromArray(v.Pos)
	kind, ok := grid.ParseKind(v.Kind)
	if !ok || kind == grid.KindEmpty {
		return p, grid.Tile{}, fmt.Errorf("bad kind %q", v.Kind)
	}
	t := grid.Tile{Kind: kind}
	switch kind {
	case grid.KindBelt:
		dir, ok := grid.ParseDirection(v.Dir)
		if !ok {
			return p, t, fmt.Errorf("bad dir %q", v.Dir)
		}
		t.Dir = dir
	case grid.KindExtractor:
		t.Emit = v.Emit
	case grid.KindOperator:
		role, ok1 := grid.ParseRole(v.Role)
		op, ok2 := grid.ParseOpKind(v.Op)
		orient, ok3 := grid.ParseOrientation(v.Orient)
		if !ok1 || !ok2 || !ok3 {
			return p, t, fmt.Errorf("bad operator fields %q/%q/%q", v.Role, v.Op, v.Orient)
		}
		t.Role, t.Op, t.Orient = role, op, orient
		t.Origin = grid.PosFromArray(v.Origin)
	}

	if v.Token != nil {
		if kind != grid.KindBelt && kind != grid.KindOperator {
			return p, t, fmt.Errorf("%s cannot hold a token", kind)
		}
		t.HasToken = true
		t.Token = *v.Token
	}

	// A belt transfer is either in flight (dest, 0 < progress < 1) or not
	// started at all. Anything else restarts from progress 0.
	if kind == grid.KindBelt && t.HasToken && v.Dest != nil &&
		v.Progress > 0 && v.Progress < 1 && !math.IsNaN(v.Progress) {
		t.HasDest = true
		t.Dest = grid.PosFromArray(*v.Dest)
		t.Progress = v.Progress
	}
	return p, t, nil
}
