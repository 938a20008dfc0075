package engine

import "beltline.ai/internal/sim/grid"

// extractOrder is the neighbor priority: below, above, right, left.
var extractOrder = [4]grid.Direction{grid.Down, grid.Up, grid.Right, grid.Left}

// ExtractionPhase spawns tokens from extractor tiles every fixed interval.
type ExtractionPhase struct {
	grid  *grid.Grid
	timer Accumulator

	emitted uint64
	stalled uint64
}

func NewExtractionPhase(g *grid.Grid, interval float64, maxCatchUp int) *ExtractionPhase {
	return &ExtractionPhase{grid: g, timer: NewAccumulator(interval, maxCatchUp)}
}

// Tick advances the phase timer by dt and runs the phase for each elapsed
// interval.
func (x *ExtractionPhase) Tick(dt float64) {
	for n := x.timer.Advance(dt); n > 0; n-- {
		x.Run()
	}
}

// Run performs one extraction cycle. Each extractor deposits at most one
// token, onto the first eligible neighbor belt.
func (x *ExtractionPhase) Run() {
	g := x.grid
	extractors := g.Positions(grid.KindExtractor)
	if len(extractors) == 0 {
		return
	}
	reserved := reservedDestinations(g)
	for _, p := range extractors {
		ext := g.Tile(p)
		placed := false
		for _, d := range extractOrder {
			to := p.Add(d.Offset())
			t := g.Tile(to)
			if t.Kind != grid.KindBelt || t.HasToken || t.Progress != 0 || reserved[to] {
				continue
			}
			g.Set(to, t.WithToken(ext.Emit))
			x.emitted++
			placed = true
			break
		}
		if !placed {
			x.stalled++
		}
	}
}
