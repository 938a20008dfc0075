package engine

import "beltline.ai/internal/sim/grid"

// OperatorState is the lifecycle stage of one operator unit.
type OperatorState uint8

const (
	StateInvalid OperatorState = iota
	StateWaitingInputs
	StateHasBothInputs
	StateComputedPendingOutput
)

func (s OperatorState) String() string {
	switch s {
	case StateWaitingInputs:
		return "WAITING_INPUTS"
	case StateHasBothInputs:
		return "HAS_BOTH_INPUTS"
	case StateComputedPendingOutput:
		return "COMPUTED_PENDING_OUTPUT"
	}
	return "INVALID"
}

// StateOf reports the state of the operator whose origin is at p.
func StateOf(g *grid.Grid, p grid.Pos) OperatorState {
	a, b, ok := g.OperatorInputs(p)
	if !ok {
		return StateInvalid
	}
	if g.Tile(p).HasToken {
		return StateComputedPendingOutput
	}
	if g.Tile(a).Settled() && g.Tile(b).Settled() {
		return StateHasBothInputs
	}
	return StateWaitingInputs
}

// CombinationPhase evaluates operator units every fixed interval.
type CombinationPhase struct {
	grid  *grid.Grid
	timer Accumulator

	combined     uint64
	divideStalls uint64
	outputStalls uint64
	invalid      uint64
}

func NewCombinationPhase(g *grid.Grid, interval float64, maxCatchUp int) *CombinationPhase {
	return &CombinationPhase{grid: g, timer: NewAccumulator(interval, maxCatchUp)}
}

func (c *CombinationPhase) Tick(dt float64) {
	for n := c.timer.Advance(dt); n > 0; n-- {
		c.Run()
	}
}

// Run evaluates every origin once. Both inputs must be settled; a divide by
// zero or an uncollected output leaves the unit untouched until a later run.
func (c *CombinationPhase) Run() {
	g := c.grid
	for _, p := range g.Positions(grid.KindOperator) {
		origin := g.Tile(p)
		if origin.Role != grid.RoleOrigin {
			continue
		}
		a, b, ok := g.OperatorInputs(p)
		if !ok {
			c.invalid++
			continue
		}
		ta, tb := g.Tile(a), g.Tile(b)
		if !ta.Settled() || !tb.Settled() {
			continue
		}
		if origin.HasToken {
			c.outputStalls++
			continue
		}
		result, ok := origin.Op.Apply(ta.Token, tb.Token)
		if !ok {
			c.divideStalls++
			continue
		}
		g.Set(a, ta.ClearToken())
		g.Set(b, tb.ClearToken())
		g.Set(p, origin.WithToken(result))
		c.combined++
	}
}
