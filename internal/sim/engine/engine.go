// Package engine is the discrete-time simulation core. It owns no state of
// its own beyond phase timers and counters; the grid is injected.
package engine

import (
	"math"

	"beltline.ai/internal/sim/grid"
)

type Config struct {
	// ExtractInterval is T_extract in seconds of simulated time.
	ExtractInterval float64
	// OperatorInterval is T_op in seconds.
	OperatorInterval float64
	// BeltSpeed is in tiles per second.
	BeltSpeed  float64
	MaxCatchUp int
}

func DefaultConfig() Config {
	return Config{
		ExtractInterval:  1.0,
		OperatorInterval: 0.5,
		BeltSpeed:        2.0,
		MaxCatchUp:       DefaultMaxCatchUp,
	}
}

// Stats are monotonically increasing counters since the engine was created.
type Stats struct {
	Updates uint64 `json:"updates"`

	Emitted          uint64 `json:"emitted"`
	ExtractorStalls  uint64 `json:"extractor_stalls"`
	Commits          uint64 `json:"commits"`
	Pickups          uint64 `json:"pickups"`
	Delivered        uint64 `json:"delivered"`
	CancelledMoves   uint64 `json:"cancelled_moves"`
	Combined         uint64 `json:"combined"`
	DivideStalls     uint64 `json:"divide_stalls"`
	OutputStalls     uint64 `json:"output_stalls"`
	InvalidOperators uint64 `json:"invalid_operators"`

	DroppedExtractCycles  uint64 `json:"dropped_extract_cycles"`
	DroppedOperatorCycles uint64 `json:"dropped_operator_cycles"`
}

// Timers is the carry-over time of the fixed-interval phases.
type Timers struct {
	ExtractPending  float64
	OperatorPending float64
}

type Engine struct {
	grid *grid.Grid

	extraction  *ExtractionPhase
	combination *CombinationPhase
	transport   *TransportPhase

	updates uint64
}

func New(g *grid.Grid, cfg Config, l DeliveryListener) *Engine {
	def := DefaultConfig()
	if cfg.ExtractInterval <= 0 {
		cfg.ExtractInterval = def.ExtractInterval
	}
	if cfg.OperatorInterval <= 0 {
		cfg.OperatorInterval = def.OperatorInterval
	}
	if cfg.BeltSpeed <= 0 {
		cfg.BeltSpeed = def.BeltSpeed
	}
	if cfg.MaxCatchUp <= 0 {
		cfg.MaxCatchUp = def.MaxCatchUp
	}
	return &Engine{
		grid:        g,
		extraction:  NewExtractionPhase(g, cfg.ExtractInterval, cfg.MaxCatchUp),
		combination: NewCombinationPhase(g, cfg.OperatorInterval, cfg.MaxCatchUp),
		transport:   NewTransportPhase(g, cfg.BeltSpeed, l),
	}
}

// Update advances the simulation by dt seconds. Non-finite or negative dt
// counts as zero.
func (e *Engine) Update(dt float64) {
	if dt < 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		dt = 0
	}
	e.updates++
	e.extraction.Tick(dt)
	e.combination.Tick(dt)
	e.transport.Run(dt)
}

func (e *Engine) Grid() *grid.Grid { return e.grid }

func (e *Engine) Tile(x, y int) grid.Tile { return e.grid.At(x, y) }

func (e *Engine) PlaceBelt(p grid.Pos, dir grid.Direction) bool { return e.grid.PlaceBelt(p, dir) }

func (e *Engine) PlaceExtractor(p grid.Pos, emit int64) bool { return e.grid.PlaceExtractor(p, emit) }

func (e *Engine) PlaceConsumer(p grid.Pos) bool { return e.grid.PlaceConsumer(p) }

func (e *Engine) PlaceOperator(p grid.Pos, op grid.OpKind, orient grid.Orientation) bool {
	return e.grid.PlaceOperator(p, op, orient)
}

func (e *Engine) Remove(p grid.Pos) bool { return e.grid.Remove(p) }

func (e *Engine) Stats() Stats {
	return Stats{
		Updates:               e.updates,
		Emitted:               e.extraction.emitted,
		ExtractorStalls:       e.extraction.stalled,
		Commits:               e.transport.commits,
		Pickups:               e.transport.pickups,
		Delivered:             e.transport.delivered,
		CancelledMoves:        e.transport.cancelled,
		Combined:              e.combination.combined,
		DivideStalls:          e.combination.divideStalls,
		OutputStalls:          e.combination.outputStalls,
		InvalidOperators:      e.combination.invalid,
		DroppedExtractCycles:  e.extraction.timer.Dropped(),
		DroppedOperatorCycles: e.combination.timer.Dropped(),
	}
}

func (e *Engine) Timers() Timers {
	return Timers{
		ExtractPending:  e.extraction.timer.Pending(),
		OperatorPending: e.combination.timer.Pending(),
	}
}

func (e *Engine) RestoreTimers(t Timers) {
	e.extraction.timer.Restore(t.ExtractPending)
	e.combination.timer.Restore(t.OperatorPending)
}
