package engine

import "beltline.ai/internal/sim/grid"

// startProgress marks a token as leaving its cell. Any positive value works;
// it only has to be distinguishable from a settled token.
const startProgress = 1e-3

// Delivery is a token that reached a consumer tile.
type Delivery struct {
	Pos   grid.Pos
	Value int64
}

// DeliveryListener is notified synchronously, on the update's call stack,
// for every delivered token. Implementations must not block.
type DeliveryListener interface {
	OnDelivery(d Delivery)
}

// ListenerFunc adapts a plain function to DeliveryListener.
type ListenerFunc func(d Delivery)

func (f ListenerFunc) OnDelivery(d Delivery) { f(d) }

// TransportPhase moves tokens along belts. It runs once per update with the
// full frame time.
type TransportPhase struct {
	grid     *grid.Grid
	speed    float64
	listener DeliveryListener

	commits   uint64
	pickups   uint64
	delivered uint64
	cancelled uint64
}

func NewTransportPhase(g *grid.Grid, speed float64, l DeliveryListener) *TransportPhase {
	return &TransportPhase{grid: g, speed: speed, listener: l}
}

// Run executes both passes. Pass 1 advances in-flight tokens and commits the
// ones that finished; pass 2 starts new moves and lets empty belts pull from
// upstream. A token changes cell at most once per Run.
func (t *TransportPhase) Run(dt float64) {
	g := t.grid
	// Cells that received a token during this Run.
	arrived := make(map[grid.Pos]bool)

	if dt > 0 {
		for _, p := range g.Positions(grid.KindBelt) {
			src := g.Tile(p)
			if !src.Moving() {
				continue
			}
			src.Progress += dt * t.speed
			if src.Progress < 1 {
				g.Set(p, src)
				continue
			}
			t.commit(p, src, arrived)
		}
	}

	reserved := reservedDestinations(g)
	belts := g.Positions(grid.KindBelt)

	for _, p := range belts {
		src := g.Tile(p)
		if !src.Settled() {
			continue
		}
		to := p.Add(src.Dir.Offset())
		if !canReceive(g.Tile(to), to, reserved) {
			continue
		}
		src.Progress = startProgress
		src.HasDest = true
		src.Dest = to
		g.Set(p, src)
		reserved[to] = true
	}

	for _, p := range belts {
		dst := g.Tile(p)
		if dst.Kind != grid.KindBelt || dst.HasToken || reserved[p] {
			continue
		}
		from := p.Add(dst.Dir.Opposite().Offset())
		if arrived[from] {
			continue
		}
		up := g.Tile(from)
		switch {
		case up.Kind == grid.KindBelt && up.Settled():
		case up.Kind == grid.KindOperator && up.Role == grid.RoleOrigin && up.HasToken:
		default:
			continue
		}
		g.Set(p, dst.WithToken(up.Token))
		g.Set(from, up.ClearToken())
		arrived[p] = true
		t.pickups++
	}
}

// commit finishes the move of the token at p. Source and destination are
// rewritten together so no state shows the token in both cells.
func (t *TransportPhase) commit(p grid.Pos, src grid.Tile, arrived map[grid.Pos]bool) {
	g := t.grid
	to := src.Dest
	dst := g.Tile(to)
	switch {
	case dst.Kind == grid.KindConsumer:
		g.Set(p, src.ClearToken())
		t.delivered++
		if t.listener != nil {
			t.listener.OnDelivery(Delivery{Pos: to, Value: src.Token})
		}
	case dst.Kind == grid.KindBelt && !dst.HasToken,
		dst.Kind == grid.KindOperator && dst.Role != grid.RoleOrigin && !dst.HasToken:
		g.Set(to, dst.WithToken(src.Token))
		g.Set(p, src.ClearToken())
		arrived[to] = true
		t.commits++
	default:
		// Destination was removed or replaced mid-flight; the token stays put.
		g.Set(p, src.WithToken(src.Token))
		t.cancelled++
	}
}

// canReceive reports whether a settled token may start moving into to.
func canReceive(dst grid.Tile, to grid.Pos, reserved map[grid.Pos]bool) bool {
	switch dst.Kind {
	case grid.KindConsumer:
		return true
	case grid.KindBelt:
		return !dst.HasToken && dst.Progress == 0 && !reserved[to]
	case grid.KindOperator:
		return dst.Role != grid.RoleOrigin && !dst.HasToken && !reserved[to]
	}
	return false
}

// reservedDestinations collects the cells some in-flight token is heading
// into. Those cells accept nothing else until the move commits or cancels.
func reservedDestinations(g *grid.Grid) map[grid.Pos]bool {
	out := make(map[grid.Pos]bool)
	for _, p := range g.Positions(grid.KindBelt) {
		t := g.Tile(p)
		if t.HasToken && t.HasDest {
			out[t.Dest] = true
		}
	}
	return out
}
