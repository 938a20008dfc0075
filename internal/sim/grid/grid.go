package grid

import "sort"

// Grid is the sparse authoritative tile map. Absent coordinates are Empty.
// It is not safe for concurrent use; the owning runtime serializes access.
type Grid struct {
	tiles map[Pos]Tile
}

func New() *Grid {
	return &Grid{tiles: make(map[Pos]Tile, 256)}
}

func (g *Grid) Len() int { return len(g.tiles) }

// Tile returns the tile at p, or an Empty tile.
func (g *Grid) Tile(p Pos) Tile {
	return g.tiles[p]
}

// At is Tile(Pos{x, y}).
func (g *Grid) At(x, y int) Tile { return g.tiles[Pos{X: x, Y: y}] }

// Set writes t at p without any placement checks. Writing an Empty tile
// deletes the cell. Phases use it to update token state in place.
func (g *Grid) Set(p Pos, t Tile) {
	if t.Kind == KindEmpty {
		delete(g.tiles, p)
		return
	}
	g.tiles[p] = t
}

func (g *Grid) place(p Pos, t Tile) bool {
	if _, ok := g.tiles[p]; ok {
		return false
	}
	g.tiles[p] = t
	return true
}

func (g *Grid) PlaceBelt(p Pos, dir Direction) bool { return g.place(p, Belt(dir)) }

func (g *Grid) PlaceExtractor(p Pos, emit int64) bool { return g.place(p, Extractor(emit)) }

func (g *Grid) PlaceConsumer(p Pos) bool { return g.place(p, Consumer()) }

// PlaceOperator writes a 3-cell operator with its origin at p. Nothing is
// written unless all three cells are empty.
func (g *Grid) PlaceOperator(p Pos, op OpKind, orient Orientation) bool {
	a, b := OperatorCells(p, orient)
	for _, c := range [3]Pos{a, p, b} {
		if _, ok := g.tiles[c]; ok {
			return false
		}
	}
	base := Tile{Kind: KindOperator, Op: op, Orient: orient, Origin: p}
	origin, inA, inB := base, base, base
	origin.Role = RoleOrigin
	inA.Role = RoleInputA
	inB.Role = RoleInputB
	g.tiles[p] = origin
	g.tiles[a] = inA
	g.tiles[b] = inB
	return true
}

// Remove clears the tile at p. Any cell of an operator clears the whole
// unit. It reports false when p was already empty.
func (g *Grid) Remove(p Pos) bool {
	t, ok := g.tiles[p]
	if !ok {
		return false
	}
	if t.Kind != KindOperator {
		delete(g.tiles, p)
		return true
	}
	origin, ok := g.tiles[t.Origin]
	if !ok || origin.Kind != KindOperator || origin.Role != RoleOrigin || origin.Origin != t.Origin {
		// Orphaned input; only this cell is known to belong to the unit.
		delete(g.tiles, p)
		return true
	}
	a, b := OperatorCells(t.Origin, origin.Orient)
	for _, c := range [2]Pos{a, b} {
		if ct, ok := g.tiles[c]; ok && ct.Kind == KindOperator && ct.Origin == t.Origin {
			delete(g.tiles, c)
		}
	}
	delete(g.tiles, t.Origin)
	return true
}

// OperatorInputs resolves the input cells of the operator whose origin is at
// p. ok is false when p is not an origin or either input is missing or
// points at a different origin.
func (g *Grid) OperatorInputs(p Pos) (a, b Pos, ok bool) {
	origin, exists := g.tiles[p]
	if !exists || origin.Kind != KindOperator || origin.Role != RoleOrigin {
		return Pos{}, Pos{}, false
	}
	a, b = OperatorCells(p, origin.Orient)
	ta, okA := g.tiles[a]
	tb, okB := g.tiles[b]
	if !okA || !okB {
		return a, b, false
	}
	if ta.Kind != KindOperator || ta.Role != RoleInputA || ta.Origin != p {
		return a, b, false
	}
	if tb.Kind != KindOperator || tb.Role != RoleInputB || tb.Origin != p {
		return a, b, false
	}
	return a, b, true
}

// Positions returns every non-empty position of the given kind, sorted.
// KindEmpty selects all occupied cells.
func (g *Grid) Positions(kind Kind) []Pos {
	out := make([]Pos, 0, len(g.tiles))
	for p, t := range g.tiles {
		if kind != KindEmpty && t.Kind != kind {
			continue
		}
		out = append(out, p)
	}
	sortPositions(out)
	return out
}

// Each visits occupied cells in sorted order.
func (g *Grid) Each(fn func(p Pos, t Tile)) {
	for _, p := range g.Positions(KindEmpty) {
		fn(p, g.tiles[p])
	}
}

// TokenTotal sums every token value on the grid.
func (g *Grid) TokenTotal() (count int, sum int64) {
	for _, t := range g.tiles {
		if t.HasToken {
			count++
			sum += t.Token
		}
	}
	return count, sum
}

func (g *Grid) Clone() *Grid {
	out := &Grid{tiles: make(map[Pos]Tile, len(g.tiles))}
	for p, t := range g.tiles {
		out.tiles[p] = t
	}
	return out
}

func sortPositions(ps []Pos) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Less(ps[j]) })
}
