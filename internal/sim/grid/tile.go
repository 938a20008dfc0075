package grid

import "fmt"

// Pos is an integer grid coordinate. +Y points "below" (screen space).
type Pos struct {
	X int
	Y int
}

func (p Pos) Add(o Pos) Pos { return Pos{X: p.X + o.X, Y: p.Y + o.Y} }

func (p Pos) ToArray() [2]int { return [2]int{p.X, p.Y} }

func PosFromArray(a [2]int) Pos { return Pos{X: a[0], Y: a[1]} }

func (p Pos) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

// Less orders positions by X, then Y. All phase scans use this order.
func (p Pos) Less(o Pos) bool {
	if p.X != o.X {
		return p.X < o.X
	}
	return p.Y < o.Y
}

type Kind uint8

const (
	KindEmpty Kind = iota
	KindBelt
	KindExtractor
	KindOperator
	KindConsumer
)

var kindNames = [...]string{
	KindEmpty:     "EMPTY",
	KindBelt:      "BELT",
	KindExtractor: "EXTRACTOR",
	KindOperator:  "OPERATOR",
	KindConsumer:  "CONSUMER",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "UNKNOWN"
}

func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), true
		}
	}
	return KindEmpty, false
}

type Direction uint8

const (
	Up Direction = iota
	Down
	Left
	Right
)

var dirNames = [...]string{Up: "UP", Down: "DOWN", Left: "LEFT", Right: "RIGHT"}

func (d Direction) String() string {
	if int(d) < len(dirNames) {
		return dirNames[d]
	}
	return "UNKNOWN"
}

func ParseDirection(s string) (Direction, bool) {
	for d, name := range dirNames {
		if name == s {
			return Direction(d), true
		}
	}
	return Up, false
}

// Offset is the unit step a belt pointing in d pushes its token along.
func (d Direction) Offset() Pos {
	switch d {
	case Up:
		return Pos{X: 0, Y: -1}
	case Down:
		return Pos{X: 0, Y: 1}
	case Left:
		return Pos{X: -1, Y: 0}
	case Right:
		return Pos{X: 1, Y: 0}
	}
	return Pos{}
}

func (d Direction) Opposite() Direction {
	switch d {
	case Up:
		return Down
	case Down:
		return Up
	case Left:
		return Right
	default:
		return Left
	}
}

type Role uint8

const (
	RoleOrigin Role = iota
	RoleInputA
	RoleInputB
)

var roleNames = [...]string{RoleOrigin: "ORIGIN", RoleInputA: "INPUT_A", RoleInputB: "INPUT_B"}

func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return "UNKNOWN"
}

func ParseRole(s string) (Role, bool) {
	for r, name := range roleNames {
		if name == s {
			return Role(r), true
		}
	}
	return RoleOrigin, false
}

type OpKind uint8

const (
	OpAdd OpKind = iota
	OpSubtract
	OpMultiply
	OpDivide
)

var opNames = [...]string{OpAdd: "ADD", OpSubtract: "SUBTRACT", OpMultiply: "MULTIPLY", OpDivide: "DIVIDE"}

func (o OpKind) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "UNKNOWN"
}

func ParseOpKind(s string) (OpKind, bool) {
	for o, name := range opNames {
		if name == s {
			return OpKind(o), true
		}
	}
	return OpAdd, false
}

// Apply computes a <op> b. Division truncates toward zero and reports
// ok=false on a zero divisor.
func (o OpKind) Apply(a, b int64) (result int64, ok bool) {
	switch o {
	case OpAdd:
		return a + b, true
	case OpSubtract:
		return a - b, true
	case OpMultiply:
		return a * b, true
	case OpDivide:
		if b == 0 {
			return 0, false
		}
		return a / b, true
	}
	return 0, false
}

type Orientation uint8

const (
	Horizontal Orientation = iota
	Vertical
)

var orientNames = [...]string{Horizontal: "HORIZONTAL", Vertical: "VERTICAL"}

func (o Orientation) String() string {
	if int(o) < len(orientNames) {
		return orientNames[o]
	}
	return "UNKNOWN"
}

func ParseOrientation(s string) (Orientation, bool) {
	for o, name := range orientNames {
		if name == s {
			return Orientation(o), true
		}
	}
	return Horizontal, false
}

// OperatorCells returns the three cells of an operator whose origin is at p.
// The origin sits in the middle; InputA precedes it along the axis.
func OperatorCells(origin Pos, orient Orientation) (inputA, inputB Pos) {
	if orient == Vertical {
		return Pos{X: origin.X, Y: origin.Y - 1}, Pos{X: origin.X, Y: origin.Y + 1}
	}
	return Pos{X: origin.X - 1, Y: origin.Y}, Pos{X: origin.X + 1, Y: origin.Y}
}

// Tile is the content of one cell. Kind selects which of the remaining
// fields are meaningful; the zero value is an Empty cell.
type Tile struct {
	Kind Kind

	// Belt.
	Dir      Direction
	Progress float64
	HasDest  bool
	Dest     Pos

	// Extractor.
	Emit int64

	// Operator. Origin is the coordinate of the unit's origin cell (also set
	// on the origin itself).
	Role   Role
	Op     OpKind
	Orient Orientation
	Origin Pos

	// Belts and operator cells hold at most one token.
	HasToken bool
	Token    int64
}

func (t Tile) IsEmpty() bool { return t.Kind == KindEmpty }

// Settled reports whether the tile holds a token that is not mid-transfer.
func (t Tile) Settled() bool {
	return t.HasToken && t.Progress == 0 && !t.HasDest
}

// Moving reports whether the tile's token is animating toward Dest.
func (t Tile) Moving() bool {
	return t.HasToken && t.HasDest && t.Progress > 0
}

func (t Tile) withoutToken() Tile {
	t.HasToken = false
	t.Token = 0
	t.Progress = 0
	t.HasDest = false
	t.Dest = Pos{}
	return t
}

// ClearToken returns t with its token, progress and destination reset.
func (t Tile) ClearToken() Tile { return t.withoutToken() }

// WithToken returns t holding v, settled at progress 0.
func (t Tile) WithToken(v int64) Tile {
	t = t.withoutToken()
	t.HasToken = true
	t.Token = v
	return t
}

func Belt(dir Direction) Tile { return Tile{Kind: KindBelt, Dir: dir} }

func Extractor(emit int64) Tile { return Tile{Kind: KindExtractor, Emit: emit} }

func Consumer() Tile { return Tile{Kind: KindConsumer} }
