package digest

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"beltline.ai/internal/sim/grid"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

// StateDigest hashes every tile in position order together with the tick.
// Two runs fed the same commands produce the same digest sequence.
func StateDigest(tick uint64, g *grid.Grid) string {
	h := sha256.New()
	var tmp [8]byte

	writeU64(h, &tmp, tick)
	writeU64(h, &tmp, uint64(g.Len()))
	g.Each(func(p grid.Pos, t grid.Tile) {
		writeI64(h, &tmp, int64(p.X))
		writeI64(h, &tmp, int64(p.Y))
		h.Write([]byte{byte(t.Kind)})
		switch t.Kind {
		case grid.KindBelt:
			h.Write([]byte{byte(t.Dir), boolByte(t.HasDest)})
			writeU64(h, &tmp, math.Float64bits(t.Progress))
			if t.HasDest {
				writeI64(h, &tmp, int64(t.Dest.X))
				writeI64(h, &tmp, int64(t.Dest.Y))
			}
		case grid.KindExtractor:
			writeI64(h, &tmp, t.Emit)
		case grid.KindOperator:
			h.Write([]byte{byte(t.Role), byte(t.Op), byte(t.Orient)})
			writeI64(h, &tmp, int64(t.Origin.X))
			writeI64(h, &tmp, int64(t.Origin.Y))
		}
		h.Write([]byte{boolByte(t.HasToken)})
		if t.HasToken {
			writeI64(h, &tmp, t.Token)
		}
	})
	return hex.EncodeToString(h.Sum(nil))
}

func writeU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func writeI64(h hashWriter, tmp *[8]byte, v int64) { writeU64(h, tmp, uint64(v)) }

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
