package worldtest

import (
	"testing"

	"beltline.ai/internal/persistence/snapshot"
	world "beltline.ai/internal/sim/world"
)

func testConfig() world.WorldConfig {
	return world.WorldConfig{ID: "test", TickRateHz: 20}
}

// tilesAt exports the current grid keyed by position.
func tilesAt(t *testing.T, h *Harness) map[[2]int]snapshot.TileV1 {
	t.Helper()
	snap := h.W.ExportSnapshot(h.W.CurrentTick())
	out := make(map[[2]int]snapshot.TileV1, len(snap.Tiles))
	for _, tv := range snap.Tiles {
		out[tv.Pos] = tv
	}
	return out
}

func values(ds []world.DeliveryRecord) []int64 {
	out := make([]int64, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Value)
	}
	return out
}
