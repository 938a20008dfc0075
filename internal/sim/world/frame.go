package world

import (
	"beltline.ai/internal/protocol"
	"beltline.ai/internal/sim/grid"
)

func (w *World) buildFrame(nowTick uint64, dg string) protocol.FrameMsg {
	tiles := make([]protocol.TileView, 0, w.grid.Len())
	w.grid.Each(func(p grid.Pos, t grid.Tile) {
		tiles = append(tiles, tileView(p, t))
	})
	count, _ := w.grid.TokenTotal()
	st := w.engine.Stats()
	return protocol.FrameMsg{
		Type:            protocol.TypeFrame,
		ProtocolVersion: protocol.Version,
		WorldID:         w.cfg.ID,
		Tick:            nowTick,
		Digest:          dg,
		Tiles:           tiles,
		Stats: protocol.FrameStats{
			Tokens:         count,
			Emitted:        st.Emitted,
			Combined:       st.Combined,
			Delivered:      w.deliveredTotal,
			DeliveredValue: w.deliveredValue,
		},
	}
}

func tileView(p grid.Pos, t grid.Tile) protocol.TileView {
	v := protocol.TileView{Pos: p.ToArray(), Kind: t.Kind.String()}
	switch t.Kind {
	case grid.KindBelt:
		v.Dir = t.Dir.String()
		v.Progress = t.Progress
		if t.HasDest {
			d := t.Dest.ToArray()
			v.Dest = &d
		}
	case grid.KindExtractor:
		v.Emit = int64Ptr(t.Emit)
	case grid.KindOperator:
		v.Role = t.Role.String()
		v.Op = t.Op.String()
		v.Orient = t.Orient.String()
		o := t.Origin.ToArray()
		v.Origin = &o
	}
	if t.HasToken {
		v.Token = int64Ptr(t.Token)
	}
	return v
}
