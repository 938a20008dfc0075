package world

import (
	"context"
	"errors"
)

var (
	ErrNoSnapshotSink   = errors.New("snapshot sink not configured")
	ErrSnapshotSinkFull = errors.New("snapshot sink is full")
)

// SnapshotInfo summarizes a snapshot handed to the sink on request.
type SnapshotInfo struct {
	Tick      uint64 `json:"tick"`
	Tiles     int    `json:"tiles"`
	Tokens    int    `json:"tokens"`
	Delivered uint64 `json:"delivered"`
}

type snapshotRequest struct {
	reply chan snapshotReply
}

type snapshotReply struct {
	info SnapshotInfo
	err  error
}

// RequestSnapshot asks the world loop to export the last completed tick to
// the snapshot sink. Safe to call from any goroutine.
func (w *World) RequestSnapshot(ctx context.Context) (SnapshotInfo, error) {
	if w == nil || w.admin == nil {
		return SnapshotInfo{}, ErrNoSnapshotSink
	}
	reply := make(chan snapshotReply, 1)
	select {
	case w.admin <- snapshotRequest{reply: reply}:
	case <-ctx.Done():
		return SnapshotInfo{}, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.info, r.err
	case <-ctx.Done():
		return SnapshotInfo{}, ctx.Err()
	}
}

// serveSnapshotRequests answers every request queued during a tick with a
// single export. Replies never block the loop.
func (w *World) serveSnapshotRequests(reqs []snapshotRequest) {
	if len(reqs) == 0 {
		return
	}
	r := w.exportToSink()
	for _, req := range reqs {
		select {
		case req.reply <- r:
		default:
		}
	}
}

func (w *World) exportToSink() snapshotReply {
	if w.snapshotSink == nil {
		return snapshotReply{err: ErrNoSnapshotSink}
	}
	var tick uint64
	if cur := w.tick.Load(); cur > 0 {
		tick = cur - 1
	}
	snap := w.ExportSnapshot(tick)
	info := SnapshotInfo{Tick: tick, Tiles: len(snap.Tiles), Delivered: snap.Counters.Delivered}
	for _, t := range snap.Tiles {
		if t.Token != nil {
			info.Tokens++
		}
	}
	select {
	case w.snapshotSink <- snap:
		return snapshotReply{info: info}
	default:
		return snapshotReply{info: info, err: ErrSnapshotSinkFull}
	}
}
