package world

import (
	"context"
	"time"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingCmds []CommandEnvelope
	var pendingSubs []SubscribeRequest
	var pendingUnsubs []string
	var pendingAdmin []snapshotRequest

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.subscribe:
			pendingSubs = append(pendingSubs, req)
		case id := <-w.unsubscribe:
			pendingUnsubs = append(pendingUnsubs, id)
		case req := <-w.admin:
			pendingAdmin = append(pendingAdmin, req)
		case env := <-w.inbox:
			pendingCmds = append(pendingCmds, env)
		case <-ticker.C:
			w.step(pendingSubs, pendingUnsubs, pendingCmds)
			w.serveSnapshotRequests(pendingAdmin)
			pendingSubs = pendingSubs[:0]
			pendingUnsubs = pendingUnsubs[:0]
			pendingCmds = pendingCmds[:0]
			pendingAdmin = pendingAdmin[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick using the same ordering
// semantics as the server loop. Intended for replays and tests.
func (w *World) StepOnce(cmds []CommandEnvelope) (tick uint64, digest string) {
	return w.step(nil, nil, cmds)
}
