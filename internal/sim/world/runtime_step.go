package world

import (
	"encoding/json"
	"fmt"
	"time"

	"beltline.ai/internal/protocol"
	"beltline.ai/internal/sim/digest"
)

func (w *World) step(subs []SubscribeRequest, unsubs []string, cmds []CommandEnvelope) (uint64, string) {
	stepStart := time.Now()
	nowTick := w.tick.Load()

	// Sessions change at the tick boundary before commands are applied.
	for _, id := range unsubs {
		delete(w.sessions, id)
	}
	for _, req := range subs {
		welcome := w.openSession(req, nowTick)
		if req.Resp != nil {
			req.Resp <- welcome
		}
	}

	// Apply commands in server receive order (the inbox order).
	recorded := make([]RecordedCmd, 0, len(cmds))
	for _, env := range cmds {
		res := w.applyCmd(env.SessionID, env.Cmd, nowTick)
		w.commandsTotal++
		recorded = append(recorded, RecordedCmd{SessionID: env.SessionID, Cmd: env.Cmd, OK: res.OK, Code: res.Code})
		w.replyCmd(env, res)
	}

	w.delivered = w.delivered[:0]
	w.engine.Update(w.dt)

	deliveries := make([]DeliveryRecord, 0, len(w.delivered))
	for _, d := range w.delivered {
		w.deliveredTotal++
		w.deliveredValue += d.Value
		rec := DeliveryRecord{Pos: d.Pos.ToArray(), Value: d.Value}
		deliveries = append(deliveries, rec)
		w.audit(AuditEntry{Tick: nowTick, Actor: "WORLD", Action: "DELIVER", Pos: rec.Pos, Kind: "CONSUMER", Value: int64Ptr(d.Value)})
		w.broadcastDelivery(nowTick, rec)
	}

	dg := digest.StateDigest(nowTick, w.grid)
	if w.tickLogger != nil {
		entry := TickLogEntry{Tick: nowTick, Commands: recorded, Deliveries: deliveries, Digest: dg}
		if !w.paramsLogged {
			params := w.worldParams()
			entry.Params = &params
			w.paramsLogged = true
		}
		_ = w.tickLogger.WriteTick(entry)
	}

	w.sendFrames(nowTick, dg)

	// Snapshot every N ticks, starting after tick 0.
	if w.snapshotSink != nil && nowTick != 0 && w.cfg.SnapshotEveryTicks > 0 {
		if nowTick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
			snap := w.ExportSnapshot(nowTick)
			select {
			case w.snapshotSink <- snap:
			default:
				// Drop snapshot if sink is backed up.
			}
		}
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextTick := w.tick.Add(1)
	w.storeMetrics(nextTick, stepMS)
	return nowTick, dg
}

func (w *World) openSession(req SubscribeRequest, nowTick uint64) protocol.WelcomeMsg {
	w.nextSessionNum++
	id := fmt.Sprintf("S%d", w.nextSessionNum)
	every := req.FrameEvery
	if every <= 0 {
		every = w.cfg.FrameEveryTicks
	}
	name := req.Name
	if name == "" {
		name = "client"
	}
	w.sessions[id] = &session{ID: id, Name: name, FrameEvery: every, Out: req.Out}
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       id,
		WorldID:         w.cfg.ID,
		Tick:            nowTick,
		WorldParams:     w.worldParams(),
	}
}

func (w *World) replyCmd(env CommandEnvelope, res cmdResult) {
	msg := protocol.CmdResultMsg{
		Type:            protocol.TypeCmdResult,
		ProtocolVersion: protocol.Version,
		CmdID:           env.Cmd.CmdID,
		Tick:            res.Tick,
		OK:              res.OK,
		Code:            res.Code,
		Message:         res.Message,
	}
	if env.Resp != nil {
		select {
		case env.Resp <- msg:
		default:
			// Caller gave up; don't block the sim loop.
		}
		return
	}
	if s := w.sessions[env.SessionID]; s != nil && s.Out != nil {
		if b, err := json.Marshal(msg); err == nil {
			trySend(s.Out, b)
		}
	}
}

func (w *World) broadcastDelivery(nowTick uint64, rec DeliveryRecord) {
	if len(w.sessions) == 0 {
		return
	}
	b, err := json.Marshal(protocol.DeliveryMsg{
		Type:            protocol.TypeDelivery,
		ProtocolVersion: protocol.Version,
		WorldID:         w.cfg.ID,
		Tick:            nowTick,
		Pos:             rec.Pos,
		Value:           rec.Value,
	})
	if err != nil {
		return
	}
	for _, s := range w.sessions {
		if s.Out != nil {
			trySend(s.Out, b)
		}
	}
}

func (w *World) sendFrames(nowTick uint64, dg string) {
	var frame []byte
	for _, s := range w.sessions {
		if s.Out == nil || s.FrameEvery <= 0 || nowTick%uint64(s.FrameEvery) != 0 {
			continue
		}
		if frame == nil {
			b, err := json.Marshal(w.buildFrame(nowTick, dg))
			if err != nil {
				return
			}
			frame = b
		}
		trySend(s.Out, frame)
	}
}

func (w *World) audit(e AuditEntry) {
	if w.auditLogger != nil {
		_ = w.auditLogger.WriteAudit(e)
	}
}

// trySend never blocks the sim loop; a full session queue drops the message.
func trySend(ch chan []byte, b []byte) {
	select {
	case ch <- b:
	default:
	}
}

func int64Ptr(v int64) *int64 { return &v }
