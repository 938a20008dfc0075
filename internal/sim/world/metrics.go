package world

import "beltline.ai/internal/sim/engine"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Sessions int   `json:"sessions"`
	Tiles    int   `json:"tiles"`
	Tokens   int   `json:"tokens"`
	TokenSum int64 `json:"token_sum"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	Commands       uint64 `json:"commands"`
	Delivered      uint64 `json:"delivered"`
	DeliveredValue int64  `json:"delivered_value"`

	Engine engine.Stats `json:"engine"`
}

type QueueDepths struct {
	Inbox       int `json:"inbox"`
	Subscribe   int `json:"subscribe"`
	Unsubscribe int `json:"unsubscribe"`
}

func (w *World) storeMetrics(nextTick uint64, stepMS float64) {
	count, sum := w.grid.TokenTotal()
	w.metrics.Store(WorldMetrics{
		Tick:     nextTick,
		Sessions: len(w.sessions),
		Tiles:    w.grid.Len(),
		Tokens:   count,
		TokenSum: sum,
		QueueDepths: QueueDepths{
			Inbox:       len(w.inbox),
			Subscribe:   len(w.subscribe),
			Unsubscribe: len(w.unsubscribe),
		},
		StepMS:         stepMS,
		Commands:       w.commandsTotal,
		Delivered:      w.deliveredTotal,
		DeliveredValue: w.deliveredValue,
		Engine:         w.engine.Stats(),
	})
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}
