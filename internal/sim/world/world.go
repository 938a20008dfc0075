package world

import (
	"fmt"
	"sync/atomic"

	"beltline.ai/internal/persistence/snapshot"
	"beltline.ai/internal/protocol"
	"beltline.ai/internal/sim/engine"
	"beltline.ai/internal/sim/grid"
	"beltline.ai/internal/sim/tuning"
)

type WorldConfig struct {
	ID                 string
	TickRateHz         int
	SnapshotEveryTicks int

	// FrameEveryTicks is the default frame cadence for sessions that do not
	// ask for one. 0 disables frames.
	FrameEveryTicks int
	Engine          engine.Config
}

func ConfigFromTuning(id string, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		ID:                 id,
		TickRateHz:         t.TickRateHz,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
		FrameEveryTicks:    t.FrameEveryTicks,
		Engine: engine.Config{
			ExtractInterval:  t.Engine.ExtractIntervalSec,
			OperatorInterval: t.Engine.OperatorIntervalSec,
			BeltSpeed:        t.Engine.BeltTilesPerSec,
			MaxCatchUp:       t.Engine.MaxCatchUp,
		},
	}
}

// SubscribeRequest opens a session. Out receives encoded server messages
// (CMD_RESULT, DELIVERY, FRAME); Resp receives the WELCOME.
type SubscribeRequest struct {
	Name       string
	FrameEvery int
	Out        chan []byte
	Resp       chan protocol.WelcomeMsg
}

// CommandEnvelope carries one edit command into the world loop. The result
// goes to Resp when set, otherwise to the session's Out channel.
type CommandEnvelope struct {
	SessionID string
	Cmd       protocol.CmdMsg
	Resp      chan protocol.CmdResultMsg
}

// World is a single-threaded authoritative simulation of one production line.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg WorldConfig
	dt  float64

	tick atomic.Uint64

	grid   *grid.Grid
	engine *engine.Engine

	sessions       map[string]*session
	nextSessionNum uint64

	inbox       chan CommandEnvelope
	subscribe   chan SubscribeRequest
	unsubscribe chan string
	admin       chan snapshotRequest
	stop        chan struct{}

	// Deliveries reported by the engine during the current Update.
	delivered []engine.Delivery

	deliveredTotal uint64
	deliveredValue int64
	commandsTotal  uint64

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	tickLogger   TickLogger
	auditLogger  AuditLogger
	paramsLogged bool

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.SnapshotV1

	metrics atomic.Value
}

type session struct {
	ID         string
	Name       string
	FrameEvery int
	Out        chan []byte
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// TickLogEntry is one line of the tick log. Params is set on the first entry
// a world writes after it is created, resumed or reconfigured, so a replay
// can rebuild the engine the log ran under.
type TickLogEntry struct {
	Tick       uint64                `json:"tick"`
	Params     *protocol.WorldParams `json:"params,omitempty"`
	Commands   []RecordedCmd         `json:"commands,omitempty"`
	Deliveries []DeliveryRecord      `json:"deliveries,omitempty"`
	Digest     string                `json:"digest"`
}

type RecordedCmd struct {
	SessionID string          `json:"session_id"`
	Cmd       protocol.CmdMsg `json:"cmd"`
	OK        bool            `json:"ok"`
	Code      string          `json:"code,omitempty"`
}

type DeliveryRecord struct {
	Pos   [2]int `json:"pos"`
	Value int64  `json:"value"`
}

type AuditEntry struct {
	Tick   uint64 `json:"tick"`
	Actor  string `json:"actor"`
	Action string `json:"action"` // e.g. "PLACE_BELT", "REMOVE", "DELIVER"
	Pos    [2]int `json:"pos"`
	Kind   string `json:"kind,omitempty"`
	Value  *int64 `json:"value,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func New(cfg WorldConfig) (*World, error) {
	if cfg.TickRateHz <= 0 {
		return nil, fmt.Errorf("tick rate must be > 0, got %d", cfg.TickRateHz)
	}
	if cfg.ID == "" {
		cfg.ID = "line_1"
	}
	w := &World{
		cfg:         cfg,
		dt:          1.0 / float64(cfg.TickRateHz),
		grid:        grid.New(),
		sessions:    map[string]*session{},
		inbox:       make(chan CommandEnvelope, 1024),
		subscribe:   make(chan SubscribeRequest, 64),
		unsubscribe: make(chan string, 64),
		admin:       make(chan snapshotRequest, 16),
		stop:        make(chan struct{}),
	}
	w.engine = w.newEngine(w.grid)
	return w, nil
}

func (w *World) newEngine(g *grid.Grid) *engine.Engine {
	return engine.New(g, w.cfg.Engine, engine.ListenerFunc(func(d engine.Delivery) {
		w.delivered = append(w.delivered, d)
	}))
}

func (w *World) SetTickLogger(l TickLogger) {
	w.tickLogger = l
	w.paramsLogged = false
}

func (w *World) SetAuditLogger(l AuditLogger)                  { w.auditLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) Inbox() chan<- CommandEnvelope      { return w.inbox }
func (w *World) Subscribe() chan<- SubscribeRequest { return w.subscribe }
func (w *World) Unsubscribe() chan<- string         { return w.unsubscribe }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) TickRateHz() int {
	if w == nil {
		return 0
	}
	return w.cfg.TickRateHz
}

// Params reports the effective engine parameters, defaults filled in.
func (w *World) Params() protocol.WorldParams { return w.worldParams() }

// ApplyParams rebuilds the engine with recorded parameters. The grid and the
// phase timers carry over. Like ImportSnapshot it must not race with Run.
func (w *World) ApplyParams(p protocol.WorldParams) error {
	if p.TickRateHz <= 0 {
		return fmt.Errorf("tick rate must be > 0, got %d", p.TickRateHz)
	}
	w.cfg.TickRateHz = p.TickRateHz
	w.dt = 1.0 / float64(p.TickRateHz)
	w.cfg.Engine = engine.Config{
		ExtractInterval:  p.ExtractIntervalSec,
		OperatorInterval: p.OperatorIntervalSec,
		BeltSpeed:        p.BeltTilesPerSec,
		MaxCatchUp:       p.MaxCatchUp,
	}
	timers := w.engine.Timers()
	w.engine = w.newEngine(w.grid)
	w.engine.RestoreTimers(timers)
	w.paramsLogged = false
	return nil
}

func (w *World) worldParams() protocol.WorldParams {
	c := w.cfg.Engine
	def := engine.DefaultConfig()
	if c.ExtractInterval <= 0 {
		c.ExtractInterval = def.ExtractInterval
	}
	if c.OperatorInterval <= 0 {
		c.OperatorInterval = def.OperatorInterval
	}
	if c.BeltSpeed <= 0 {
		c.BeltSpeed = def.BeltSpeed
	}
	if c.MaxCatchUp <= 0 {
		c.MaxCatchUp = def.MaxCatchUp
	}
	return protocol.WorldParams{
		TickRateHz:          w.cfg.TickRateHz,
		ExtractIntervalSec:  c.ExtractInterval,
		OperatorIntervalSec: c.OperatorInterval,
		BeltTilesPerSec:     c.BeltSpeed,
		MaxCatchUp:          c.MaxCatchUp,
	}
}
