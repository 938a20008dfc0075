package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/pprof"
	"time"

	"beltline.ai/internal/sim/world"
	"beltline.ai/internal/transport/ws"
)

type muxOptions struct {
	EnableAdmin bool
	EnablePprof bool
}

func newMux(w *world.World, idx runtimeIndex, opts muxOptions, logger *log.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, w, idx)
	})

	if opts.EnableAdmin {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", adminStateHandler(w))
		mux.HandleFunc("/admin/v1/snapshot", adminSnapshotHandler(w))
	} else {
		logger.Printf("admin endpoints disabled (BL_ENABLE_ADMIN_HTTP=false)")
	}
	if opts.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (BL_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, logger).Handler())
	return mux
}

func adminStateHandler(w *world.World) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			WorldID string             `json:"world_id"`
			Tick    uint64             `json:"tick"`
			Metrics world.WorldMetrics `json:"metrics"`
		}{
			WorldID: w.ID(),
			Tick:    w.CurrentTick(),
			Metrics: w.Metrics(),
		}
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

// snapshotResponse is the body of POST /admin/v1/snapshot.
type snapshotResponse struct {
	OK       bool               `json:"ok"`
	Snapshot world.SnapshotInfo `json:"snapshot"`
	Error    string             `json:"error,omitempty"`
}

func adminSnapshotHandler(w *world.World) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		info, err := w.RequestSnapshot(ctx)
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(snapshotResponse{OK: false, Snapshot: info, Error: err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(snapshotResponse{OK: true, Snapshot: info})
	}
}

// writeMetrics renders the minimal Prometheus text exposition format.
func writeMetrics(out io.Writer, w *world.World, idx runtimeIndex) {
	m := w.Metrics()
	tick := w.CurrentTick()
	if m.Tick != 0 {
		tick = m.Tick
	}
	id := w.ID()

	gauge := func(name, help string) {
		fmt.Fprintf(out, "# HELP beltline_%s %s\n", name, help)
		fmt.Fprintf(out, "# TYPE beltline_%s gauge\n", name)
	}
	counter := func(name, help string) {
		fmt.Fprintf(out, "# HELP beltline_%s %s\n", name, help)
		fmt.Fprintf(out, "# TYPE beltline_%s counter\n", name)
	}

	gauge("world_tick", "Current world tick.")
	fmt.Fprintf(out, "beltline_world_tick{world=%q} %d\n", id, tick)

	gauge("world_sessions", "Connected client sessions.")
	fmt.Fprintf(out, "beltline_world_sessions{world=%q} %d\n", id, m.Sessions)

	gauge("world_tiles", "Occupied tiles.")
	fmt.Fprintf(out, "beltline_world_tiles{world=%q} %d\n", id, m.Tiles)

	gauge("world_tokens", "Tokens currently on the grid.")
	fmt.Fprintf(out, "beltline_world_tokens{world=%q} %d\n", id, m.Tokens)
	fmt.Fprintf(out, "beltline_world_token_sum{world=%q} %d\n", id, m.TokenSum)

	gauge("world_queue_depth", "Channel backlog depth.")
	fmt.Fprintf(out, "beltline_world_queue_depth{world=%q,queue=%q} %d\n", id, "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(out, "beltline_world_queue_depth{world=%q,queue=%q} %d\n", id, "subscribe", m.QueueDepths.Subscribe)
	fmt.Fprintf(out, "beltline_world_queue_depth{world=%q,queue=%q} %d\n", id, "unsubscribe", m.QueueDepths.Unsubscribe)

	gauge("world_step_ms", "Last tick step duration in milliseconds.")
	fmt.Fprintf(out, "beltline_world_step_ms{world=%q} %.3f\n", id, m.StepMS)

	counter("world_commands_total", "Edit commands applied.")
	fmt.Fprintf(out, "beltline_world_commands_total{world=%q} %d\n", id, m.Commands)

	counter("world_delivered_total", "Tokens accepted by consumers.")
	fmt.Fprintf(out, "beltline_world_delivered_total{world=%q} %d\n", id, m.Delivered)
	fmt.Fprintf(out, "beltline_world_delivered_value_total{world=%q} %d\n", id, m.DeliveredValue)

	counter("engine_events_total", "Engine phase events since start.")
	e := m.Engine
	for _, kv := range []struct {
		name string
		v    uint64
	}{
		{"updates", e.Updates},
		{"emitted", e.Emitted},
		{"extractor_stalls", e.ExtractorStalls},
		{"commits", e.Commits},
		{"pickups", e.Pickups},
		{"delivered", e.Delivered},
		{"cancelled_moves", e.CancelledMoves},
		{"combined", e.Combined},
		{"divide_stalls", e.DivideStalls},
		{"output_stalls", e.OutputStalls},
		{"invalid_operators", e.InvalidOperators},
		{"dropped_extract_cycles", e.DroppedExtractCycles},
		{"dropped_operator_cycles", e.DroppedOperatorCycles},
	} {
		fmt.Fprintf(out, "beltline_engine_events_total{world=%q,event=%q} %d\n", id, kv.name, kv.v)
	}

	if idx == nil {
		return
	}
	s := idx.Stats()
	gauge("index_queue_depth", "Index writer queue depth.")
	fmt.Fprintf(out, "beltline_index_queue_depth{world=%q} %d\n", id, s.QueueDepth)
	fmt.Fprintf(out, "beltline_index_queue_capacity{world=%q} %d\n", id, s.QueueCapacity)

	counter("index_dropped_total", "Index rows dropped because the writer queue was full.")
	fmt.Fprintf(out, "beltline_index_dropped_total{world=%q,kind=%q} %d\n", id, "tick", s.DropTickTotal)
	fmt.Fprintf(out, "beltline_index_dropped_total{world=%q,kind=%q} %d\n", id, "audit", s.DropAuditTotal)
	fmt.Fprintf(out, "beltline_index_dropped_total{world=%q,kind=%q} %d\n", id, "snapshot", s.DropSnapshotTotal)
}
