package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"beltline.ai/internal/persistence/snapshot"
	"beltline.ai/internal/protocol"
	"beltline.ai/internal/sim/tuning"
	"beltline.ai/internal/sim/world"
)

func newTestWorld(t *testing.T) *world.World {
	t.Helper()
	w, err := world.New(world.ConfigFromTuning("line_test", tuning.Defaults()))
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	return w
}

func TestLatestSnapshot(t *testing.T) {
	dir := t.TempDir()
	snaps := filepath.Join(dir, "snapshots")
	if err := os.MkdirAll(snaps, 0o755); err != nil {
		t.Fatal(err)
	}
	if got := latestSnapshot(dir); got != "" {
		t.Fatalf("empty dir: got %q", got)
	}
	for _, name := range []string{"9.snap.zst", "120.snap.zst", "30.snap.zst", "junk.snap.zst", "200.snap"} {
		if err := os.WriteFile(filepath.Join(snaps, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if got, want := latestSnapshot(dir), filepath.Join(snaps, "120.snap.zst"); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5555": true,
		"[::1]:80":       true,
		"::1":            true,
		"10.0.0.4:9000":  false,
		"example.com:80": false,
		"":               false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Errorf("isLoopbackRemote(%q)=%v want %v", in, got, want)
		}
	}
}

func TestOpenWorld_ResumesFromSnapshot(t *testing.T) {
	src := newTestWorld(t)
	emit := int64(4)
	src.StepOnce([]world.CommandEnvelope{
		{Cmd: protocol.CmdMsg{Op: protocol.OpPlaceExtractor, Pos: [2]int{0, 0}, Emit: &emit}},
		{Cmd: protocol.CmdMsg{Op: protocol.OpPlaceBelt, Pos: [2]int{1, 0}, Dir: "RIGHT"}},
	})
	for i := 0; i < 10; i++ {
		src.StepOnce(nil)
	}
	snap := src.ExportSnapshot(src.CurrentTick() - 1)
	path := filepath.Join(t.TempDir(), "snapshots", "10.snap.zst")
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}

	w, err := openWorld("line_test", tuning.Defaults(), path)
	if err != nil {
		t.Fatalf("openWorld: %v", err)
	}
	if w.CurrentTick() != snap.Header.Tick+1 {
		t.Fatalf("tick=%d want %d", w.CurrentTick(), snap.Header.Tick+1)
	}

	if _, err := openWorld("other_line", tuning.Defaults(), path); err == nil {
		t.Fatalf("expected world id mismatch error")
	}
}

func TestOpenRuntimeIndex_Backends(t *testing.T) {
	dir := t.TempDir()

	idx, err := openRuntimeIndex(dir, true)
	if err != nil || idx != nil {
		t.Fatalf("disabled: idx=%v err=%v", idx, err)
	}

	t.Setenv("BL_INDEX_BACKEND", "none")
	idx, err = openRuntimeIndex(dir, false)
	if err != nil || idx != nil {
		t.Fatalf("none: idx=%v err=%v", idx, err)
	}

	t.Setenv("BL_INDEX_BACKEND", "postgres")
	if _, err := openRuntimeIndex(dir, false); err == nil {
		t.Fatalf("expected unsupported backend error")
	}

	t.Setenv("BL_INDEX_BACKEND", "sqlite")
	idx, err = openRuntimeIndex(dir, false)
	if err != nil || idx == nil {
		t.Fatalf("sqlite: idx=%v err=%v", idx, err)
	}
	defer idx.Close()
	if _, err := os.Stat(indexPath(dir)); err != nil {
		t.Fatalf("index file: %v", err)
	}
}

func TestMux_MetricsAndAdmin(t *testing.T) {
	w := newTestWorld(t)
	w.StepOnce(nil)
	mux := newMux(w, nil, muxOptions{EnableAdmin: true}, log.New(io.Discard, "", 0))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`beltline_world_tick{world="line_test"} 1`,
		`beltline_world_queue_depth{world="line_test",queue="inbox"} 0`,
		`beltline_engine_events_total{world="line_test",event="updates"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q\n%s", want, body)
		}
	}
	if strings.Contains(body, "beltline_index_") {
		t.Errorf("index metrics rendered without an index")
	}

	rec = httptest.NewRecorder()
	remote := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	remote.RemoteAddr = "203.0.113.9:4000"
	mux.ServeHTTP(rec, remote)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote state: code=%d", rec.Code)
	}

	rec = httptest.NewRecorder()
	local := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	local.RemoteAddr = "127.0.0.1:4000"
	mux.ServeHTTP(rec, local)
	if rec.Code != http.StatusOK {
		t.Fatalf("local state: code=%d", rec.Code)
	}
	var state struct {
		WorldID string `json:"world_id"`
		Tick    uint64 `json:"tick"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.WorldID != "line_test" || state.Tick != 1 {
		t.Fatalf("state=%+v", state)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/v1/snapshot", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET snapshot: code=%d", rec.Code)
	}
}

func TestMux_AdminDisabled(t *testing.T) {
	w := newTestWorld(t)
	mux := newMux(w, nil, muxOptions{}, log.New(io.Discard, "", 0))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("code=%d want 404", rec.Code)
	}
}
