package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	persistlog "beltline.ai/internal/persistence/log"
	"beltline.ai/internal/persistence/snapshot"
	"beltline.ai/internal/sim/tuning"
	"beltline.ai/internal/sim/world"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst to start from (optional; default: fresh world)")
		ticksDir   = flag.String("ticks", "", "dir containing ticks-*.jsonl.zst (required)")
		worldID    = flag.String("world", "line_1", "world id for a fresh world")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "tuning for a fresh world whose log predates recorded engine params")
		fromTick   = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if strings.TrimSpace(*ticksDir) == "" {
		fmt.Fprintln(os.Stderr, "missing -ticks")
		os.Exit(2)
	}

	w, err := startWorld(*snapPath, *worldID, *tuningPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	files, err := persistlog.ListFiles(*ticksDir, persistlog.KindTicks)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list ticks:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no tick files found in", *ticksDir)
		os.Exit(1)
	}

	startTick := w.CurrentTick()
	res, err := replay(w, files, *fromTick, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks deliveries=%d (from tick=%d to tick=%d)\n", res.Checked, res.Deliveries, startTick, w.CurrentTick())
}

func startWorld(snapPath, worldID, tuningPath string) (*world.World, error) {
	if snapPath == "" {
		tune, err := tuning.Load(tuningPath)
		if errors.Is(err, os.ErrNotExist) {
			tune = tuning.Defaults()
		} else if err != nil {
			return nil, fmt.Errorf("load tuning: %w", err)
		}
		return world.New(world.ConfigFromTuning(worldID, tune))
	}

	snap, err := snapshot.ReadSnapshot(snapPath)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	fmt.Printf("snapshot v%d world=%s tick=%d tiles=%d delivered=%d\n",
		snap.Header.Version, snap.Header.WorldID, snap.Header.Tick, len(snap.Tiles), snap.Counters.Delivered)

	w, err := world.New(world.WorldConfig{ID: snap.Header.WorldID, TickRateHz: snap.TickRateHz})
	if err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	if err := w.ImportSnapshot(snap); err != nil {
		return nil, fmt.Errorf("import snapshot: %w", err)
	}
	return w, nil
}

type replayResult struct {
	Checked    uint64
	Deliveries int
}

var errReachedEnd = errors.New("reached to_tick")

// lastTick keeps the most recent entry the replayed world logged.
type lastTick struct{ entry world.TickLogEntry }

func (l *lastTick) WriteTick(e world.TickLogEntry) error {
	l.entry = e
	return nil
}

// replay re-applies the recorded commands of every logged tick at or after
// the world's current tick and checks the resulting digests. Engine params
// recorded in the log take precedence over the world's own.
func replay(w *world.World, files []string, verifyFrom, toTick uint64) (replayResult, error) {
	var res replayResult
	var last lastTick
	w.SetTickLogger(&last)
	startTick := w.CurrentTick()
	if verifyFrom == 0 {
		verifyFrom = startTick
	}

	for _, path := range files {
		name := filepath.Base(path)
		err := persistlog.ReadJSONLZstd(path, func(line []byte) error {
			var entry world.TickLogEntry
			if err := json.Unmarshal(line, &entry); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", name, err)
			}
			if entry.Tick < startTick {
				return nil
			}
			if toTick != 0 && entry.Tick > toTick {
				return errReachedEnd
			}
			if entry.Tick != w.CurrentTick() {
				return fmt.Errorf("tick mismatch: want=%d got=%d (file=%s)", w.CurrentTick(), entry.Tick, name)
			}

			if entry.Params != nil && *entry.Params != w.Params() {
				if err := w.ApplyParams(*entry.Params); err != nil {
					return fmt.Errorf("tick %d: engine params: %w", entry.Tick, err)
				}
			}

			cmds := make([]world.CommandEnvelope, 0, len(entry.Commands))
			for _, rc := range entry.Commands {
				cmds = append(cmds, world.CommandEnvelope{SessionID: rc.SessionID, Cmd: rc.Cmd})
			}
			tick, gotDigest := w.StepOnce(cmds)
			if tick != entry.Tick {
				return fmt.Errorf("internal tick mismatch: stepped=%d entry=%d (file=%s)", tick, entry.Tick, name)
			}

			got := len(last.entry.Deliveries)
			res.Deliveries += got
			if tick >= verifyFrom {
				res.Checked++
				if gotDigest != entry.Digest {
					return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, gotDigest, entry.Digest)
				}
				if got != len(entry.Deliveries) {
					return fmt.Errorf("delivery count mismatch at tick %d: got=%d want=%d", tick, got, len(entry.Deliveries))
				}
			}
			return nil
		})
		if errors.Is(err, errReachedEnd) {
			return res, nil
		}
		if err != nil {
			return res, err
		}
	}
	return res, nil
}
