package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	// Effective parameters, captured for deterministic resume.
	TickRateHz          int     `json:"tick_rate_hz"`
	ExtractIntervalSec  float64 `json:"extract_interval_sec"`
	OperatorIntervalSec float64 `json:"operator_interval_sec"`
	BeltTilesPerSec     float64 `json:"belt_tiles_per_sec"`
	MaxCatchUp          int     `json:"max_catch_up"`

	Timers TimersV1 `json:"timers"`
	Tiles  []TileV1 `json:"tiles"`

	Counters CountersV1 `json:"counters"`
}

type TimersV1 struct {
	ExtractPending  float64 `json:"extract_pending"`
	OperatorPending float64 `json:"operator_pending"`
}

// TileV1 stores enum fields by name so the format survives reordering of
// the in-memory constants.
type TileV1 struct {
	Pos  [2]int `json:"pos"`
	Kind string `json:"kind"`

	Dir      string  `json:"dir,omitempty"`
	Progress float64 `json:"progress,omitempty"`
	Dest     *[2]int `json:"dest,omitempty"`

	Emit int64 `json:"emit,omitempty"`

	Role   string `json:"role,omitempty"`
	Op     string `json:"op,omitempty"`
	Orient string `json:"orient,omitempty"`
	Origin [2]int `json:"origin,omitempty"`

	Token *int64 `json:"token,omitempty"`
}

type CountersV1 struct {
	Delivered      uint64 `json:"delivered"`
	DeliveredValue int64  `json:"delivered_value"`
	Commands       uint64 `json:"commands"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	// Write to a temp file first so a crash never leaves a truncated snapshot
	// under the final name.
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The header line is for tools that only need the tick; gob repeats it.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
