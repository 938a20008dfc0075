package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite"
)

type SnapshotRow struct {
	Tick      uint64 `json:"tick"`
	Path      string `json:"path"`
	Tiles     int    `json:"tiles"`
	Tokens    int    `json:"tokens"`
	TokenSum  int64  `json:"token_sum"`
	Delivered uint64 `json:"delivered"`
}

type TickRow struct {
	Tick       uint64 `json:"tick"`
	Digest     string `json:"digest"`
	Commands   int    `json:"commands"`
	Deliveries int    `json:"deliveries"`
}

type DeliveryRow struct {
	Tick  uint64 `json:"tick"`
	Seq   int    `json:"seq"`
	Pos   [2]int `json:"pos"`
	Value int64  `json:"value"`
}

// Reader queries an index written by SQLiteIndex. It never writes.
type Reader struct {
	db *sql.DB
}

func OpenReader(path string) (*Reader, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

func (r *Reader) Snapshots(ctx context.Context, limit int) ([]SnapshotRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT tick,path,tiles,tokens,token_sum,delivered FROM snapshots ORDER BY tick DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SnapshotRow
	for rows.Next() {
		var s SnapshotRow
		if err := rows.Scan(&s.Tick, &s.Path, &s.Tiles, &s.Tokens, &s.TokenSum, &s.Delivered); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Reader) Ticks(ctx context.Context, limit int) ([]TickRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT tick,digest,commands,deliveries FROM ticks ORDER BY tick DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TickRow
	for rows.Next() {
		var t TickRow
		if err := rows.Scan(&t.Tick, &t.Digest, &t.Commands, &t.Deliveries); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Deliveries lists the most recent deliveries, newest first.
func (r *Reader) Deliveries(ctx context.Context, limit int) ([]DeliveryRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT tick,seq,x,y,value FROM deliveries ORDER BY tick DESC, seq DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DeliveryRow
	for rows.Next() {
		var d DeliveryRow
		if err := rows.Scan(&d.Tick, &d.Seq, &d.Pos[0], &d.Pos[1], &d.Value); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func clampLimit(n int) int {
	if n <= 0 {
		return 20
	}
	if n > 10000 {
		return 10000
	}
	return n
}
