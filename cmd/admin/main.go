package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"beltline.ai/internal/persistence/snapshot"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "admin",
		Short: "Inspect beltline runtime data",
		Long: `admin reads the data directory written by the beltline server:
snapshots, hourly tick and audit logs, and the sqlite index. The state and
request-snapshot commands talk to a running server over its loopback admin
endpoints.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("data", "./data", "runtime data directory")
	rootCmd.PersistentFlags().String("world", "line_1", "world id")

	rootCmd.AddCommand(
		newListCmd(),
		newSnapshotCmd(),
		newDBCmd(),
		newEventsCmd(),
		newStateCmd(),
		newRequestSnapshotCmd(),
	)
	return rootCmd
}

func worldDirFromFlags(cmd *cobra.Command) string {
	dataDir, _ := cmd.Flags().GetString("data")
	worldID, _ := cmd.Flags().GetString("world")
	return filepath.Join(dataDir, "worlds", worldID)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List worlds, or the files of one world with --world",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data")
			base := filepath.Join(dataDir, "worlds")
			if cmd.Flags().Changed("world") {
				base = worldDirFromFlags(cmd)
			}
			entries, err := os.ReadDir(base)
			if err != nil {
				return fmt.Errorf("read %s: %w", base, err)
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				names = append(names, e.Name())
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"dir": base, "entries": names})
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

type snapshotSummary struct {
	Path       string         `json:"path"`
	WorldID    string         `json:"world_id"`
	Tick       uint64         `json:"tick"`
	TickRateHz int            `json:"tick_rate_hz"`
	Tiles      int            `json:"tiles"`
	Kinds      map[string]int `json:"kinds"`
	Tokens     int            `json:"tokens"`
	TokenSum   int64          `json:"token_sum"`
	InFlight   int            `json:"in_flight"`
	Delivered  uint64         `json:"delivered"`
	Value      int64          `json:"delivered_value"`
}

func summarizeSnapshot(path string, snap snapshot.SnapshotV1) snapshotSummary {
	s := snapshotSummary{
		Path:       path,
		WorldID:    snap.Header.WorldID,
		Tick:       snap.Header.Tick,
		TickRateHz: snap.TickRateHz,
		Tiles:      len(snap.Tiles),
		Kinds:      map[string]int{},
		Delivered:  snap.Counters.Delivered,
		Value:      snap.Counters.DeliveredValue,
	}
	for _, t := range snap.Tiles {
		s.Kinds[t.Kind]++
		if t.Token != nil {
			s.Tokens++
			s.TokenSum += *t.Token
		}
		if t.Dest != nil {
			s.InFlight++
		}
	}
	return s
}

func newSnapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot [path]",
		Short: "Summarize a snapshot file (default: latest for --world)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				path = latestSnapshotPath(worldDirFromFlags(cmd))
				if path == "" {
					return fmt.Errorf("no snapshots under %s", worldDirFromFlags(cmd))
				}
			}
			snap, err := snapshot.ReadSnapshot(path)
			if err != nil {
				return fmt.Errorf("read snapshot: %w", err)
			}
			s := summarizeSnapshot(path, snap)

			out := cmd.OutOrStdout()
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return writeJSON(out, s)
			}
			fmt.Fprintf(out, "snapshot %s\n", s.Path)
			fmt.Fprintf(out, "  world=%s tick=%d tick_rate=%d\n", s.WorldID, s.Tick, s.TickRateHz)
			fmt.Fprintf(out, "  tiles=%d tokens=%d token_sum=%d in_flight=%d\n", s.Tiles, s.Tokens, s.TokenSum, s.InFlight)
			fmt.Fprintf(out, "  delivered=%d delivered_value=%d\n", s.Delivered, s.Value)
			kinds := make([]string, 0, len(s.Kinds))
			for k := range s.Kinds {
				kinds = append(kinds, k)
			}
			sort.Strings(kinds)
			for _, k := range kinds {
				fmt.Fprintf(out, "  %-10s %d\n", k, s.Kinds[k])
			}
			return nil
		},
	}
}

// latestSnapshotPath picks the snapshot with the highest tick in its header.
func latestSnapshotPath(worldDir string) string {
	matches, _ := filepath.Glob(filepath.Join(worldDir, "snapshots", "*.snap.zst"))
	var best string
	var bestTick uint64
	for _, p := range matches {
		h, err := snapshot.ReadHeader(p)
		if err != nil {
			continue
		}
		if best == "" || h.Tick > bestTick {
			best, bestTick = p, h.Tick
		}
	}
	return best
}
