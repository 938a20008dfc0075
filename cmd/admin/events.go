package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	persistlog "beltline.ai/internal/persistence/log"
	"beltline.ai/internal/sim/world"
)

var errStopScan = errors.New("stop")

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events {ticks|audit}",
		Short: "Print entries from the hourly tick or audit logs",
		Long: `Print entries from the compressed JSONL logs of a world, oldest first.

Examples:
  admin events ticks --since 100 --until 200
  admin events audit --limit 50 --json`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{persistlog.KindTicks, persistlog.KindAudit},
		RunE: func(cmd *cobra.Command, args []string) error {
			since, _ := cmd.Flags().GetUint64("since")
			until, _ := cmd.Flags().GetUint64("until")
			limit, _ := cmd.Flags().GetInt("limit")
			jsonOut, _ := cmd.Flags().GetBool("json")

			kind := args[0]
			dir := filepath.Join(worldDirFromFlags(cmd), kind)
			files, err := persistlog.ListFiles(dir, kind)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			n := 0
			emit := func(tick uint64, line []byte, text string) error {
				if tick < since || (until > 0 && tick > until) {
					return nil
				}
				if jsonOut {
					fmt.Fprintln(out, string(line))
				} else {
					fmt.Fprintln(out, text)
				}
				n++
				if limit > 0 && n >= limit {
					return errStopScan
				}
				return nil
			}

			for _, f := range files {
				err := persistlog.ReadJSONLZstd(f, func(line []byte) error {
					switch kind {
					case persistlog.KindTicks:
						var e world.TickLogEntry
						if err := json.Unmarshal(line, &e); err != nil {
							return fmt.Errorf("%s: %w", f, err)
						}
						return emit(e.Tick, line, formatTick(e))
					default:
						var e world.AuditEntry
						if err := json.Unmarshal(line, &e); err != nil {
							return fmt.Errorf("%s: %w", f, err)
						}
						return emit(e.Tick, line, formatAudit(e))
					}
				})
				if errors.Is(err, errStopScan) {
					return nil
				}
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().Uint64("since", 0, "first tick to print (inclusive)")
	cmd.Flags().Uint64("until", 0, "last tick to print (inclusive, 0 = no limit)")
	cmd.Flags().Int("limit", 0, "maximum entries (0 = no limit)")
	return cmd
}

func formatTick(e world.TickLogEntry) string {
	okCount := 0
	for _, c := range e.Commands {
		if c.OK {
			okCount++
		}
	}
	var value int64
	for _, d := range e.Deliveries {
		value += d.Value
	}
	return fmt.Sprintf("tick=%d commands=%d ok=%d deliveries=%d value=%d digest=%s",
		e.Tick, len(e.Commands), okCount, len(e.Deliveries), value, e.Digest)
}

func formatAudit(e world.AuditEntry) string {
	s := fmt.Sprintf("tick=%d actor=%s action=%s pos=(%d,%d)", e.Tick, e.Actor, e.Action, e.Pos[0], e.Pos[1])
	if e.Kind != "" {
		s += " kind=" + e.Kind
	}
	if e.Value != nil {
		s += fmt.Sprintf(" value=%d", *e.Value)
	}
	if e.Reason != "" {
		s += " reason=" + e.Reason
	}
	return s
}
