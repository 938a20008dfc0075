package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"beltline.ai/internal/persistence/indexdb"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db {snapshots|ticks|deliveries}",
		Short: "Query the sqlite index of a world",
		Long: `Query the sqlite index written by the server. Rows are newest first.

Examples:
  admin db snapshots --world line_1
  admin db ticks --limit 5 --json
  admin db deliveries --db ./data/worlds/line_1/index/world.sqlite`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"snapshots", "ticks", "deliveries"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, _ := cmd.Flags().GetString("db")
			limit, _ := cmd.Flags().GetInt("limit")
			jsonOut, _ := cmd.Flags().GetBool("json")

			path := strings.TrimSpace(dbPath)
			if path == "" {
				path = filepath.Join(worldDirFromFlags(cmd), "index", "world.sqlite")
			}
			r, err := indexdb.OpenReader(path)
			if err != nil {
				return err
			}
			defer r.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			switch args[0] {
			case "snapshots":
				rows, err := r.Snapshots(ctx, limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(out, rows)
				}
				for _, row := range rows {
					fmt.Fprintf(out, "tick=%d tiles=%d tokens=%d token_sum=%d delivered=%d path=%s\n",
						row.Tick, row.Tiles, row.Tokens, row.TokenSum, row.Delivered, row.Path)
				}
			case "ticks":
				rows, err := r.Ticks(ctx, limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(out, rows)
				}
				for _, row := range rows {
					fmt.Fprintf(out, "tick=%d commands=%d deliveries=%d digest=%s\n",
						row.Tick, row.Commands, row.Deliveries, row.Digest)
				}
			case "deliveries":
				rows, err := r.Deliveries(ctx, limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(out, rows)
				}
				for _, row := range rows {
					fmt.Fprintf(out, "tick=%d seq=%d pos=(%d,%d) value=%d\n",
						row.Tick, row.Seq, row.Pos[0], row.Pos[1], row.Value)
				}
			}
			return nil
		},
	}
	cmd.Flags().String("db", "", "sqlite db path (default: <data>/worlds/<world>/index/world.sqlite)")
	cmd.Flags().Int("limit", 20, "result limit")
	return cmd
}
