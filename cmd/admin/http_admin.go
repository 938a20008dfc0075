package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"beltline.ai/internal/sim/world"
)

func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Fetch /admin/v1/state from a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseURL, _ := cmd.Flags().GetString("url")
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, adminURL(baseURL, "/admin/v1/state"), nil)
			if err != nil {
				return err
			}
			body, err := doAdmin(req, 5*time.Second)
			if len(body) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
			}
			return err
		},
	}
	cmd.Flags().String("url", "http://127.0.0.1:8080", "server base url")
	return cmd
}

func newRequestSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request-snapshot",
		Short: "Ask a running server to write a snapshot at the next tick",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseURL, _ := cmd.Flags().GetString("url")
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, adminURL(baseURL, "/admin/v1/snapshot"), nil)
			if err != nil {
				return err
			}
			body, err := doAdmin(req, 10*time.Second)
			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				if len(body) > 0 {
					fmt.Fprintln(out, string(body))
				}
				return err
			}
			var resp struct {
				OK       bool               `json:"ok"`
				Snapshot world.SnapshotInfo `json:"snapshot"`
				Error    string             `json:"error"`
			}
			if jerr := json.Unmarshal(body, &resp); jerr != nil {
				if err != nil {
					return err
				}
				return fmt.Errorf("decode response: %w", jerr)
			}
			s := resp.Snapshot
			if !resp.OK {
				return fmt.Errorf("snapshot at tick %d not written: %s", s.Tick, resp.Error)
			}
			fmt.Fprintf(out, "snapshot queued tick=%d tiles=%d tokens=%d delivered=%d\n", s.Tick, s.Tiles, s.Tokens, s.Delivered)
			return err
		},
	}
	cmd.Flags().String("url", "http://127.0.0.1:8080", "server base url")
	return cmd
}

func adminURL(base, path string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + path
}

// doAdmin returns the trimmed response body. A non-2xx status is an error
// but the body is still returned.
func doAdmin(req *http.Request, timeout time.Duration) ([]byte, error) {
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	b = bytes.TrimSpace(b)
	if resp.StatusCode/100 != 2 {
		return b, fmt.Errorf("%s %s: %s", req.Method, req.URL.Path, resp.Status)
	}
	return b, nil
}
