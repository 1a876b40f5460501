package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the server is up",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return simpleGet(cmd, "/api/health")
		},
	}
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print live latency and bandwidth figures",
		RunE:  runStats,
	}
	cmd.Flags().Duration("watch", 0, "repeat every interval until interrupted")
	return cmd
}

func runStats(cmd *cobra.Command, _ []string) error {
	every, err := cmd.Flags().GetDuration("watch")
	if err != nil {
		return err
	}
	if every <= 0 {
		return simpleGet(cmd, "/api/stats")
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		if err := simpleGet(cmd, "/api/stats"); err != nil {
			return err
		}
		select {
		case <-cmd.Context().Done():
			return nil
		case <-t.C:
		}
	}
}

func newRoomCmd() *cobra.Command {
	room := &cobra.Command{Use: "room", Short: "Manage rooms"}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a room and print its join links",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := cmd.Flags().GetString("id")
			if err != nil {
				return err
			}
			c, err := clientFrom(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			body := map[string]string{}
			if id != "" {
				body["roomId"] = id
			}
			raw, err := c.postJSON(ctx, "/api/room", body)
			if err != nil {
				return err
			}
			return printRoom(cmd, raw)
		},
	}
	create.Flags().String("id", "", "requested room id (truncated to 8 characters)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List rooms and their members",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return simpleGet(cmd, "/api/rooms")
		},
	}

	room.AddCommand(create, list)
	return room
}

// printRoom prints the links and leaves the QR data URL out.
func printRoom(cmd *cobra.Command, raw json.RawMessage) error {
	var links struct {
		RoomID    string `json:"roomId"`
		ViewerURL string `json:"viewerUrl"`
		PhoneURL  string `json:"phoneUrl"`
		Mode      string `json:"mode"`
	}
	if err := json.Unmarshal(raw, &links); err != nil {
		return fmt.Errorf("decode room: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "room:   %s\n", links.RoomID)
	fmt.Fprintf(out, "viewer: %s\n", links.ViewerURL)
	fmt.Fprintf(out, "phone:  %s\n", links.PhoneURL)
	fmt.Fprintf(out, "mode:   %s\n", links.Mode)
	return nil
}

func newBenchCmd() *cobra.Command {
	b := &cobra.Command{Use: "bench", Short: "Run benchmark windows"}

	start := &cobra.Command{
		Use:   "start",
		Short: "Start a benchmark window on every connected client",
		RunE:  runBenchStart,
	}
	start.Flags().Float64("duration", 30, "window length in seconds")
	start.Flags().String("mode", "", "inference mode tag (defaults to the server mode)")
	start.Flags().Bool("wait", false, "block until the window closes and print the server report")

	finish := &cobra.Command{
		Use:   "finish <report.json>",
		Short: "Upload a client report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			c, err := clientFrom(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			raw, err := c.call(ctx, http.MethodPost, "/api/bench/finish", doc)
			if err != nil {
				return err
			}
			return printJSON(cmd, raw)
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the benchmark state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return simpleGet(cmd, "/api/bench/status")
		},
	}

	b.AddCommand(start, finish, status)
	return b
}

func runBenchStart(cmd *cobra.Command, _ []string) error {
	duration, err := cmd.Flags().GetFloat64("duration")
	if err != nil {
		return err
	}
	mode, err := cmd.Flags().GetString("mode")
	if err != nil {
		return err
	}
	wait, err := cmd.Flags().GetBool("wait")
	if err != nil {
		return err
	}
	c, err := clientFrom(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(cmd)
	defer cancel()
	raw, err := c.postJSON(ctx, "/api/bench/start", map[string]any{"duration": duration, "mode": mode})
	if err != nil {
		return err
	}
	if err := printJSON(cmd, raw); err != nil {
		return err
	}
	if !wait {
		return nil
	}
	return waitForReport(cmd, c, time.Duration(duration*float64(time.Second)))
}

type benchStatus struct {
	Active     bool            `json:"active"`
	LastReport json.RawMessage `json:"last_report,omitempty"`
}

func waitForReport(cmd *cobra.Command, c *apiClient, d time.Duration) error {
	deadline := time.Now().Add(d + 10*time.Second)
	for time.Now().Before(deadline) {
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-time.After(500 * time.Millisecond):
		}
		ctx, cancel := requestContext(cmd)
		raw, err := c.call(ctx, http.MethodGet, "/api/bench/status", nil)
		cancel()
		if err != nil {
			return err
		}
		var st benchStatus
		if err := json.Unmarshal(raw, &st); err != nil {
			return err
		}
		if !st.Active && len(st.LastReport) > 0 {
			return printJSON(cmd, st.LastReport)
		}
	}
	return fmt.Errorf("benchmark did not finish within %s", d+10*time.Second)
}

func simpleGet(cmd *cobra.Command, path string) error {
	c, err := clientFrom(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(cmd)
	defer cancel()
	raw, err := c.call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return printJSON(cmd, raw)
}
