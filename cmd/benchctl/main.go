package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "benchctl",
		Short:         "Drive a DetectBench server from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
		Long: `benchctl talks to the DetectBench HTTP API: it creates rooms,
starts benchmark windows, uploads client reports and prints live stats.`,
	}
	root.PersistentFlags().String("server", "http://localhost:8000", "DetectBench base URL")
	root.PersistentFlags().Duration("timeout", 10*time.Second, "request timeout")

	root.AddCommand(newHealthCmd(), newRoomCmd(), newBenchCmd(), newStatsCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
