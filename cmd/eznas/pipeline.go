package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ereinha3/eznas/pkg/config"
	"github.com/ereinha3/eznas/pkg/metrics"
	"github.com/ereinha3/eznas/pkg/pipeline"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run the media post-processing worker",
	Long: `Run the pipeline worker loop: poll qBittorrent for completed
downloads, remux them per the media policy and file the results into
the library. Runs until interrupted.`,
	RunE: runPipeline,
}

func init() {
	pipelineCmd.Flags().Duration("interval", 0,
		"pause between polling passes (default: $PIPELINE_INTERVAL seconds, or 60s)")
	pipelineCmd.Flags().String("metrics-addr", "",
		"listen address for /metrics and /healthz (disabled when empty)")

	rootCmd.AddCommand(pipelineCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	interval, _ := cmd.Flags().GetDuration("interval")
	if interval <= 0 {
		interval = config.PipelineInterval()
	}
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/healthz", metrics.HealthHandler())
		mux.HandleFunc("/livez", metrics.LivenessHandler())
		server := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Printf("metrics server error: %v\n", err)
			}
		}()
		defer server.Close()
	}

	worker := pipeline.New(openStore(false), nil)
	if err := worker.Run(ctx, interval); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
