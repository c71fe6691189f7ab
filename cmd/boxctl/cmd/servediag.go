package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"boxdb/pkg/box"
	"boxdb/pkg/boxmetrics"
)

// serveDiagCmd runs a read-only diagnostics HTTP server for a single
// box: Prometheus metrics and a JSON dump of its statistics. It never
// exposes key/value reads or writes over the network — that surface is
// explicitly out of scope for this module.
var serveDiagCmd = &cobra.Command{
	Use:   "serve-diag",
	Short: "Serve Prometheus metrics and a stats endpoint for a box",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		metrics := boxmetrics.NewMetrics()

		b, err := openBoxFromFlagsWithMetrics(cmd, metrics)
		if err != nil {
			return err
		}
		defer b.Close()

		port, _ := cmd.Flags().GetInt("port")
		boxName, _ := cmd.Flags().GetString("box")

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET"},
		}))

		r.Handle("/metrics", promhttp.Handler())
		r.Get("/explain", explainHandler(b, boxName, metrics))

		go reportStatsLoop(b, boxName, metrics, cmd.Context().Done())

		addr := fmt.Sprintf(":%d", port)
		cmd.Printf("diagnostics server listening on %s\n", addr)
		return http.ListenAndServe(addr, r)
	},
}

func explainHandler(b *box.Box, boxName string, metrics *boxmetrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := b.Stats()
		metrics.UpdateBoxStats(boxName, stats.LiveKeys, stats.SizeBytes)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"box":              boxName,
			"live_keys":        stats.LiveKeys,
			"deleted_pending":  stats.DeletedPending,
			"size_bytes":       stats.SizeBytes,
			"compactions":      stats.Compactions,
			"bytes_reclaimed":  stats.BytesReclaimed,
			"frames_discarded": stats.FramesDiscarded,
		})
	}
}

func reportStatsLoop(b *box.Box, boxName string, metrics *boxmetrics.Metrics, done <-chan struct{}) {
	handle, err := b.Watch(nil)
	if err != nil {
		log.Printf("boxdb: stats loop for %s not started: %v", boxName, err)
		return
	}
	defer handle.Close()
	for {
		select {
		case _, ok := <-handle.Events():
			if !ok {
				return
			}
			stats := b.Stats()
			metrics.UpdateBoxStats(boxName, stats.LiveKeys, stats.SizeBytes)
		case <-done:
			return
		}
	}
}

func init() {
	rootCmd.AddCommand(serveDiagCmd)
	serveDiagCmd.Flags().IntP("port", "p", 9200, "Port to listen on")
}
