package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"boxdb/pkg/box"
	"boxdb/pkg/boxconfig"
	"boxdb/pkg/boxmetrics"
	"boxdb/pkg/codec"
)

var registry = codec.NewTypeRegistry(nil)

// rootCmd is the base command when boxctl is called without any
// subcommands.
var rootCmd = &cobra.Command{
	Use:   "boxctl",
	Short: "boxdb - an embedded, file-backed key/value store",
	Long: `boxctl operates boxes: named, append-only key/value logs backed
by a single data file each, with optional AES-256 encryption and lazy
value loading.`,
}

// Execute runs the root command. Called once from main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("data-dir", "d", "./data", "Directory boxes live under")
	rootCmd.PersistentFlags().StringP("box", "b", "", "Box name (required)")
	rootCmd.PersistentFlags().Bool("lazy", false, "Open the box in lazy mode (values read from disk on demand)")
	rootCmd.PersistentFlags().String("encryption-key-file", "", "Path to a hex-encoded 32-byte AES key")
}

// openBoxFromFlags opens the box named by --box under --data-dir, with
// the lazy/encryption options every data-mutating subcommand shares.
func openBoxFromFlags(cmd *cobra.Command) (*box.Box, error) {
	return openBoxFromFlagsWithMetrics(cmd, nil)
}

// openBoxFromFlagsWithMetrics is openBoxFromFlags plus instrumentation:
// every Get/Put/Delete/Compact and watcher count on the returned box
// reports against metrics, used by serve-diag to back its /metrics
// endpoint with real operation data instead of just box-size gauges.
func openBoxFromFlagsWithMetrics(cmd *cobra.Command, metrics *boxmetrics.Metrics) (*box.Box, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	name, _ := cmd.Flags().GetString("box")
	lazy, _ := cmd.Flags().GetBool("lazy")
	keyFile, _ := cmd.Flags().GetString("encryption-key-file")

	if name == "" {
		return nil, fmt.Errorf("--box is required")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	opts := box.DefaultOptions()
	opts.Lazy = lazy
	opts.Metrics = metrics
	if keyFile != "" {
		key, err := boxconfig.LoadEncryptionKey(keyFile)
		if err != nil {
			return nil, err
		}
		opts.EncryptionKey = key
	}

	path := filepath.Join(dataDir, name)
	return box.Open(path, name, opts, registry)
}
