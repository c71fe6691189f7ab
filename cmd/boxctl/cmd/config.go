package cmd

import (
	"github.com/spf13/cobra"

	"boxdb/pkg/boxconfig"
)

func init() {
	rootCmd.PersistentFlags().String("config", boxconfig.DefaultPath(), "Path to the boxctl config file")
}

// loadConfigFromFlags loads the config named by --config, falling back
// to an in-memory default (not persisted) if the file does not exist
// yet, so catalog commands work before 'boxctl init' has run.
func loadConfigFromFlags(cmd *cobra.Command) (*boxconfig.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if !boxconfig.Exists(path) {
		cfg := boxconfig.DefaultConfig()
		if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
			cfg.DataDir = dataDir
			cfg.Catalog = dataDir + "/catalog"
		}
		return cfg, nil
	}
	return boxconfig.Load(path)
}

// loadConfigFromFlagsOrBootstrap is used by 'boxctl init': it always
// writes a fresh config and key file to path, overwriting whatever was
// there before.
func loadConfigFromFlagsOrBootstrap(path, dataDir string) (*boxconfig.Config, error) {
	return boxconfig.Bootstrap(path, dataDir)
}
