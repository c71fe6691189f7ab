package cmd

import "github.com/spf13/cobra"

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap a boxctl config and encryption key file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		dataDir, _ := cmd.Flags().GetString("data-dir")

		cfg, err := loadConfigFromFlagsOrBootstrap(path, dataDir)
		if err != nil {
			return err
		}
		cmd.Printf("config written to %s\n", path)
		cmd.Printf("encryption key written to %s\n", cfg.Defaults.EncryptionKeyFile)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
