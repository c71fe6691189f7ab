package cmd

import "github.com/spf13/cobra"

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print key count and compaction statistics for a box",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBoxFromFlags(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		s := b.Stats()
		cmd.Printf("keys: %d\nsize_bytes: %d\ncompactions: %d\nbytes_reclaimed: %d\n", s.LiveKeys, s.SizeBytes, s.Compactions, s.BytesReclaimed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
