package cmd

import "github.com/spf13/cobra"

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rewrite the box's log to drop superseded and deleted entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBoxFromFlags(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		if err := b.Compact(); err != nil {
			return err
		}
		cmd.Println("compaction complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(compactCmd)
}
