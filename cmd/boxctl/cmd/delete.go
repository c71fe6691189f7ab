package cmd

import "github.com/spf13/cobra"

var deleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a key; a no-op if the key is not present",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBoxFromFlags(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		removed, err := b.Delete(args[0])
		if err != nil {
			return err
		}
		if removed {
			cmd.Println("deleted")
		} else {
			cmd.Println("not found")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
