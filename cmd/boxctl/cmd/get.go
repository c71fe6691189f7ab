package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the value stored under key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBoxFromFlags(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		value, ok, err := b.Get(args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("key %q not found", args[0])
		}
		cmd.Printf("%v\n", value)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
