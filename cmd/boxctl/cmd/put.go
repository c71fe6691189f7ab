package cmd

import (
	"strconv"

	"github.com/spf13/cobra"
)

var putCmd = &cobra.Command{
	Use:   "put <key> <value>",
	Short: "Store a value under key, auto-generating a key if key is \"-\"",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBoxFromFlags(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		asInt, _ := cmd.Flags().GetBool("int")

		var key any
		if args[0] != "-" {
			key = args[0]
		}

		var value any = args[1]
		if asInt {
			n, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return err
			}
			value = n
		}

		used, err := b.Put(key, value)
		if err != nil {
			return err
		}
		cmd.Printf("%v\n", used)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(putCmd)
	putCmd.Flags().Bool("int", false, "Parse value as an integer instead of a string")
}
