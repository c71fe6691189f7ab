package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [key]",
	Short: "Stream change events for a box, or for a single key if given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBoxFromFlags(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		var key any
		if len(args) == 1 {
			key = args[0]
		}

		handle, err := b.Watch(key)
		if err != nil {
			return err
		}
		defer handle.Close()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		for {
			select {
			case event, ok := <-handle.Events():
				if !ok {
					return nil
				}
				if event.Deleted {
					cmd.Printf("delete %v\n", event.Key)
				} else {
					cmd.Printf("put %v = %v\n", event.Key, event.Value)
				}
			case <-sigCh:
				return nil
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
