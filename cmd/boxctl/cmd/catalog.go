package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"boxdb/internal/wiring"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the local registry of known boxes",
}

var catalogRegisterCmd = &cobra.Command{
	Use:   "register <name>",
	Short: "Register a box in the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigFromFlags(cmd)
		if err != nil {
			return err
		}
		c, err := wiring.New(cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		dataDir, _ := cmd.Flags().GetString("data-dir")
		lazy, _ := cmd.Flags().GetBool("lazy")
		keyFile, _ := cmd.Flags().GetString("encryption-key-file")

		id, err := c.Catalog().Register(args[0], dataDir, lazy, keyFile != "", time.Now().Unix())
		if err != nil {
			return err
		}
		cmd.Printf("registered %s as %s\n", args[0], id)
		return nil
	},
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every registered box",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigFromFlags(cmd)
		if err != nil {
			return err
		}
		c, err := wiring.New(cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		entries, err := c.Catalog().List()
		if err != nil {
			return err
		}
		for _, e := range entries {
			cmd.Printf("%s\t%s\t%s\n", e.ID, e.Name, e.Path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogRegisterCmd, catalogListCmd)
}
