package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DoyleJ11/netra-vaani/internal/letters"
)

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "Print the letter table for a mode",
	Long: `Print the color groups and positions of the active table.

Examples:
  netra table
  netra table --mode keyword --table-file tables.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup(cmd)
		if err != nil {
			return err
		}
		tables, err := cfg.Tables()
		if err != nil {
			return err
		}
		mode, err := letters.ParseMode(cfg.Mode)
		if err != nil {
			return err
		}
		t := tables.Table(mode)
		fmt.Fprintf(cmd.OutOrStdout(), "mode %s: %d groups x %d positions\n", mode, t.Groups(), t.Positions())
		fmt.Fprint(cmd.OutOrStdout(), t.String())
		return nil
	},
}
