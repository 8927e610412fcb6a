// Command netra runs the blink-driven selection service.
//
// Usage:
//
//	netra [serve] [flags]   run the HTTP/websocket service (default)
//	netra table [--mode m]  print the active letter table
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "netra",
	Short:         "Blink-driven letter selection with a motorized color wheel",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "config file (default ./netra.yaml when present)")
	pf.String("log-level", "info", "debug, info, warn or error")
	pf.String("log-format", "json", "json or console")
	pf.String("mode", "letter", "communication mode: letter, number or keyword")
	pf.String("table-file", "", "YAML file overriding the built-in letter tables")

	addServeFlags(rootCmd)
	rootCmd.AddCommand(serveCmd, tableCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
