// Command assistant is the terminal front end: it manages the saved
// portal list, browses portal content, and mirrors items into a local
// directory where edits are pushed back after confirmation.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/green3g/vscode-arcgis-assistant/internal/config"
	"github.com/green3g/vscode-arcgis-assistant/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		return err
	}
	defer logging.Sync()

	root := &cobra.Command{
		Use:           "assistant",
		Short:         "Browse and edit ArcGIS portal items from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newPortalCmd(cfg),
		newTreeCmd(cfg),
		newOpenCmd(cfg),
		newWatchCmd(cfg),
		newDeleteCmd(cfg),
		newItemCmd(cfg),
	)
	return root.Execute()
}
