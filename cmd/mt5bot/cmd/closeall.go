package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var closeAllCmd = &cobra.Command{
	Use:   "close-all",
	Short: "Close every open position on a running bot",
	Long: `Queue a close of every position the bot manages, via its control endpoint.

Example:
  mt5bot close-all --addr localhost:9090`,
	Args: cobra.NoArgs,
	RunE: runCloseAll,
}

func runCloseAll(cmd *cobra.Command, args []string) error {
	body, err := controlPost("/control/close-all")
	if err != nil {
		return err
	}
	fmt.Printf("✓ close-all %s", body)
	return nil
}
