package cmd

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

var openCmd = &cobra.Command{
	Use:   "open BUY|SELL",
	Short: "Open a position on a running bot",
	Long: `Queue a manual market order on a running bot via its control endpoint.

The bot applies its configured risk checks and initial stop before sending
the order.

Example:
  mt5bot open BUY --addr localhost:9090`,
	Args: cobra.ExactArgs(1),
	RunE: runOpen,
}

var controlAddr string

func init() {
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(closeAllCmd)
	rootCmd.AddCommand(statusCmd)

	for _, c := range []*cobra.Command{openCmd, closeAllCmd, statusCmd} {
		c.Flags().StringVarP(&controlAddr, "addr", "a", "localhost:9090", "control endpoint address")
	}
}

func runOpen(cmd *cobra.Command, args []string) error {
	side := strings.ToUpper(args[0])
	if side != "BUY" && side != "SELL" {
		return fmt.Errorf("side must be BUY or SELL, got %q", args[0])
	}

	body, err := controlPost("/control/open?side=" + url.QueryEscape(side))
	if err != nil {
		return err
	}
	fmt.Printf("✓ %s order %s", side, body)
	return nil
}

func controlPost(path string) (string, error) {
	resp, err := http.Post("http://"+controlAddr+path, "text/plain", nil)
	if err != nil {
		return "", fmt.Errorf("control request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("control request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}
