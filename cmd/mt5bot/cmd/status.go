package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/glockyhere/mt5bot/engine"
	"github.com/glockyhere/mt5bot/risk"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running bot",
	Long: `Fetch and display the current position summary and daily statistics
from a running bot's control endpoint.

Example:
  mt5bot status --addr localhost:9090`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	resp, err := http.Get("http://" + controlAddr + "/status")
	if err != nil {
		return fmt.Errorf("status request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status request failed: %s", resp.Status)
	}

	var st struct {
		Session string          `json:"session"`
		Summary engine.Summary  `json:"summary"`
		Daily   risk.DailyStats `json:"daily"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}

	fmt.Printf("Session: %s\n", st.Session)
	fmt.Printf("Open positions: %d (P/L $%.2f, %d winning / %d losing, %d hedged)\n",
		st.Summary.OpenCount, st.Summary.TotalProfit,
		st.Summary.WinningCount, st.Summary.LosingCount, st.Summary.HedgedCount)

	for _, p := range st.Summary.Positions {
		fmt.Printf("  #%d %s %.2f @ %.5f  SL %.5f  $%+.2f\n",
			p.Ticket, p.Side, p.Volume, p.OpenPrice, p.StopLoss, p.Profit)
	}

	fmt.Printf("\nToday (%s): %d trades, win rate %.1f%%, realized $%.2f\n",
		st.Daily.Date, st.Daily.TotalTrades, st.Daily.WinRate*100, st.Daily.TotalProfit)
	return nil
}
