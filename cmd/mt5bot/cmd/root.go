package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mt5bot",
	Short: "An FX trading bot with risk guards, trailing stops and hedging",
	Long: `mt5bot is an automated FX trading bot written in Go.

It provides:
  - Indicator-driven entries (MA crossover, RSI, Bollinger, MACD)
  - Risk-based position sizing and exposure limits
  - Dollar-ladder, step and breakeven trailing-stop policies
  - Loss-triggered counter-position hedging
  - Trade and equity journaling to CSV or SQLite
  - A control endpoint for opening and closing positions while running`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
