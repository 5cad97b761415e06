package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/glockyhere/mt5bot/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query trade journal data",
	Long: `Query and display trade journal records from the SQLite database.

Subcommands:
  trade  - Get details of a specific trade by record id
  today  - List trades closed today
  day    - List trades closed on a specific day

Examples:
  mt5bot journal trade <record-id>
  mt5bot journal today
  mt5bot journal day 2026-08-29`,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <record-id>",
	Short: "Get details of a specific trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List trades closed today",
	Args:  cobra.NoArgs,
	RunE:  runJournalToday,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades closed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalDBPath string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalTodayCmd)
	journalCmd.AddCommand(journalDayCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./mt5bot.sqlite", "path to SQLite journal DB")
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	rec, err := j.GetTrade(args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}

	fmt.Printf("Trade %s\n", rec.RecordID)
	fmt.Printf("  Session:  %s\n", rec.Session)
	fmt.Printf("  Ticket:   #%d\n", rec.Ticket)
	fmt.Printf("  %s %s %.2f @ %.5f\n", rec.Side, rec.Symbol, rec.Volume, rec.OpenPrice)
	fmt.Printf("  Profit:   $%+.2f\n", rec.Profit)
	fmt.Printf("  Hedged:   %v\n", rec.Hedged)
	fmt.Printf("  Closed:   %s\n", rec.ClosedAt.Format(time.RFC3339))
	if rec.Comment != "" {
		fmt.Printf("  Comment:  %s\n", rec.Comment)
	}
	return nil
}

func runJournalToday(cmd *cobra.Command, args []string) error {
	return listDay(time.Now().Format("2006-01-02"))
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	if _, err := time.Parse("2006-01-02", args[0]); err != nil {
		return fmt.Errorf("invalid date %q, want YYYY-MM-DD", args[0])
	}
	return listDay(args[0])
}

func listDay(day string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	trades, err := j.TradesOn(day)
	if err != nil {
		return fmt.Errorf("list trades: %w", err)
	}

	if len(trades) == 0 {
		fmt.Printf("No trades closed on %s\n", day)
		return nil
	}

	var total float64
	fmt.Printf("Trades closed on %s:\n", day)
	for _, t := range trades {
		total += t.Profit
		fmt.Printf("  #%-8d %-4s %.2f @ %.5f  $%+.2f  %s\n",
			t.Ticket, t.Side, t.Volume, t.OpenPrice, t.Profit, t.RecordID)
	}
	fmt.Printf("\n%d trades, total $%+.2f\n", len(trades), total)
	return nil
}
