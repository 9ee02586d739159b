package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pyhu26/post-woman/internal/format"
)

func init() {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "View request history",
		Long: `View requests sent by single commands and by chain and workflow runs.

Sensitive headers are redacted before they are stored.`,
		Run: runHistoryList,
	}

	historyCmd.Flags().IntP("limit", "n", 10, "Number of requests to show")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent requests",
		Run:   runHistoryList,
	}
	listCmd.Flags().IntP("limit", "n", 10, "Number of requests to show")

	showCmd := &cobra.Command{
		Use:   "show <id or index>",
		Short: "Show full details of a request",
		Args:  cobra.ExactArgs(1),
		Run:   runHistoryShow,
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear all history",
		Run:   runHistoryClear,
	}

	historyCmd.AddCommand(listCmd, showCmd, clearCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistoryList(cmd *cobra.Command, args []string) {
	history, err := openStore().LoadHistory(0)
	if err != nil {
		fatal("Failed to load history", err)
	}

	limit, _ := cmd.Flags().GetInt("limit")
	format.PrintHistoryList(history.Entries, limit)
}

func runHistoryShow(cmd *cobra.Command, args []string) {
	store := openStore()
	identifier := args[0]

	// Try to parse as index first (1-based)
	if index, err := strconv.Atoi(identifier); err == nil && index > 0 {
		history, err := store.LoadHistory(index)
		if err != nil {
			fatal("Failed to load history", err)
		}
		if index <= len(history.Entries) {
			format.PrintHistoryDetail(&history.Entries[index-1])
			return
		}
	}

	entry, err := store.GetHistoryEntry(identifier)
	if err != nil {
		fatal("Failed to load history", err)
	}
	if entry == nil {
		fatal(fmt.Sprintf("Request not found: %s", identifier), nil)
	}
	format.PrintHistoryDetail(entry)
}

func runHistoryClear(cmd *cobra.Command, args []string) {
	if err := openStore().ClearHistory(); err != nil {
		fatal("Failed to clear history", err)
	}

	format.PrintSuccess("History cleared")
}
