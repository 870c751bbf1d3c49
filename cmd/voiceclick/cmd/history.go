package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"voiceclick/internal/domain"
	"voiceclick/internal/history"
)

var (
	historyLimit int
	historyClear bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List or clear saved transcriptions",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of entries to show (0 for all)")
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "delete every saved transcription")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("config", err)
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	if cfg.History.Dir == "" {
		return fmt.Errorf("history is disabled (history.dir is empty)")
	}

	store, err := history.Open(history.Options{Path: cfg.History.Dir, MaxEntries: cfg.History.MaxEntries, Logger: logger})
	if err != nil {
		printError("history", err)
		return err
	}
	defer store.Close()

	ctx := context.Background()
	if historyClear {
		if err := store.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
		return nil
	}

	records, err := store.Recent(ctx, historyLimit)
	if err != nil {
		return err
	}
	printHistory(cmd.OutOrStdout(), records)
	return nil
}

func printHistory(w io.Writer, records []domain.HistoryRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No transcriptions yet.")
		return
	}
	for _, record := range records {
		app := record.Application
		if app == "" {
			app = "-"
		}
		marker := " "
		if !record.Inserted {
			marker = "!"
		}
		fmt.Fprintf(w, "%s %s  %-16s %5.1fs  %s\n",
			marker,
			record.CreatedAt.Local().Format(time.DateTime),
			app,
			record.DurationSeconds,
			strings.ReplaceAll(record.Text, "\n", " "),
		)
	}
}
