package commands

import (
	"fmt"
	"time"

	"schulmanager-online/lib/util/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var historyCount *int

func init() {
	historyCount = historyCmd.Flags().IntP("count", "n", 20, "How many refreshes to show.")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [-n <count>]",
	Short: "Prints the most recent refreshes recorded in the database.",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustNewApp(cmd.Context(), appOptions{})
		defer a.Close()
		if a.refreshLog == nil {
			serviceutil.Fatal("no refresh log", fmt.Errorf("no database is configured"))
		}

		entries, err := a.refreshLog.Recent(cmd.Context(), *historyCount)
		if err != nil {
			serviceutil.Fatal("failed to read refresh log", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Started", "Duration", "Success", "Letters", "Unread", "Homework", "Exams", "Error"})
		for _, e := range entries {
			success := "yes"
			if !e.Success {
				success = "no"
			} else if e.ScraperFailed {
				success = "api only"
			}
			t.AppendRow(table.Row{
				e.StartedAt.In(a.clock.Location()).Format(time.DateTime),
				e.Duration.Round(time.Millisecond),
				success,
				e.Letters,
				e.Unread,
				e.Homework,
				e.Exams,
				e.Error,
			})
		}
		t.Render()
	},
}
