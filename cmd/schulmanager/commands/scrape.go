package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"schulmanager-online/internal/sensor"
	"schulmanager-online/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

var (
	scrapeJSON *bool
	scrapeWeek *string
	scrapeDump *string
)

func init() {
	scrapeJSON = scrapeCmd.Flags().Bool("json", false, "Prints the raw snapshot as JSON.")
	scrapeWeek = scrapeCmd.Flags().String("week", "", "Any date (YYYY-MM-DD) in the timetable week to scrape.")
	scrapeDump = scrapeCmd.Flags().String("dump", "", "A directory to write every http exchange and scraped page to.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--json] [--week <YYYY-MM-DD>] [--dump <dir>]",
	Short: "Runs a single refresh and prints the result.",
	Run: func(cmd *cobra.Command, args []string) {
		if *scrapeWeek != "" {
			_, err := time.Parse(time.DateOnly, *scrapeWeek)
			if err != nil {
				serviceutil.Fatal("invalid --week", err)
			}
		}

		a := mustNewApp(cmd.Context(), appOptions{timetableStart: *scrapeWeek, dumpDir: *scrapeDump})
		defer a.Close()

		err := a.coordinator.Refresh(cmd.Context())
		if err != nil {
			serviceutil.Fatal("refresh failed", err)
		}
		snap := a.coordinator.Store().Latest()

		if *scrapeJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			err = encoder.Encode(snap)
			if err != nil {
				serviceutil.Fatal("failed to encode snapshot", err)
			}
			return
		}

		renderSensors(sensor.All(a.coordinator, a.clock))
		renderLetters(snap.Letters)
		if !a.coordinator.ScrapingEnabled() {
			return
		}
		renderHomework(snap.Homework)
		renderExams(snap.Exams)
		if len(snap.Timetable) == 0 {
			fmt.Println("timetable could not be read")
			return
		}
		renderTimetable(snap.Timetable)
	},
}
