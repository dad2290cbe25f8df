package commands

import (
	"fmt"
	"log/slog"
	"os"

	"schulmanager-online/internal/export"
	"schulmanager-online/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

var (
	exportTimetableOut *string
	exportCalendarOut  *string
	exportWeek         *string
)

func init() {
	exportTimetableOut = exportTimetableCmd.Flags().String("out", "timetable.xlsx", "The spreadsheet to write.")
	exportWeek = exportTimetableCmd.Flags().String("week", "", "Any date (YYYY-MM-DD) in the timetable week to export.")
	exportCalendarOut = exportCalendarCmd.Flags().String("out", "schulmanager.ics", "The calendar file to write.")

	exportCmd.AddCommand(exportTimetableCmd)
	exportCmd.AddCommand(exportCalendarCmd)
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Writes scraped data to files.",
}

func requireScraping(a *app) {
	if !a.coordinator.ScrapingEnabled() {
		serviceutil.Fatal("nothing to export", fmt.Errorf("scraping is disabled in the config"))
	}
}

var exportTimetableCmd = &cobra.Command{
	Use:   "timetable [--out <path/to/timetable.xlsx>] [--week <YYYY-MM-DD>]",
	Short: "Scrapes the timetable and writes it as a spreadsheet.",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustNewApp(cmd.Context(), appOptions{timetableStart: *exportWeek, withoutDatabase: true})
		defer a.Close()
		requireScraping(a)

		err := a.coordinator.Refresh(cmd.Context())
		if err != nil {
			serviceutil.Fatal("refresh failed", err)
		}

		f, err := os.Create(*exportTimetableOut)
		if err != nil {
			serviceutil.Fatal("failed to create output", err)
		}
		defer f.Close()

		err = export.WriteTimetable(f, a.coordinator.Store().Latest().Timetable)
		if err != nil {
			serviceutil.Fatal("failed to write timetable", err)
		}
		slog.Info("wrote timetable", "path", *exportTimetableOut)
	},
}

var exportCalendarCmd = &cobra.Command{
	Use:   "calendar [--out <path/to/schulmanager.ics>]",
	Short: "Scrapes homework and exams and writes them as an iCalendar file.",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustNewApp(cmd.Context(), appOptions{withoutDatabase: true})
		defer a.Close()
		requireScraping(a)

		err := a.coordinator.Refresh(cmd.Context())
		if err != nil {
			serviceutil.Fatal("refresh failed", err)
		}

		calendar := export.Calendar(a.coordinator.Store().Latest(), a.clock)
		err = os.WriteFile(*exportCalendarOut, []byte(calendar), 0644)
		if err != nil {
			serviceutil.Fatal("failed to write calendar", err)
		}
		slog.Info("wrote calendar", "path", *exportCalendarOut)
	},
}
