package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"schulmanager-online/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

const checkTimeout = 2 * time.Minute

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check [--config <path/to/config.json5>]",
	Short: "Validates the token and, when scraping is enabled, the login credentials.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
		defer cancel()

		a, err := newApp(ctx, mustReadConfig(), appOptions{withoutDatabase: true})
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		defer a.Close()

		failed := false

		_, err = a.client.Letters(ctx)
		outcome := classifyAPI(err)
		if err != nil {
			slog.Debug("api check failed", "err", err.Error())
		}
		fmt.Printf("api: %s\n", outcome)
		failed = failed || outcome != checkOK

		if a.scraper != nil {
			err = a.scraper.CheckLogin(ctx)
			outcome = classifyScraper(err)
			if err != nil {
				slog.Debug("scraper check failed", "err", err.Error())
			}
			fmt.Printf("scraper: %s\n", outcome)
			failed = failed || outcome != checkOK
		}

		if failed {
			serviceutil.Fatal("check failed", fmt.Errorf("at least one source is not usable"))
		}
	},
}
