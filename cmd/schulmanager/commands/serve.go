package commands

import (
	"context"
	"log/slog"
	"time"

	"schulmanager-online/internal/components/chrono"
	"schulmanager-online/internal/components/telemetry"
	"schulmanager-online/internal/notify"
	"schulmanager-online/internal/service"
	"schulmanager-online/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

const (
	pruneInterval   = 24 * time.Hour
	refreshLogKeep  = 2000
	shutdownTimeout = 15 * time.Second
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve [--config <path/to/config.json5>]",
	Short: "Refreshes on a schedule and serves the sensors over HTTP.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := mustNewApp(ctx, appOptions{})
		defer a.Close()

		telemetry.InstrumentPerfStats(ctx)

		if a.cfg.Notify.Enabled() {
			sender := notify.NewMailSender(notify.SmtpConfig{
				Server:       a.cfg.Notify.Server,
				Port:         a.cfg.Notify.Port,
				EmailAddress: a.cfg.Notify.EmailAddress,
				Password:     a.cfg.Notify.Password,
			}, a.cfg.Notify.To)
			notifier := notify.NewLetterNotifier(a.coordinator.Store(), sender, telemetry.SlogAPI{})
			a.coordinator.OnRefresh(notifier.OnRefresh)
		}

		err := a.coordinator.FirstRefresh(ctx)
		if err != nil {
			serviceutil.Fatal("failed to fetch initial data", err)
		}
		slog.Info(
			"initial refresh done",
			"scraping", a.coordinator.ScrapingEnabled(),
			"interval", a.coordinator.Interval(),
		)

		cron := chrono.NewStandardCron(a.clock.Location(), telemetry.SlogAPI{})
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			cron.Stop(stopCtx)
		}()

		err = a.coordinator.Start(ctx, cron)
		if err != nil {
			serviceutil.Fatal("failed to schedule refresh", err)
		}
		if a.refreshLog != nil {
			err = cron.Every(pruneInterval, func() {
				pruned, err := a.refreshLog.Prune(ctx, refreshLogKeep)
				if err != nil {
					slog.Warn("failed to prune refresh log", "err", err.Error())
					return
				}
				slog.Debug("pruned refresh log", "rows", pruned)
			})
			if err != nil {
				serviceutil.Fatal("failed to schedule refresh log pruning", err)
			}
		}

		otelInterceptor, err := serviceutil.NewConnectOtelInterceptor()
		if err != nil {
			serviceutil.Fatal("failed to setup connect interceptor", err)
		}
		svc := service.NewService(
			a.coordinator,
			a.clock,
			service.WithAccessToken(a.cfg.Listen.AccessToken),
			service.WithInterceptors(otelInterceptor),
		)

		err = serviceutil.StartHttpServer(ctx, a.cfg.Listen.Port, svc.Handler())
		if err != nil {
			serviceutil.Fatal("http server stopped", err)
		}
	},
}
