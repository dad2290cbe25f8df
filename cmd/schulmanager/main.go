package main

import (
	"context"
	"log/slog"

	"schulmanager-online/cmd/schulmanager/commands"
	"schulmanager-online/internal/components/telemetry"
	"schulmanager-online/lib/util/serviceutil"
)

func main() {
	ctx := serviceutil.SignalContext(context.Background())

	tel, err := telemetry.SetupFromEnv(ctx, "schulmanager")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer func() {
		err := tel.Shutdown(context.WithoutCancel(ctx))
		if err != nil {
			slog.Warn("telemetry shutdown", "err", err.Error())
		}
	}()

	commands.ExecuteContext(ctx)
}
