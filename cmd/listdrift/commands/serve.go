package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/leoncowle/mastodon-misc/internal/chrono"
	"github.com/leoncowle/mastodon-misc/internal/components/telemetry"
	"github.com/leoncowle/mastodon-misc/internal/server"
	"github.com/leoncowle/mastodon-misc/lib/serviceutil"
	libtelemetry "github.com/leoncowle/mastodon-misc/lib/telemetry"

	"github.com/spf13/cobra"
)

var (
	port     *int
	schedule *string
)

func init() {
	port = serveCmd.Flags().Int("port", 0, "The port to listen on, defaults to serve.port in the config.")
	schedule = serveCmd.Flags().String("schedule", "", "A cron spec for compare runs, defaults to serve.schedule in the config.")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve [--port <port>] [--schedule <cron spec>]",
	Short: "Serves /savecurrent and /check over HTTP, optionally checking on a schedule.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := mustLoadConfig(cmd)
		if *port > 0 {
			cfg.Serve.Port = *port
		}
		if *schedule != "" {
			cfg.Serve.Schedule = *schedule
		}

		otel, err := libtelemetry.SetupFromEnv(ctx, "listdrift")
		if err != nil {
			serviceutil.Fatal("setup telemetry", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := otel.Shutdown(shutdownCtx)
			if err != nil {
				slog.Warn("shutdown telemetry", "err", err)
			}
		}()
		libtelemetry.InstrumentPerfStats(ctx, time.Minute)

		tel := telemetry.NewSlogAPI(slog.Default())
		a, err := buildApp(ctx, cfg, tel, cmd.OutOrStdout())
		if err != nil {
			serviceutil.Fatal("init", err)
		}
		defer a.Close()

		srv := server.NewServer(a.runner, server.Options{
			Compare: cfg.runOptions(false, *notifyFlag),
		}, tel)

		if cfg.Serve.Schedule != "" {
			cron := chrono.NewStandardCron(tel, nil)
			defer cron.Stop()
			err = srv.Schedule(ctx, cron, cfg.Serve.Schedule)
			if err != nil {
				serviceutil.Fatal("schedule checks", err)
			}
			slog.Info("scheduled checks", "schedule", cfg.Serve.Schedule)
		}

		err = srv.Serve(ctx, cfg.Serve.Port)
		if err != nil {
			serviceutil.Fatal("serve", err)
		}
	},
}
