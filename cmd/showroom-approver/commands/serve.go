package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"showroom-approver/internal/approver"
	"showroom-approver/internal/components/telemetry"
	"showroom-approver/internal/controlapi"
	"time"

	"github.com/spf13/cobra"
)

var serveListen *string

func init() {
	serveListen = serveCmd.Flags().String("listen", "", "The address of the control api, defaults to listen of the config.")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve [--listen <addr>]",
	Short: "Serves the control api used by the dashboard.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, err := newService(
			ctx,
			approver.WithCycleReports(func(report approver.PollCycleReport) {
				slog.Info(
					"poll cycle",
					"cycle_id", report.CycleId.String(),
					"pending", report.Pending,
					"attempted", report.Attempted,
					"succeeded", report.Succeeded,
					"elapsed", report.Elapsed.String(),
				)
			}),
			approver.WithStopHandler(func(err error) {
				if err != nil {
					slog.Error("polling stopped", "err", err)
				}
			}),
		)
		if err != nil {
			return err
		}

		addr := *serveListen
		if addr == "" {
			addr = svc.Config().Listen
		}
		server := &http.Server{
			Addr:              addr,
			Handler:           controlapi.NewServer(ctx, svc, telemetry.NewSlogAPI(nil)).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errs := make(chan error, 1)
		go func() {
			errs <- server.ListenAndServe()
		}()
		slog.Info("control api listening", "addr", addr)
		instrumentProcess(ctx)

		select {
		case err = <-errs:
			return err
		case <-ctx.Done():
		}

		svc.StopPolling()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = server.Shutdown(shutdownCtx)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}
