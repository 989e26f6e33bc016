package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"showroom-approver/internal/approver"
	"time"

	"github.com/spf13/cobra"
)

var pollInterval *time.Duration

func init() {
	pollInterval = pollCmd.Flags().Duration("interval", 0, "The time between cycle starts, defaults to interval_seconds of the config.")
	rootCmd.AddCommand(pollCmd)
}

func printReport(report approver.PollCycleReport) {
	line := fmt.Sprintf(
		"[%s] pending=%d attempted=%d succeeded=%d elapsed=%s",
		report.StartedAt.Format("2006-01-02 15:04:05"),
		report.Pending,
		report.Attempted,
		report.Succeeded,
		report.Elapsed.Round(time.Millisecond),
	)
	if report.Err != nil {
		line += " error=" + report.Err.Error()
	}
	fmt.Println(line)
}

var pollCmd = &cobra.Command{
	Use:   "poll [--interval <duration>]",
	Short: "Approves every pending request of the organizer queue on a fixed interval until interrupted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stopped := make(chan error, 1)
		svc, err := newService(
			cmd.Context(),
			approver.WithCycleReports(printReport),
			approver.WithStopHandler(func(err error) {
				stopped <- err
			}),
		)
		if err != nil {
			return err
		}

		interval := *pollInterval
		if interval <= 0 {
			interval = svc.Config().Interval()
		}
		err = svc.StartPolling(cmd.Context(), interval)
		if err != nil {
			return err
		}
		slog.Info("polling started", "interval", interval.String())
		instrumentProcess(cmd.Context())

		select {
		case err = <-stopped:
		case <-cmd.Context().Done():
			svc.StopPolling()
			err = <-stopped
		}
		if err != nil {
			return errors.Join(errors.New("polling stopped, the session needs to be renewed"), err)
		}
		slog.Info("polling stopped")
		return nil
	},
}
