package commands

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var scanRoom *string

func init() {
	scanRoom = scanCmd.Flags().String("room", "", "Only list requests for this room id.")
	rootCmd.AddCommand(scanCmd)
}

var scanCmd = &cobra.Command{
	Use:   "scan [--room <room id>]",
	Short: "Lists the pending approvals on the organizer admin page.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd.Context())
		if err != nil {
			return err
		}

		result, err := svc.ScanOnce(cmd.Context(), *scanRoom)
		if err != nil {
			return err
		}
		if len(result.Skipped) > 0 {
			slog.Warn("some approval forms could not be read", "skipped", len(result.Skipped), "forms", result.Forms)
		}
		renderRecords(result.Records)
		return nil
	},
}
