package commands

import (
	"github.com/spf13/cobra"
)

var (
	approveRoom  *string
	approveEvent *string
)

func init() {
	approveRoom = approveCmd.Flags().String("room", "", "The room id whose requests are approved.")
	approveEvent = approveCmd.Flags().String("event", "", "Only approve the request for this event id.")
	approveCmd.MarkFlagRequired("room")
	rootCmd.AddCommand(approveCmd)
}

var approveCmd = &cobra.Command{
	Use:   "approve --room <room id> [--event <event id>]",
	Short: "Approves the pending requests of a single room.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd.Context())
		if err != nil {
			return err
		}

		outcomes, err := svc.ApproveRoom(cmd.Context(), *approveRoom, *approveEvent)
		if len(outcomes) > 0 {
			renderOutcomes(outcomes)
		}
		return err
	},
}
