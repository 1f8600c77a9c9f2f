package commands

import (
	"errors"
	"fmt"

	"price-tracker/internal/bot"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var errTargetNotMet = errors.New("desired price not reached")

var checkCmd = &cobra.Command{
	Use:   "check [--url <product url>] [--price <desired price>]",
	Short: "Runs a single price check and notifies if the desired price is met. Exits non-zero otherwise.",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := setupTracker(cmd.Context(), cmd)
		if err != nil || t == nil {
			return err
		}
		defer t.Close()

		state, err := t.bot.RunOnce(cmd.Context())
		switch state {
		case bot.Done:
			log.Info("Desired price reached, notification sent.")
			return nil
		case bot.DoneNotifyFailed:
			return fmt.Errorf("desired price reached but the notification could not be delivered: %w", err)
		}
		if err != nil {
			return err
		}
		return errTargetNotMet
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
