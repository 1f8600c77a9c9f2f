package commands

import (
	"context"
	"errors"
	"fmt"

	"price-tracker/internal/bot"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [--url <product url>] [--price <desired price>]",
	Short: "Checks the price on an interval until it reaches the desired price, then sends one notification.",
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	t, err := setupTracker(ctx, cmd)
	if err != nil || t == nil {
		return err
	}
	defer t.Close()

	if t.cfg.MaxRunDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.MaxRunDuration)
		defer cancel()
	}

	state, err := t.bot.Run(ctx)
	switch state {
	case bot.Done:
		log.Info("Desired price reached, notification sent. Exiting.")
		return nil
	case bot.DoneNotifyFailed:
		return fmt.Errorf("desired price reached but the notification could not be delivered: %w", err)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		log.Infof("Stopped after the maximum run duration of %v without reaching the desired price.", t.cfg.MaxRunDuration)
		return nil
	case errors.Is(err, context.Canceled):
		log.Info("Interrupted, stopping.")
		return nil
	}
	return err
}
