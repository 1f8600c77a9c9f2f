// Package notify delivers the price alert to the user.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
)

var ErrNotificationFailed = errors.New("notification failed")

// ErrNotDelivered marks a send that provably never reached the provider.
// Only these failures are retried; anything else may already have produced
// a message.
var ErrNotDelivered = errors.New("message not delivered to provider")

type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// SendWithRetry tries to deliver message up to attempts times, waiting delay
// between tries. Only ErrNotDelivered failures are retried. The last error is
// returned wrapped in ErrNotificationFailed.
func SendWithRetry(ctx context.Context, notifier Notifier, message string, attempts int, delay time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}

	var notifErr error
	for attempt := 0; attempt < attempts; attempt++ {
		notifErr = notifier.Notify(ctx, message)
		if notifErr == nil {
			log.Infof("Notification sent successfully (attempt %d).", attempt+1)
			return nil
		}

		log.Warnf("Attempt %d: error sending notification: %v", attempt+1, notifErr)

		if !errors.Is(notifErr, ErrNotDelivered) {
			return fmt.Errorf("%w: %w", ErrNotificationFailed, notifErr)
		}

		if attempt < attempts-1 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%w: %w", ErrNotificationFailed, ctx.Err())
			case <-timer.C:
			}
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrNotificationFailed, attempts, notifErr)
}

// neverSent reports whether err is a connection failure before any request
// bytes were written. Timeouts do not count: the provider may have accepted
// the message.
func neverSent(err error) bool {
	var opErr *net.OpError
	if !errors.As(err, &opErr) || opErr.Op != "dial" {
		return false
	}
	return !opErr.Timeout()
}
