package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"price-tracker/internal/fetch"
	"price-tracker/internal/notify"
	"price-tracker/internal/observability"
	"price-tracker/internal/price"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var ErrTooManyFailures = errors.New("too many consecutive failed checks")

type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type PriceExtractor interface {
	Extract(ctx context.Context, page []byte) (decimal.Decimal, error)
}

type State int

const (
	Polling State = iota
	Done
	// The target was met but the message could not be delivered.
	DoneNotifyFailed
	// Cancelled, out of time, or too many failed cycles.
	Stopped
)

func (s State) String() string {
	switch s {
	case Polling:
		return "POLLING"
	case Done:
		return "DONE"
	case DoneNotifyFailed:
		return "DONE_NOTIFY_FAILED"
	case Stopped:
		return "STOPPED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Options struct {
	Interval time.Duration
	// Zero means keep polling forever.
	MaxConsecutiveFailures int
	NotifyAttempts         int
	NotifyRetryDelay       time.Duration
	CurrencySymbol         string
	Metrics                *observability.Metrics

	// Test hook; nil sleeps for real.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Bot struct {
	request   TrackingRequest
	fetcher   PageFetcher
	extractor PriceExtractor
	notifier  notify.Notifier

	interval         time.Duration
	maxFailures      int
	notifyAttempts   int
	notifyRetryDelay time.Duration
	symbol           string
	metrics          *observability.Metrics
	sleep            func(ctx context.Context, d time.Duration) error

	runID string
	log   *log.Entry
}

func InitBot(request TrackingRequest, fetcher PageFetcher, extractor PriceExtractor, notifier notify.Notifier, opts Options) *Bot {
	b := &Bot{
		request:          request,
		fetcher:          fetcher,
		extractor:        extractor,
		notifier:         notifier,
		interval:         opts.Interval,
		maxFailures:      opts.MaxConsecutiveFailures,
		notifyAttempts:   opts.NotifyAttempts,
		notifyRetryDelay: opts.NotifyRetryDelay,
		symbol:           opts.CurrencySymbol,
		metrics:          opts.Metrics,
		sleep:            opts.Sleep,
		runID:            uuid.NewString(),
	}
	if b.metrics == nil {
		b.metrics = observability.NewMetrics()
	}
	if b.sleep == nil {
		b.sleep = sleepContext
	}
	if b.symbol == "" {
		b.symbol = price.DefaultSymbol
	}
	b.log = log.WithField("run", b.runID)
	return b
}

func (b *Bot) RunID() string {
	return b.runID
}

// CheckPrice runs one fetch and extract and reports whether the target is met.
func (b *Bot) CheckPrice(ctx context.Context) (decimal.Decimal, bool, error) {
	page, err := b.fetcher.Fetch(ctx, b.request.ProductURL)
	if err != nil {
		return decimal.Zero, false, err
	}

	current, err := b.extractor.Extract(ctx, page)
	if err != nil {
		return decimal.Zero, false, err
	}

	b.metrics.LastPrice.Set(current.InexactFloat64())
	return current, current.LessThanOrEqual(b.request.DesiredPrice), nil
}

// RunOnce performs a single poll cycle. It returns Polling when the target
// was not met, together with the cycle error if there was one.
func (b *Bot) RunOnce(ctx context.Context) (State, error) {
	current, met, err := b.CheckPrice(ctx)
	if err != nil {
		b.logCycleError(err)
		return Polling, err
	}

	if !met {
		b.metrics.PollCycles.WithLabelValues("above_target").Inc()
		b.log.Infof("Current price for %s is %s%s, which is higher than your desired price of %s%s.",
			b.request.ProductURL, b.symbol, current.StringFixed(2), b.symbol, b.request.DesiredPrice.StringFixed(2))
		return Polling, nil
	}

	b.metrics.PollCycles.WithLabelValues("target_met").Inc()
	return b.sendPriceAlert(ctx, current)
}

// Run polls until the desired price is met, ctx is done, or the configured
// number of consecutive failed cycles is reached. At most one alert is sent.
func (b *Bot) Run(ctx context.Context) (State, error) {
	b.log.Infof("Watching %s for a price at or below %s%s every %v",
		b.request.ProductURL, b.symbol, b.request.DesiredPrice.StringFixed(2), b.interval)

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return Stopped, err
		}

		state, err := b.RunOnce(ctx)
		if state != Polling {
			return state, err
		}

		if err != nil {
			if ctx.Err() != nil {
				return Stopped, ctx.Err()
			}
			failures++
			if b.maxFailures > 0 && failures >= b.maxFailures {
				return Stopped, fmt.Errorf("%w (%d): %w", ErrTooManyFailures, failures, err)
			}
		} else {
			failures = 0
		}

		if err := b.sleep(ctx, b.interval); err != nil {
			return Stopped, err
		}
	}
}

func (b *Bot) sendPriceAlert(ctx context.Context, current decimal.Decimal) (State, error) {
	message := fmt.Sprintf("Price dropped for %s! Current price is %s%s", b.request.ProductURL, b.symbol, current.StringFixed(2))
	b.log.Infof("Target met: %s%s <= %s%s", b.symbol, current.StringFixed(2), b.symbol, b.request.DesiredPrice.StringFixed(2))

	if err := notify.SendWithRetry(ctx, b.notifier, message, b.notifyAttempts, b.notifyRetryDelay); err != nil {
		b.metrics.Notifications.WithLabelValues("failed").Inc()
		b.log.Errorf("Error sending price alert: %v", err)
		return DoneNotifyFailed, err
	}

	b.metrics.Notifications.WithLabelValues("sent").Inc()
	return Done, nil
}

func (b *Bot) logCycleError(err error) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		b.log.Infof("Check interrupted: %v", err)
	case errors.Is(err, price.ErrPriceNotFound):
		b.metrics.PollCycles.WithLabelValues("price_not_found").Inc()
		b.log.Warnf("Price information not found for %s: %v", b.request.ProductURL, err)
	case errors.Is(err, fetch.ErrUnsupportedSource):
		b.metrics.PollCycles.WithLabelValues("unsupported_source").Inc()
		b.log.Errorf("Cannot check %s: %v", b.request.ProductURL, err)
	default:
		b.metrics.PollCycles.WithLabelValues("fetch_failed").Inc()
		b.log.Errorf("Error fetching %s: %v", b.request.ProductURL, err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
