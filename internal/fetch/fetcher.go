package fetch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"price-tracker/internal/observability"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var (
	ErrUnsupportedSource = errors.New("unsupported source")
	ErrRateLimited       = errors.New("rate limited")
	ErrFetchFailed       = errors.New("fetch failed")
)

var tracer = otel.Tracer("price-tracker/fetch")

// StatusError carries the HTTP status of a non-2xx response.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %s", e.Status)
}

// Attempt is one request made while fetching a page.
type Attempt struct {
	Number int
	Status int
	Err    error
}

type Options struct {
	SupportedDomain string
	UserAgent       string
	Timeout         time.Duration
	MaxRetries      int
	BackoffMin      time.Duration
	BackoffMax      time.Duration
	// Minimum spacing between requests; zero disables the limiter.
	RateInterval time.Duration

	Metrics *observability.Metrics

	// Test hooks. Nil means real sleeping and math/rand/v2.
	Sleep func(ctx context.Context, d time.Duration) error
	Rand  func() float64
}

type Fetcher struct {
	client     *resty.Client
	domain     string
	userAgent  string
	maxRetries int
	backoffMin time.Duration
	backoffMax time.Duration
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	sleep      func(ctx context.Context, d time.Duration) error
	rand       func() float64
}

func NewFetcher(opts Options) *Fetcher {
	// A bare http.Client keeps resty from attaching a cookie jar.
	client := resty.NewWithClient(&http.Client{}).
		SetHeader("User-Agent", opts.UserAgent)
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}

	limit := rate.Inf
	if opts.RateInterval > 0 {
		limit = rate.Every(opts.RateInterval)
	}

	f := &Fetcher{
		client:     client,
		domain:     opts.SupportedDomain,
		userAgent:  opts.UserAgent,
		maxRetries: opts.MaxRetries,
		backoffMin: opts.BackoffMin,
		backoffMax: opts.BackoffMax,
		limiter:    rate.NewLimiter(limit, 1),
		metrics:    opts.Metrics,
		sleep:      opts.Sleep,
		rand:       opts.Rand,
	}
	if f.metrics == nil {
		f.metrics = observability.NewMetrics()
	}
	if f.sleep == nil {
		f.sleep = sleepContext
	}
	if f.rand == nil {
		f.rand = rand.Float64
	}
	return f
}

// Supports reports whether url belongs to the supported retailer.
func (f *Fetcher) Supports(url string) bool {
	return strings.Contains(url, f.domain)
}

// Fetch GETs url and returns the body of the first 2xx response. Only 429
// responses are retried, at most MaxRetries times, each after a random delay in
// [BackoffMin, BackoffMax]. Every other failure is returned immediately.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if !f.Supports(url) {
		return nil, fmt.Errorf("%w: %s is not a %s URL", ErrUnsupportedSource, url, f.domain)
	}

	for attempt := 0; ; attempt++ {
		result := f.do(ctx, url, attempt)
		if result.Err == nil {
			return result.body, nil
		}

		if result.Status != http.StatusTooManyRequests {
			return nil, result.Err
		}
		if attempt >= f.maxRetries {
			log.WithField("attempt", attempt).Warnf("Still rate limited after %d retries, giving up this cycle", f.maxRetries)
			return nil, fmt.Errorf("%w: %w after %d retries", ErrFetchFailed, ErrRateLimited, f.maxRetries)
		}

		delay := f.backoff()
		f.metrics.Backoffs.Inc()
		log.Infof("Rate limited. Retrying after %.2f seconds...", delay.Seconds())
		if err := f.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
		}
	}
}

type attemptResult struct {
	Attempt
	body []byte
}

func (f *Fetcher) do(ctx context.Context, url string, attempt int) attemptResult {
	ctx, span := tracer.Start(ctx, "FetchAttempt")
	defer span.End()
	span.SetAttributes(
		attribute.String("url", url),
		attribute.Int("attempt", attempt),
	)

	result := attemptResult{Attempt: Attempt{Number: attempt}}

	if err := f.limiter.Wait(ctx); err != nil {
		result.Err = fmt.Errorf("%w: %w", ErrFetchFailed, err)
		f.metrics.FetchAttempts.WithLabelValues("error").Inc()
		return result
	}

	res, err := f.client.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		f.metrics.FetchAttempts.WithLabelValues("error").Inc()
		result.Err = fmt.Errorf("%w: %w", ErrFetchFailed, err)
		return result
	}

	result.Status = res.StatusCode()
	span.SetAttributes(attribute.Int("status", result.Status))
	log.WithFields(log.Fields{"attempt": attempt, "status": result.Status}).Debugf("GET %s", url)

	switch {
	case res.IsSuccess():
		f.metrics.FetchAttempts.WithLabelValues("ok").Inc()
		result.body = res.Body()
	case result.Status == http.StatusTooManyRequests:
		f.metrics.FetchAttempts.WithLabelValues("rate_limited").Inc()
		result.Err = fmt.Errorf("%w: %w", ErrRateLimited, &StatusError{Code: result.Status, Status: res.Status()})
	default:
		f.metrics.FetchAttempts.WithLabelValues("http_error").Inc()
		span.SetStatus(codes.Error, res.Status())
		result.Err = fmt.Errorf("%w: %w", ErrFetchFailed, &StatusError{Code: result.Status, Status: res.Status()})
	}
	return result
}

func (f *Fetcher) backoff() time.Duration {
	spread := f.backoffMax - f.backoffMin
	return f.backoffMin + time.Duration(f.rand()*float64(spread))
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
