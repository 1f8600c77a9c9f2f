package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

type Metrics struct {
	FetchAttempts *prometheus.CounterVec
	Backoffs      prometheus.Counter
	PollCycles    *prometheus.CounterVec
	LastPrice     prometheus.Gauge
	Notifications *prometheus.CounterVec

	registry *prometheus.Registry
}

func NewMetrics() *Metrics {
	m := &Metrics{
		FetchAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "price_tracker_fetch_attempts_total",
				Help: "Product page requests by outcome",
			},
			[]string{"outcome"},
		),
		Backoffs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "price_tracker_rate_limit_backoffs_total",
				Help: "Randomised waits taken after a 429 response",
			},
		),
		PollCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "price_tracker_poll_cycles_total",
				Help: "Completed poll cycles by result",
			},
			[]string{"result"},
		),
		LastPrice: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "price_tracker_last_price",
				Help: "Most recently extracted product price",
			},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "price_tracker_notifications_total",
				Help: "Notification deliveries by status",
			},
			[]string{"status"},
		),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(m.FetchAttempts, m.Backoffs, m.PollCycles, m.LastPrice, m.Notifications)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	go func() {
		log.Infof("Serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics server stopped: %v", err)
		}
	}()
}
