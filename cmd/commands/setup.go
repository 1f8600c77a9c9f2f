package commands

import (
	"context"
	"errors"
	"fmt"

	"price-tracker/internal/bot"
	"price-tracker/internal/config"
	"price-tracker/internal/fetch"
	"price-tracker/internal/logging"
	"price-tracker/internal/notify"
	"price-tracker/internal/observability"
	"price-tracker/internal/price"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// tracker is everything a watch or check run needs, built once at startup.
type tracker struct {
	cfg      *config.AppConfig
	bot      *bot.Bot
	closeLog func() error
}

func (t *tracker) Close() {
	if err := t.closeLog(); err != nil {
		fmt.Println("closing log file:", err)
	}
}

// setupTracker loads configuration, prompts for anything missing and validates
// the tracking request. A nil tracker with a nil error means the user input
// was rejected and already reported.
func setupTracker(ctx context.Context, cmd *cobra.Command) (*tracker, error) {
	log.SetFormatter(logging.Formatter{})
	appConfig, err := config.ParseConfiguration(cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	closeLog, err := logging.Setup(appConfig.LogFile, appConfig.LogLevel)
	if err != nil {
		return nil, err
	}
	t := &tracker{cfg: appConfig, closeLog: closeLog}
	for _, w := range appConfig.Warnings {
		log.Warn(w)
	}

	request, err := readTrackingRequest(ctx, cmd, appConfig)
	if err != nil {
		t.Close()
		switch {
		case errors.Is(err, bot.ErrInvalidInput):
			fmt.Fprintln(cmd.ErrOrStderr(), err)
			log.Warn(err)
			return nil, nil
		case errors.Is(err, context.Canceled):
			log.Info("Interrupted before tracking started.")
			return nil, nil
		}
		return nil, err
	}

	metrics := observability.NewMetrics()
	if appConfig.MetricsAddr != "" {
		metrics.Serve(ctx, appConfig.MetricsAddr)
	}

	fetcher := fetch.NewFetcher(fetch.Options{
		SupportedDomain: appConfig.SupportedDomain,
		UserAgent:       appConfig.UserAgent,
		Timeout:         appConfig.RequestTimeout,
		MaxRetries:      appConfig.MaxRetries,
		BackoffMin:      appConfig.BackoffMin,
		BackoffMax:      appConfig.BackoffMax,
		RateInterval:    appConfig.RequestRateInterval,
		Metrics:         metrics,
	})

	if appConfig.RespectRobots {
		if err := fetcher.CheckRobots(ctx, request.ProductURL); err != nil {
			t.Close()
			return nil, err
		}
	}

	notifier, err := newNotifier(appConfig)
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("failed to initialize %s notifier: %w", appConfig.NotifyChannel, err)
	}

	t.bot = bot.InitBot(request, fetcher, price.NewExtractor(appConfig.CurrencySymbol, nil), notifier, bot.Options{
		Interval:               appConfig.CheckInterval,
		MaxConsecutiveFailures: appConfig.MaxConsecutiveFailures,
		NotifyAttempts:         appConfig.NotifyAttempts,
		NotifyRetryDelay:       appConfig.NotifyRetryDelay,
		CurrencySymbol:         appConfig.CurrencySymbol,
		Metrics:                metrics,
	})
	log.WithField("run", t.bot.RunID()).Infof("Notifications will be sent via %s", appConfig.NotifyChannel)
	return t, nil
}

func readTrackingRequest(ctx context.Context, cmd *cobra.Command, appConfig *config.AppConfig) (bot.TrackingRequest, error) {
	productURL, desiredPrice := appConfig.ProductURL, appConfig.DesiredPrice
	prompter := bot.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout())

	var err error
	if productURL == "" {
		productURL, err = prompter.ReadLine(ctx, fmt.Sprintf("Enter %s product URL: ", appConfig.SupportedDomain))
		if err != nil {
			return bot.TrackingRequest{}, promptError("reading product URL", err)
		}
	}
	if desiredPrice == "" {
		desiredPrice, err = prompter.ReadLine(ctx, "Enter desired price: " + appConfig.CurrencySymbol)
		if err != nil {
			return bot.TrackingRequest{}, promptError("reading desired price", err)
		}
	}

	return bot.NewTrackingRequest(productURL, desiredPrice, appConfig.SupportedDomain)
}

func promptError(what string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", what, err)
	}
	return fmt.Errorf("%w: %s: %w", bot.ErrInvalidInput, what, err)
}

func newNotifier(appConfig *config.AppConfig) (notify.Notifier, error) {
	if appConfig.NotifyChannel == config.ChannelTelegram {
		return notify.NewTelegramNotifier(appConfig.TelegramBotToken, appConfig.TelegramChatId, "")
	}
	return notify.NewTwilioNotifier(notify.TwilioConfig{
		AccountSID: appConfig.TwilioAccountSID,
		AuthToken:  appConfig.TwilioAuthToken,
		From:       appConfig.TwilioPhoneNumber,
		To:         appConfig.RecipientNumber,
		WhatsApp:   appConfig.NotifyChannel == config.ChannelWhatsApp,
		BaseURL:    appConfig.TwilioAPIURL,
	}), nil
}
