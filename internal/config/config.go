package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

const (
	ChannelWhatsApp = "whatsapp"
	ChannelSMS      = "sms"
	ChannelTelegram = "telegram"

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// AppConfig is built once at startup and never mutated afterwards.
type AppConfig struct {
	ProductURL   string
	DesiredPrice string

	CheckInterval          time.Duration
	MaxRetries             int
	BackoffMin             time.Duration
	BackoffMax             time.Duration
	RequestTimeout         time.Duration
	RequestRateInterval    time.Duration
	UserAgent              string
	SupportedDomain        string
	CurrencySymbol         string
	RespectRobots          bool
	MaxRunDuration         time.Duration
	MaxConsecutiveFailures int

	NotifyChannel    string
	NotifyAttempts   int
	NotifyRetryDelay time.Duration

	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string
	RecipientNumber   string
	TwilioAPIURL      string

	TelegramBotToken string
	TelegramChatId   string

	LogFile     string
	LogLevel    string
	MetricsAddr string

	// Warnings found while parsing; logged once logging is set up.
	Warnings []string
}

type envVariables struct {
	ProductURL   string `envconfig:"PRODUCT_URL"`
	DesiredPrice string `envconfig:"DESIRED_PRICE"`

	CheckInterval          time.Duration `envconfig:"CHECK_INTERVAL" default:"10s"`
	MaxRetries             int           `envconfig:"MAX_RETRIES" default:"3"`
	BackoffMin             time.Duration `envconfig:"BACKOFF_MIN" default:"10s"`
	BackoffMax             time.Duration `envconfig:"BACKOFF_MAX" default:"30s"`
	RequestTimeout         time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	RequestRateInterval    time.Duration `envconfig:"REQUEST_RATE_INTERVAL" default:"2s"`
	UserAgent              string        `envconfig:"USER_AGENT"`
	SupportedDomain        string        `envconfig:"SUPPORTED_DOMAIN" default:"amazon.in"`
	CurrencySymbol         string        `envconfig:"CURRENCY_SYMBOL" default:"₹"`
	RespectRobots          bool          `envconfig:"RESPECT_ROBOTS" default:"false"`
	MaxRunDuration         time.Duration `envconfig:"MAX_RUN_DURATION" default:"0s"`
	MaxConsecutiveFailures int           `envconfig:"MAX_CONSECUTIVE_FAILURES" default:"0"`

	NotifyChannel    string        `envconfig:"NOTIFY_CHANNEL" default:"whatsapp"`
	NotifyAttempts   int           `envconfig:"NOTIFY_ATTEMPTS" default:"1"`
	NotifyRetryDelay time.Duration `envconfig:"NOTIFY_RETRY_DELAY" default:"2s"`

	TwilioAccountSID  string `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken   string `envconfig:"TWILIO_AUTH_TOKEN"`
	TwilioPhoneNumber string `envconfig:"TWILIO_PHONE_NUMBER"`
	RecipientNumber   string `envconfig:"YOUR_PHONE_NUMBER"`
	TwilioAPIURL      string `envconfig:"TWILIO_API_URL" default:"https://api.twilio.com"`

	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatId   string `envconfig:"TELEGRAM_CHAT_ID"`

	LogFile     string `envconfig:"LOG_FILE" default:"price_tracker.log"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`
}

// RegisterFlags adds the command line overrides to a cobra/pflag flag set.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("url", "", "product page URL to watch")
	flags.String("price", "", "desired price; a notification is sent once the listed price is at or below it")
	flags.Duration("interval", 0, "interval between price checks (default CHECK_INTERVAL or 10s)")
	flags.String("channel", "", "notification channel: whatsapp, sms or telegram")
	flags.Duration("max-run", 0, "stop watching after this long (0 = run until the price is met)")
	flags.String("metrics-addr", "", "address to serve prometheus metrics on, e.g. :9090")
}

func loadEnvVariables() (*envVariables, []string, error) {
	var warnings []string
	log.Debug("Attempting to load .env file...")
	if err := godotenv.Load(); err != nil {
		if _, statErr := os.Stat(".env"); statErr == nil {
			warnings = append(warnings, fmt.Sprintf(".env file found but could not be loaded: %v", err))
		}
	} else {
		log.Debug(".env file loaded successfully.")
	}

	var env envVariables
	if err := envconfig.Process("", &env); err != nil {
		return nil, nil, err
	}
	return &env, warnings, nil
}

func applyFlags(env *envVariables, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	var err error
	if flags.Changed("url") {
		if env.ProductURL, err = flags.GetString("url"); err != nil {
			return err
		}
	}
	if flags.Changed("price") {
		if env.DesiredPrice, err = flags.GetString("price"); err != nil {
			return err
		}
	}
	if flags.Changed("interval") {
		if env.CheckInterval, err = flags.GetDuration("interval"); err != nil {
			return err
		}
	}
	if flags.Changed("channel") {
		if env.NotifyChannel, err = flags.GetString("channel"); err != nil {
			return err
		}
	}
	if flags.Changed("max-run") {
		if env.MaxRunDuration, err = flags.GetDuration("max-run"); err != nil {
			return err
		}
	}
	if flags.Changed("metrics-addr") {
		if env.MetricsAddr, err = flags.GetString("metrics-addr"); err != nil {
			return err
		}
	}
	return nil
}

func validate(env *envVariables) ([]string, error) {
	var warnings []string
	switch env.NotifyChannel {
	case ChannelWhatsApp, ChannelSMS:
		missing := []string{}
		if env.TwilioAccountSID == "" {
			missing = append(missing, "TWILIO_ACCOUNT_SID")
		}
		if env.TwilioAuthToken == "" {
			missing = append(missing, "TWILIO_AUTH_TOKEN")
		}
		if env.TwilioPhoneNumber == "" {
			missing = append(missing, "TWILIO_PHONE_NUMBER")
		}
		if env.RecipientNumber == "" {
			missing = append(missing, "YOUR_PHONE_NUMBER")
		}
		// Sending will fail later; this is not fatal at startup.
		if len(missing) > 0 {
			warnings = append(warnings, fmt.Sprintf("Missing messaging configuration: %s. Notifications will fail until they are set.", strings.Join(missing, ", ")))
		}
	case ChannelTelegram:
		if env.TelegramBotToken == "" || env.TelegramChatId == "" {
			return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID are required for the %s channel", ChannelTelegram)
		}
	default:
		return nil, fmt.Errorf("unknown notification channel %q", env.NotifyChannel)
	}

	if env.CheckInterval <= 0 {
		return nil, fmt.Errorf("check interval must be positive, got %v", env.CheckInterval)
	}
	if env.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must not be negative, got %d", env.MaxRetries)
	}
	if env.BackoffMin < 0 || env.BackoffMax < env.BackoffMin {
		return nil, fmt.Errorf("invalid backoff window [%v, %v]", env.BackoffMin, env.BackoffMax)
	}
	if env.NotifyAttempts < 1 {
		return nil, fmt.Errorf("notify attempts must be at least 1, got %d", env.NotifyAttempts)
	}
	if strings.TrimSpace(env.SupportedDomain) == "" {
		return nil, fmt.Errorf("SUPPORTED_DOMAIN is empty")
	}
	return warnings, nil
}

// ParseConfiguration reads .env, the environment and then any flags that were explicitly set.
func ParseConfiguration(flags *pflag.FlagSet) (*AppConfig, error) {
	env, envWarnings, err := loadEnvVariables()
	if err != nil {
		return nil, err
	}
	if err := applyFlags(env, flags); err != nil {
		return nil, err
	}

	env.NotifyChannel = strings.ToLower(strings.TrimSpace(env.NotifyChannel))
	if env.UserAgent == "" {
		env.UserAgent = DefaultUserAgent
	}

	warnings, err := validate(env)
	if err != nil {
		return nil, err
	}

	if len(env.TwilioAuthToken) > 10 {
		log.Debugf("Twilio auth token hint: starts with '%s', ends with '%s'", env.TwilioAuthToken[:3], env.TwilioAuthToken[len(env.TwilioAuthToken)-3:])
	}

	return &AppConfig{
		ProductURL:             strings.TrimSpace(env.ProductURL),
		DesiredPrice:           strings.TrimSpace(env.DesiredPrice),
		CheckInterval:          env.CheckInterval,
		MaxRetries:             env.MaxRetries,
		BackoffMin:             env.BackoffMin,
		BackoffMax:             env.BackoffMax,
		RequestTimeout:         env.RequestTimeout,
		RequestRateInterval:    env.RequestRateInterval,
		UserAgent:              env.UserAgent,
		SupportedDomain:        strings.TrimSpace(env.SupportedDomain),
		CurrencySymbol:         env.CurrencySymbol,
		RespectRobots:          env.RespectRobots,
		MaxRunDuration:         env.MaxRunDuration,
		MaxConsecutiveFailures: env.MaxConsecutiveFailures,
		NotifyChannel:          env.NotifyChannel,
		NotifyAttempts:         env.NotifyAttempts,
		NotifyRetryDelay:       env.NotifyRetryDelay,
		TwilioAccountSID:       strings.TrimSpace(env.TwilioAccountSID),
		TwilioAuthToken:        strings.TrimSpace(env.TwilioAuthToken),
		TwilioPhoneNumber:      strings.TrimSpace(env.TwilioPhoneNumber),
		RecipientNumber:        strings.TrimSpace(env.RecipientNumber),
		TwilioAPIURL:           env.TwilioAPIURL,
		TelegramBotToken:       strings.TrimSpace(env.TelegramBotToken),
		TelegramChatId:         strings.TrimSpace(env.TelegramChatId),
		LogFile:                env.LogFile,
		LogLevel:               env.LogLevel,
		MetricsAddr:            env.MetricsAddr,
		Warnings:               append(envWarnings, warnings...),
	}, nil
}
