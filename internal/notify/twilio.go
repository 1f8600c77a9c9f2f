package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
)

const TwilioBaseURL = "https://api.twilio.com"

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
	// WhatsApp prefixes both numbers with "whatsapp:"; otherwise a plain SMS is sent.
	WhatsApp bool
	// BaseURL defaults to TwilioBaseURL.
	BaseURL string
	Timeout time.Duration
}

type twilioMessage struct {
	Sid    string `json:"sid"`
	Status string `json:"status"`
}

type twilioError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
}

// TwilioNotifier sends messages through the Twilio Messages API.
type TwilioNotifier struct {
	client *resty.Client
	cfg    TwilioConfig
}

func NewTwilioNotifier(cfg TwilioConfig) *TwilioNotifier {
	if cfg.BaseURL == "" {
		cfg.BaseURL = TwilioBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	client := resty.NewWithClient(&http.Client{}).
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetBasicAuth(cfg.AccountSID, cfg.AuthToken).
		SetHeader("User-Agent", "PriceTracker/1.0")

	return &TwilioNotifier{client: client, cfg: cfg}
}

func (t *TwilioNotifier) address(number string) string {
	if t.cfg.WhatsApp {
		return "whatsapp:" + number
	}
	return number
}

func (t *TwilioNotifier) Notify(ctx context.Context, message string) error {
	if t.cfg.AccountSID == "" || t.cfg.AuthToken == "" || t.cfg.From == "" || t.cfg.To == "" {
		return fmt.Errorf("twilio credentials or phone numbers are not configured")
	}

	var sent twilioMessage
	var apiErr twilioError
	res, err := t.client.R().
		SetContext(ctx).
		SetPathParam("accountSid", t.cfg.AccountSID).
		SetFormData(map[string]string{
			"From": t.address(t.cfg.From),
			"To":   t.address(t.cfg.To),
			"Body": message,
		}).
		SetResult(&sent).
		SetError(&apiErr).
		Post("/2010-04-01/Accounts/{accountSid}/Messages.json")
	if err != nil {
		if neverSent(err) {
			return fmt.Errorf("%w: error sending request to twilio api: %w", ErrNotDelivered, err)
		}
		return fmt.Errorf("error sending request to twilio api: %w", err)
	}

	if res.IsError() {
		if res.StatusCode() >= http.StatusInternalServerError && sent.Sid == "" {
			return fmt.Errorf("%w: twilio api returned status %d: %s", ErrNotDelivered, res.StatusCode(), res.String())
		}
		if apiErr.Message != "" {
			return fmt.Errorf("twilio api returned status %d: %s (code %d)", res.StatusCode(), apiErr.Message, apiErr.Code)
		}
		return fmt.Errorf("twilio api returned status %d: %s", res.StatusCode(), res.String())
	}

	log.Infof("Message sent: %s", sent.Sid)
	return nil
}
