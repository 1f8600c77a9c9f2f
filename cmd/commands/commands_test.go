package commands

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"price-tracker/internal/bot"
	"price-tracker/internal/config"
	"price-tracker/internal/notify"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	productURL string
	logFile    string
	fetches    atomic.Int32

	mu     sync.Mutex
	bodies []string
}

func (h *harness) messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.bodies...)
}

// newHarness starts a retailer serving page with status and a Twilio API
// answering every message with twilioStatus, and points the environment at both.
func newHarness(t *testing.T, status int, page string, twilioStatus int) *harness {
	t.Helper()
	h := &harness{}

	retailer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.fetches.Add(1)
		w.WriteHeader(status)
		w.Write([]byte(page))
	}))
	t.Cleanup(retailer.Close)

	twilio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		h.mu.Lock()
		h.bodies = append(h.bodies, r.PostForm.Get("Body"))
		h.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(twilioStatus)
		if twilioStatus == http.StatusCreated {
			w.Write([]byte(`{"sid":"SM1"}`))
			return
		}
		w.Write([]byte(`{"code":21211,"message":"The 'To' number is not a valid phone number."}`))
	}))
	t.Cleanup(twilio.Close)

	h.productURL = retailer.URL + "/dp/B0TEST"
	h.logFile = filepath.Join(t.TempDir(), "price_tracker.log")

	t.Setenv("SUPPORTED_DOMAIN", "127.0.0.1")
	t.Setenv("REQUEST_RATE_INTERVAL", "0s")
	t.Setenv("MAX_CONSECUTIVE_FAILURES", "0")
	t.Setenv("LOG_FILE", h.logFile)
	t.Setenv("TWILIO_ACCOUNT_SID", "AC1")
	t.Setenv("TWILIO_AUTH_TOKEN", "token")
	t.Setenv("TWILIO_PHONE_NUMBER", "+1555")
	t.Setenv("YOUR_PHONE_NUMBER", "+1666")
	t.Setenv("TWILIO_API_URL", twilio.URL)

	resetCommand(t)
	return h
}

// resetCommand clears flag values left on the shared root command by earlier runs.
func resetCommand(t *testing.T) {
	t.Helper()
	reset := func() {
		rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
			f.Value.Set(f.DefValue)
			f.Changed = false
		})
		rootCmd.SetIn(nil)
	}
	reset()
	t.Cleanup(reset)
}

func pricePage(text string) string {
	return `<html><body><span class="a-offscreen">` + text + `</span></body></html>`
}

func TestCheckCommand(t *testing.T) {
	h := newHarness(t, http.StatusOK, pricePage("₹1,899.00"), http.StatusCreated)

	rootCmd.SetArgs([]string{"check", "--url", h.productURL, "--price", "2000"})
	require.NoError(t, rootCmd.Execute())

	require.Len(t, h.messages(), 1)
	assert.Equal(t, "Price dropped for "+h.productURL+"! Current price is ₹1899.00", h.messages()[0])
}

func TestWatchCommand(t *testing.T) {
	t.Run("Exits cleanly once the alert is sent", func(t *testing.T) {
		h := newHarness(t, http.StatusOK, pricePage("₹999.00"), http.StatusCreated)

		rootCmd.SetArgs([]string{"watch", "--url", h.productURL, "--price", "1000"})
		require.NoError(t, rootCmd.Execute())

		assert.Equal(t, []string{"Price dropped for " + h.productURL + "! Current price is ₹999.00"}, h.messages())
		assert.Equal(t, int32(1), h.fetches.Load())
	})

	t.Run("Watch is the default command", func(t *testing.T) {
		h := newHarness(t, http.StatusOK, pricePage("₹999.00"), http.StatusCreated)

		rootCmd.SetArgs([]string{"--url", h.productURL, "--price", "1000"})
		require.NoError(t, rootCmd.Execute())
		assert.Len(t, h.messages(), 1)
	})

	t.Run("Rejected notification fails the run", func(t *testing.T) {
		h := newHarness(t, http.StatusOK, pricePage("₹999.00"), http.StatusBadRequest)

		rootCmd.SetArgs([]string{"watch", "--url", h.productURL, "--price", "1000"})
		err := rootCmd.Execute()
		require.Error(t, err)
		assert.ErrorIs(t, err, notify.ErrNotificationFailed)
		assert.Len(t, h.messages(), 1)
		assert.Equal(t, int32(1), h.fetches.Load())
	})

	t.Run("Max run duration stops without an error", func(t *testing.T) {
		h := newHarness(t, http.StatusOK, pricePage("₹1,500.00"), http.StatusCreated)

		rootCmd.SetArgs([]string{"watch", "--url", h.productURL, "--price", "1000",
			"--interval", "20ms", "--max-run", "300ms"})
		start := time.Now()
		require.NoError(t, rootCmd.Execute())

		assert.Less(t, time.Since(start), 5*time.Second)
		assert.Empty(t, h.messages())
		assert.Greater(t, h.fetches.Load(), int32(1))
	})

	t.Run("Failure limit fails the run", func(t *testing.T) {
		h := newHarness(t, http.StatusServiceUnavailable, "", http.StatusCreated)
		t.Setenv("MAX_CONSECUTIVE_FAILURES", "2")

		rootCmd.SetArgs([]string{"watch", "--url", h.productURL, "--price", "1000", "--interval", "10ms"})
		err := rootCmd.Execute()
		assert.ErrorIs(t, err, bot.ErrTooManyFailures)
		assert.Equal(t, int32(2), h.fetches.Load())
		assert.Empty(t, h.messages())
	})

	t.Run("Invalid price is reported without an error", func(t *testing.T) {
		h := newHarness(t, http.StatusOK, pricePage("₹999.00"), http.StatusCreated)
		t.Setenv("YOUR_PHONE_NUMBER", "")

		rootCmd.SetArgs([]string{"watch", "--url", h.productURL, "--price", "abc"})
		require.NoError(t, rootCmd.Execute())
		assert.Zero(t, h.fetches.Load())
		assert.Empty(t, h.messages())

		data, err := os.ReadFile(h.logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), " - WARNING - Missing messaging configuration: YOUR_PHONE_NUMBER.")
	})

	t.Run("Interrupt at the prompt exits cleanly", func(t *testing.T) {
		h := newHarness(t, http.StatusOK, pricePage("₹999.00"), http.StatusCreated)
		in, w := io.Pipe()
		defer w.Close()
		rootCmd.SetIn(in)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			rootCmd.SetArgs([]string{"watch"})
			done <- rootCmd.ExecuteContext(ctx)
		}()
		time.Sleep(50 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("watch kept waiting for input after interrupt")
		}
		assert.Zero(t, h.fetches.Load())
	})
}

func TestReadTrackingRequest(t *testing.T) {
	appConfig := &config.AppConfig{SupportedDomain: "amazon.in", CurrencySymbol: "₹"}
	ctx := context.Background()

	t.Run("Prompts for missing values", func(t *testing.T) {
		cmd := &cobra.Command{}
		var out strings.Builder
		cmd.SetIn(strings.NewReader("https://www.amazon.in/dp/B0TEST\n1200\n"))
		cmd.SetOut(&out)

		req, err := readTrackingRequest(ctx, cmd, appConfig)
		require.NoError(t, err)
		assert.Equal(t, "https://www.amazon.in/dp/B0TEST", req.ProductURL)
		assert.Equal(t, "1200.00", req.DesiredPrice.StringFixed(2))
		assert.Contains(t, out.String(), "Enter desired price: ₹")
	})

	t.Run("Non numeric price is invalid input", func(t *testing.T) {
		cmd := &cobra.Command{}
		cmd.SetIn(strings.NewReader("https://www.amazon.in/dp/B0TEST\nabc\n"))
		cmd.SetOut(&strings.Builder{})

		_, err := readTrackingRequest(ctx, cmd, appConfig)
		assert.ErrorIs(t, err, bot.ErrInvalidInput)
	})

	t.Run("Cancelled prompt is not invalid input", func(t *testing.T) {
		cmd := &cobra.Command{}
		in, w := io.Pipe()
		defer w.Close()
		cmd.SetIn(in)
		cmd.SetOut(&strings.Builder{})

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := readTrackingRequest(cancelled, cmd, appConfig)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, bot.ErrInvalidInput)
	})

	t.Run("Configured values skip the prompt", func(t *testing.T) {
		cmd := &cobra.Command{}
		cmd.SetIn(strings.NewReader(""))
		var out strings.Builder
		cmd.SetOut(&out)

		cfg := *appConfig
		cfg.ProductURL = "https://www.amazon.in/dp/B0TEST"
		cfg.DesiredPrice = "99"
		_, err := readTrackingRequest(ctx, cmd, &cfg)
		require.NoError(t, err)
		assert.Empty(t, out.String())
	})
}

func TestNewNotifier(t *testing.T) {
	n, err := newNotifier(&config.AppConfig{NotifyChannel: config.ChannelSMS})
	require.NoError(t, err)
	assert.IsType(t, &notify.TwilioNotifier{}, n)

	_, err = newNotifier(&config.AppConfig{NotifyChannel: config.ChannelTelegram})
	assert.Error(t, err)
}
