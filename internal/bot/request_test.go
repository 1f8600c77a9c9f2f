package bot

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"price-tracker/internal/fetch"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTrackingRequest(t *testing.T) {
	t.Run("Valid request", func(t *testing.T) {
		req, err := NewTrackingRequest("  https://www.amazon.in/dp/B0TEST ", " 1499.99 ", "amazon.in")
		require.NoError(t, err)
		assert.Equal(t, "https://www.amazon.in/dp/B0TEST", req.ProductURL)
		assert.Equal(t, "1499.99", req.DesiredPrice.StringFixed(2))
	})

	t.Run("Non numeric price", func(t *testing.T) {
		_, err := NewTrackingRequest("https://www.amazon.in/dp/B0TEST", "cheap", "amazon.in")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("Non positive price", func(t *testing.T) {
		_, err := NewTrackingRequest("https://www.amazon.in/dp/B0TEST", "-5", "amazon.in")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("Other retailer", func(t *testing.T) {
		_, err := NewTrackingRequest("https://www.flipkart.com/item/123", "100", "amazon.in")
		assert.ErrorIs(t, err, fetch.ErrUnsupportedSource)
	})

	t.Run("Empty URL", func(t *testing.T) {
		_, err := NewTrackingRequest("", "100", "amazon.in")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestPrompter(t *testing.T) {
	t.Run("Reads successive lines", func(t *testing.T) {
		var out strings.Builder
		p := NewPrompter(strings.NewReader("https://www.amazon.in/dp/B0TEST\r\n999\n"), &out)

		url, err := p.ReadLine(context.Background(), "Enter Amazon.in product URL: ")
		require.NoError(t, err)
		price, err := p.ReadLine(context.Background(), "Enter desired price: ₹")
		require.NoError(t, err)

		assert.Equal(t, "https://www.amazon.in/dp/B0TEST", url)
		assert.Equal(t, "999", price)
		assert.Equal(t, "Enter Amazon.in product URL: Enter desired price: ₹", out.String())
	})

	t.Run("Last line without newline", func(t *testing.T) {
		p := NewPrompter(strings.NewReader("500"), io.Discard)
		line, err := p.ReadLine(context.Background(), "> ")
		require.NoError(t, err)
		assert.Equal(t, "500", line)
	})

	t.Run("EOF with no input", func(t *testing.T) {
		p := NewPrompter(strings.NewReader(""), io.Discard)
		_, err := p.ReadLine(context.Background(), "> ")
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("Cancellation unblocks a pending read", func(t *testing.T) {
		in, w := io.Pipe()
		defer w.Close()
		p := NewPrompter(in, io.Discard)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			_, err := p.ReadLine(ctx, "> ")
			done <- err
		}()
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Fatal("ReadLine did not return after cancel")
		}
	})
}
