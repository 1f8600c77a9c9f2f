package bot

import (
	"errors"
	"fmt"
	"strings"

	"price-tracker/internal/fetch"

	"github.com/shopspring/decimal"
)

var ErrInvalidInput = errors.New("invalid input")

// TrackingRequest is what a single run watches. It does not change once built.
type TrackingRequest struct {
	ProductURL   string
	DesiredPrice decimal.Decimal
}

// NewTrackingRequest validates user input before any fetch is made.
func NewTrackingRequest(productURL, desiredPrice, supportedDomain string) (TrackingRequest, error) {
	productURL = strings.TrimSpace(productURL)
	if productURL == "" {
		return TrackingRequest{}, fmt.Errorf("%w: product URL is empty", ErrInvalidInput)
	}
	if !strings.Contains(productURL, supportedDomain) {
		return TrackingRequest{}, fmt.Errorf("%w: this tracker is designed for %s URLs only", fetch.ErrUnsupportedSource, supportedDomain)
	}

	price, err := decimal.NewFromString(strings.TrimSpace(desiredPrice))
	if err != nil {
		return TrackingRequest{}, fmt.Errorf("%w: invalid price %q, please enter a number", ErrInvalidInput, desiredPrice)
	}
	if !price.IsPositive() {
		return TrackingRequest{}, fmt.Errorf("%w: desired price must be greater than zero", ErrInvalidInput)
	}

	return TrackingRequest{ProductURL: productURL, DesiredPrice: price}, nil
}
