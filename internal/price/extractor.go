package price

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var ErrPriceNotFound = errors.New("price not found")

var tracer = otel.Tracer("price-tracker/price")

// Amazon.in price blocks, in priority order: deal price, our price, then any
// screen-reader price.
var DefaultSelectors = []string{
	"#priceblock_dealprice",
	"#priceblock_ourprice",
	".a-offscreen",
}

const DefaultSymbol = "₹"

type Extractor struct {
	selectors []string
	pattern   *regexp.Regexp
}

// NewExtractor builds an extractor for prices prefixed with symbol. Nil
// selectors fall back to DefaultSelectors.
func NewExtractor(symbol string, selectors []string) *Extractor {
	if symbol == "" {
		symbol = DefaultSymbol
	}
	if len(selectors) == 0 {
		selectors = DefaultSelectors
	}
	return &Extractor{
		selectors: selectors,
		pattern:   regexp.MustCompile(regexp.QuoteMeta(symbol) + `\s?(\d+(?:,\d+)*\.\d{2})\b`),
	}
}

// Extract returns the price from the first selector that matches any element.
// Later selectors are never consulted once one has matched, even if its text
// holds no price.
func (e *Extractor) Extract(ctx context.Context, page []byte) (decimal.Decimal, error) {
	_, span := tracer.Start(ctx, "Extract")
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		span.RecordError(err)
		return decimal.Zero, fmt.Errorf("parsing page: %w", err)
	}

	var found *goquery.Selection
	for _, selector := range e.selectors {
		sel := doc.Find(selector)
		if sel.Length() > 0 {
			found = sel.First()
			span.SetAttributes(attribute.String("selector", selector))
			break
		}
	}
	if found == nil {
		return decimal.Zero, fmt.Errorf("%w: no price element on page", ErrPriceNotFound)
	}

	return e.ParseText(found.Text())
}

// ParseText matches a currency-prefixed price in text and strips thousands
// separators.
func (e *Extractor) ParseText(text string) (decimal.Decimal, error) {
	text = strings.Join(strings.Fields(text), " ")

	match := e.pattern.FindStringSubmatch(text)
	if match == nil {
		return decimal.Zero, fmt.Errorf("%w: %q does not look like a price", ErrPriceNotFound, text)
	}

	value, err := decimal.NewFromString(strings.ReplaceAll(match[1], ",", ""))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrPriceNotFound, err)
	}
	if !value.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive price %s", ErrPriceNotFound, value)
	}
	return value, nil
}
