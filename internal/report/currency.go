package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "adreport/internal/errors"
	"adreport/internal/log"
	"adreport/internal/model"
)

type currencyRule struct {
	currency model.Currency
	matches  func(header string, values []string) bool
}

// currencyRules are evaluated in order; the first match wins.
var currencyRules = []currencyRule{
	{model.CurrencyUSD, markerRule(containsUSDSign, "(usd)")},
	{model.CurrencyEUR, markerRule(containsFunc("€"), "(eur)")},
	{model.CurrencyGBP, markerRule(containsFunc("£"), "(gbp)")},
	{model.CurrencyCNY, markerRule(containsFunc("¥"), "(cny)")},
	{model.CurrencyHKD, markerRule(containsFunc("HK$"), "(hkd)")},
}

func markerRule(value func(string) bool, suffix string) func(string, []string) bool {
	return func(header string, values []string) bool {
		if strings.Contains(strings.ToLower(header), suffix) {
			return true
		}
		for _, v := range values {
			if value(v) {
				return true
			}
		}
		return false
	}
}

func containsFunc(marker string) func(string) bool {
	return func(value string) bool {
		return strings.Contains(value, marker)
	}
}

// containsUSDSign matches a "$" that is not part of "HK$".
func containsUSDSign(value string) bool {
	for i := strings.IndexByte(value, '$'); i >= 0; {
		if i < 2 || value[i-2:i] != "HK" {
			return true
		}
		next := strings.IndexByte(value[i+1:], '$')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return false
}

// DetectCurrency picks the revenue currency from the header label and the
// raw revenue values.
func DetectCurrency(header string, values []string) (model.Currency, bool) {
	for _, rule := range currencyRules {
		if rule.matches(header, values) {
			return rule.currency, true
		}
	}
	return "", false
}

// Conversion is the revenue-normalized table.
type Conversion struct {
	// Currency is the detected source currency, empty when no marker was found.
	Currency model.Currency
	Rate     model.ExchangeRate
	Rows     []model.ConvertedRow
}

type CurrencyResolver struct {
	rates  RateLookup
	logger log.Logger
}

func NewCurrencyResolver(rates RateLookup, logger log.Logger) *CurrencyResolver {
	if logger == nil {
		logger = log.NoOp()
	}
	return &CurrencyResolver{rates: rates, logger: logger}
}

// Convert detects the revenue currency and expresses every revenue value in
// the reference currency, rounded to two places.
func (r *CurrencyResolver) Convert(ctx context.Context, table model.Validated, refresh bool) (Conversion, error) {
	values := make([]string, len(table.Rows))
	for i, row := range table.Rows {
		values[i] = row.Revenue
	}

	conversion := Conversion{Rows: make([]model.ConvertedRow, 0, len(table.Rows))}
	currency, detected := DetectCurrency(table.RevenueColumn, values)
	if detected {
		rate, err := r.rates.Lookup(ctx, currency, refresh)
		if err != nil {
			return Conversion{}, apperrors.NewCurrencyError(fmt.Sprintf("exchange rate for %s", currency), err)
		}
		conversion.Currency = currency
		conversion.Rate = rate
	} else {
		r.logger.Warn("revenue currency not detected, values kept unconverted",
			log.String("column", table.RevenueColumn))
	}

	for _, row := range table.Rows {
		amount, err := parseRevenue(row.Revenue)
		if err != nil {
			return Conversion{}, apperrors.NewCurrencyError(
				fmt.Sprintf("revenue %q for %s (%s)", row.Revenue, row.App, row.Platform), err)
		}
		if detected {
			amount = amount.Mul(conversion.Rate.Rate).Round(2)
		}
		conversion.Rows = append(conversion.Rows, model.ConvertedRow{
			Date:        row.Date,
			App:         row.App,
			Platform:    row.Platform,
			Requests:    row.Requests,
			Impressions: row.Impressions,
			Revenue:     amount,
		})
	}
	return conversion, nil
}

// parseRevenue keeps only digits and dots before parsing.
func parseRevenue(value string) (decimal.Decimal, error) {
	stripped := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, value)
	if stripped == "" {
		return decimal.Zero, fmt.Errorf("no digits in %q", value)
	}
	return decimal.NewFromString(stripped)
}
