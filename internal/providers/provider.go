package providers

import (
	"context"

	"github.com/shopspring/decimal"

	"adreport/internal/model"
)

// ReportFetcher downloads the raw daily report published at url.
type ReportFetcher interface {
	Name() string
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// RateQuoter converts amount of from into to at the current market rate.
type RateQuoter interface {
	Name() string
	Quote(ctx context.Context, from, to model.Currency, amount decimal.Decimal) (decimal.Decimal, error)
}
