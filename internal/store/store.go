package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"adreport/internal/model"
)

var ErrNotFound = errors.New("store: not found")

// Directory resolves ad network descriptors by name.
type Directory interface {
	ResolveAdNetwork(ctx context.Context, name string) (model.AdNetwork, error)
}

// RateStore holds one exchange rate entry per currency.
type RateStore interface {
	ReadRate(ctx context.Context, currency model.Currency) (model.ExchangeRate, error)
	WriteRate(ctx context.Context, currency model.Currency, rate decimal.Decimal, updatedAt time.Time) error
}

// ReportSink persists aggregated daily reports.
type ReportSink interface {
	UpsertDailyReports(ctx context.Context, reports []model.DailyReport) error
}

type Store interface {
	Directory
	RateStore
	ReportSink
	ListDailyReports(ctx context.Context, filter ReportFilter) ([]StoredReport, error)
	SeedCurrencies(ctx context.Context, rates map[model.Currency]decimal.Decimal) error
	SeedAdNetworks(ctx context.Context, networks []model.AdNetwork) error
	Close() error
}

// ReportFilter narrows ListDailyReports; zero values match everything.
type ReportFilter struct {
	Network string
	From    time.Time
	To      time.Time
}

type StoredReport struct {
	model.DailyReport
	NetworkName string
	Currency    model.Currency
}

type NopStore struct{}

func (s *NopStore) ResolveAdNetwork(ctx context.Context, name string) (model.AdNetwork, error) {
	_ = ctx
	_ = name
	return model.AdNetwork{}, ErrNotFound
}

func (s *NopStore) ReadRate(ctx context.Context, currency model.Currency) (model.ExchangeRate, error) {
	_ = ctx
	_ = currency
	return model.ExchangeRate{}, ErrNotFound
}

func (s *NopStore) WriteRate(ctx context.Context, currency model.Currency, rate decimal.Decimal, updatedAt time.Time) error {
	_ = ctx
	_ = currency
	_ = rate
	_ = updatedAt
	return ErrNotFound
}

func (s *NopStore) UpsertDailyReports(ctx context.Context, reports []model.DailyReport) error {
	_ = ctx
	_ = reports
	return nil
}

func (s *NopStore) ListDailyReports(ctx context.Context, filter ReportFilter) ([]StoredReport, error) {
	_ = ctx
	_ = filter
	return nil, nil
}

func (s *NopStore) SeedCurrencies(ctx context.Context, rates map[model.Currency]decimal.Decimal) error {
	_ = ctx
	_ = rates
	return nil
}

func (s *NopStore) SeedAdNetworks(ctx context.Context, networks []model.AdNetwork) error {
	_ = ctx
	_ = networks
	return nil
}

func (s *NopStore) Close() error {
	return nil
}

var _ Store = (*NopStore)(nil)
