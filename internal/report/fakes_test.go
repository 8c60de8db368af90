package report

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"adreport/internal/model"
	"adreport/internal/store"
)

type memoryDirectory map[string]model.AdNetwork

func (d memoryDirectory) ResolveAdNetwork(ctx context.Context, name string) (model.AdNetwork, error) {
	network, ok := d[name]
	if !ok {
		return model.AdNetwork{}, store.ErrNotFound
	}
	return network, nil
}

type stubFetcher struct {
	mu   sync.Mutex
	body string
	err  error
	urls []string
}

func (f *stubFetcher) Name() string { return "stub" }

func (f *stubFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.body), nil
}

func (f *stubFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.urls)
}

type memoryRates struct {
	mu      sync.Mutex
	entries map[model.Currency]model.ExchangeRate
	writes  int
}

func newMemoryRates(entries ...model.ExchangeRate) *memoryRates {
	m := &memoryRates{entries: make(map[model.Currency]model.ExchangeRate)}
	for i, entry := range entries {
		entry.ID = int64(i + 1)
		m.entries[entry.Currency] = entry
	}
	return m
}

func (m *memoryRates) ReadRate(ctx context.Context, currency model.Currency) (model.ExchangeRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[currency]
	if !ok {
		return model.ExchangeRate{}, store.ErrNotFound
	}
	return entry, nil
}

func (m *memoryRates) WriteRate(ctx context.Context, currency model.Currency, rate decimal.Decimal, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[currency]
	if !ok {
		return store.ErrNotFound
	}
	entry.Rate = rate
	entry.UpdatedAt = updatedAt
	m.entries[currency] = entry
	m.writes++
	return nil
}

type stubQuoter struct {
	mu    sync.Mutex
	rate  decimal.Decimal
	err   error
	calls int
}

func (q *stubQuoter) Name() string { return "stub" }

func (q *stubQuoter) Quote(ctx context.Context, from, to model.Currency, amount decimal.Decimal) (decimal.Decimal, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.err != nil {
		return decimal.Zero, q.err
	}
	return q.rate.Mul(amount), nil
}

func (q *stubQuoter) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

type recordingSink struct {
	reports []model.DailyReport
	err     error
}

func (s *recordingSink) UpsertDailyReports(ctx context.Context, reports []model.DailyReport) error {
	if s.err != nil {
		return s.err
	}
	s.reports = append(s.reports, reports...)
	return nil
}

var errBoom = errors.New("boom")

func csvReport(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

var (
	testApps      = []string{"Talking Tom", "Talking Angela", "Talking Ginger", "Talking Ben", "My Talking Tom"}
	testPlatforms = []string{"iOS", "Android"}
)

func fixedNow() time.Time {
	return time.Date(2017, 9, 20, 10, 0, 0, 0, time.UTC)
}
