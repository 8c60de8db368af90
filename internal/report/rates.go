package report

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"adreport/internal/log"
	"adreport/internal/metric"
	"adreport/internal/model"
	"adreport/internal/providers"
	"adreport/internal/store"
)

// DefaultRateTTL is how long a cached exchange rate stays fresh.
const DefaultRateTTL = 7 * 24 * time.Hour

// RateLookup returns the multiplier that converts one unit of a currency
// into the reference currency.
type RateLookup interface {
	Lookup(ctx context.Context, currency model.Currency, refresh bool) (model.ExchangeRate, error)
}

type RatesOptions struct {
	TTL     time.Duration
	Logger  log.Logger
	Metrics *metric.Metrics
	Now     func() time.Time
}

// Rates is a cache-aside exchange rate lookup. A stale entry is refreshed
// from the quoter only when the caller asks for it; otherwise the cached
// value is served.
type Rates struct {
	store   store.RateStore
	quoter  providers.RateQuoter
	ttl     time.Duration
	logger  log.Logger
	metrics *metric.Metrics
	now     func() time.Time

	mu    sync.Mutex
	locks map[model.Currency]*sync.Mutex
}

func NewRates(rateStore store.RateStore, quoter providers.RateQuoter, opts RatesOptions) *Rates {
	if opts.TTL <= 0 {
		opts.TTL = DefaultRateTTL
	}
	if opts.Logger == nil {
		opts.Logger = log.NoOp()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Rates{
		store:   rateStore,
		quoter:  quoter,
		ttl:     opts.TTL,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
		locks:   make(map[model.Currency]*sync.Mutex),
	}
}

// unknownRate is served for currencies missing from the store.
func unknownRate(currency model.Currency) model.ExchangeRate {
	return model.ExchangeRate{
		Currency:  currency,
		Rate:      decimal.NewFromInt(1),
		UpdatedAt: time.Unix(0, 0).UTC(),
	}
}

func (r *Rates) Lookup(ctx context.Context, currency model.Currency, refresh bool) (model.ExchangeRate, error) {
	entry, err := r.store.ReadRate(ctx, currency)
	if errors.Is(err, store.ErrNotFound) {
		if currency == model.ReferenceCurrency {
			return unknownRate(currency), nil
		}
		if refresh && r.quoter != nil {
			return r.refresh(ctx, currency)
		}
		r.logger.Warn("currency not supported, using rate 1", log.String("currency", string(currency)))
		return unknownRate(currency), nil
	}
	if err != nil {
		return model.ExchangeRate{}, err
	}

	if currency == model.ReferenceCurrency || !refresh || !r.stale(entry) {
		return entry, nil
	}
	return r.refresh(ctx, currency)
}

func (r *Rates) stale(entry model.ExchangeRate) bool {
	return r.now().Sub(entry.UpdatedAt) > r.ttl
}

func (r *Rates) refresh(ctx context.Context, currency model.Currency) (model.ExchangeRate, error) {
	lock := r.lockFor(currency)
	lock.Lock()
	defer lock.Unlock()

	// Another caller may have refreshed while we waited.
	// A currency missing from the store is quoted with rate 1 as fallback.
	entry, err := r.store.ReadRate(ctx, currency)
	if errors.Is(err, store.ErrNotFound) {
		entry = unknownRate(currency)
	} else if err != nil {
		return model.ExchangeRate{}, err
	}
	if !r.stale(entry) {
		return entry, nil
	}

	if r.quoter == nil {
		r.logger.Warn("no rate quoter configured, keeping cached rate", log.String("currency", string(currency)))
		r.metrics.RateRefreshed(string(currency), "skipped")
		return entry, nil
	}

	rate, err := r.quoter.Quote(ctx, currency, model.ReferenceCurrency, decimal.NewFromInt(1))
	if err != nil {
		r.logger.Warn("exchange rate refresh failed, keeping cached rate",
			log.String("currency", string(currency)),
			log.Err(err),
		)
		r.metrics.RateRefreshed(string(currency), "failed")
		return entry, nil
	}

	updatedAt := r.now().UTC()
	if err := r.store.WriteRate(ctx, currency, rate, updatedAt); err != nil {
		r.logger.Warn("exchange rate not saved",
			log.String("currency", string(currency)),
			log.Err(err),
		)
		r.metrics.RateRefreshed(string(currency), "unsaved")
	} else {
		r.metrics.RateRefreshed(string(currency), "updated")
		r.logger.Info("exchange rate updated",
			log.String("currency", string(currency)),
			log.String("rate", rate.String()),
		)
	}

	entry.Rate = rate
	entry.UpdatedAt = updatedAt
	return entry, nil
}

func (r *Rates) lockFor(currency model.Currency) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[currency]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[currency] = lock
	}
	return lock
}

var _ RateLookup = (*Rates)(nil)
