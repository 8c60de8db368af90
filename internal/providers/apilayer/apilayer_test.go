package apilayer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adreport/internal/model"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc, key string) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewWithConfig(Config{BaseURL: server.URL, APIKey: key})
	require.NoError(t, err)
	return p
}

func TestQuote(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/exchangerates_data/convert", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("apikey"))
		assert.Equal(t, "USD", r.URL.Query().Get("to"))
		assert.Equal(t, "EUR", r.URL.Query().Get("from"))
		assert.Equal(t, "1", r.URL.Query().Get("amount"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"query":{"from":"EUR","to":"USD","amount":1},"result":1.0835}`))
	}, "secret")

	rate, err := p.Quote(context.Background(), model.CurrencyEUR, model.CurrencyUSD, decimal.NewFromInt(1))
	require.NoError(t, err)
	require.Equal(t, "1.0835", rate.String())
}

func TestQuote_MissingKey(t *testing.T) {
	var calls int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}, "")

	_, err := p.Quote(context.Background(), model.CurrencyEUR, model.CurrencyUSD, decimal.NewFromInt(1))
	require.ErrorIs(t, err, ErrMissingAPIKey)
	require.Zero(t, atomic.LoadInt32(&calls))
}

func TestQuote_Unsuccessful(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":402,"info":"invalid from currency"}}`))
	}, "secret")

	_, err := p.Quote(context.Background(), model.Currency("XXX"), model.CurrencyUSD, decimal.NewFromInt(1))
	require.ErrorContains(t, err, "invalid from currency")
}

func TestQuote_HTTPError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}, "secret")

	_, err := p.Quote(context.Background(), model.CurrencyGBP, model.CurrencyUSD, decimal.NewFromInt(1))
	require.ErrorContains(t, err, "401")
}

func TestQuote_RetriesTooManyRequests(t *testing.T) {
	var calls int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"result":0.1282}`))
	}, "secret")

	rate, err := p.Quote(context.Background(), model.CurrencyHKD, model.CurrencyUSD, decimal.NewFromInt(1))
	require.NoError(t, err)
	require.Equal(t, "0.1282", rate.String())
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestQuote_GivesUpOnLongRetryAfter(t *testing.T) {
	var calls int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "86400")
		w.WriteHeader(http.StatusTooManyRequests)
	}, "secret")

	started := time.Now()
	_, err := p.Quote(context.Background(), model.CurrencyEUR, model.CurrencyUSD, decimal.NewFromInt(1))
	require.ErrorContains(t, err, "429")
	require.ErrorContains(t, err, "exceeds")
	require.Less(t, time.Since(started), 5*time.Second)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNewWithConfig_MaxRetryWaitDefaultsToTimeout(t *testing.T) {
	p, err := NewWithConfig(Config{Timeout: 3 * time.Second})
	require.NoError(t, err)
	require.Equal(t, 3*time.Second, p.config.MaxRetryWait)

	p, err = NewWithConfig(Config{Timeout: 3 * time.Second, MaxRetryWait: time.Minute})
	require.NoError(t, err)
	require.Equal(t, time.Minute, p.config.MaxRetryWait)
}

func TestParseRetryAfter(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	require.Zero(t, parseRetryAfter(resp))
	resp.Header.Set("Retry-After", "3")
	require.Equal(t, int64(3), int64(parseRetryAfter(resp).Seconds()))
	require.Zero(t, parseRetryAfter(nil))
}
