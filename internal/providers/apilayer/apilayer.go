package apilayer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"adreport/internal/model"
	"adreport/internal/providers"
)

const (
	defaultBaseURL        = "https://api.apilayer.com/"
	defaultConvertPath    = "exchangerates_data/convert"
	defaultAPIKeyHeader   = "apikey"
	defaultTimeoutSeconds = 10
	defaultUserAgent      = "adreport/0.1"
	defaultMaxRetries     = 1
)

var ErrMissingAPIKey = errors.New("apilayer: api key is required (APILAYER_API_KEY)")

type Config struct {
	BaseURL      string
	ConvertPath  string
	APIKey       string
	APIKeyHeader string
	Timeout      time.Duration
	UserAgent    string
	MaxRetries   int
	// MaxRetryWait caps the Retry-After delay honored on 429. A longer
	// delay fails the quote instead. Defaults to Timeout.
	MaxRetryWait time.Duration
}

type Provider struct {
	config Config
	client *http.Client
}

func New() (*Provider, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg)
}

func NewWithConfig(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("apilayer: base url: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/"
	if strings.TrimSpace(cfg.ConvertPath) == "" {
		cfg.ConvertPath = defaultConvertPath
	}
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = defaultAPIKeyHeader
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeoutSeconds * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxRetryWait <= 0 {
		cfg.MaxRetryWait = cfg.Timeout
	}
	return &Provider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		BaseURL:      getenv("APILAYER_BASE_URL", defaultBaseURL),
		ConvertPath:  getenv("APILAYER_CONVERT_PATH", defaultConvertPath),
		APIKey:       strings.TrimSpace(os.Getenv("APILAYER_API_KEY")),
		APIKeyHeader: getenv("APILAYER_API_KEY_HEADER", defaultAPIKeyHeader),
		UserAgent:    getenv("APILAYER_USER_AGENT", defaultUserAgent),
	}
	cfg.Timeout = time.Duration(getenvInt("APILAYER_TIMEOUT_SECONDS", defaultTimeoutSeconds)) * time.Second
	cfg.MaxRetries = getenvInt("APILAYER_MAX_RETRIES", defaultMaxRetries)
	cfg.MaxRetryWait = time.Duration(getenvInt("APILAYER_MAX_RETRY_WAIT_SECONDS", 0)) * time.Second
	return cfg, nil
}

func (p *Provider) Name() string {
	return "apilayer"
}

type convertResponse struct {
	Success bool             `json:"success"`
	Result  *decimal.Decimal `json:"result"`
	Error   *struct {
		Code int    `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
	Message string `json:"message"`
}

func (p *Provider) Quote(ctx context.Context, from, to model.Currency, amount decimal.Decimal) (decimal.Decimal, error) {
	if strings.TrimSpace(p.config.APIKey) == "" {
		return decimal.Zero, ErrMissingAPIKey
	}
	if from == "" || to == "" {
		return decimal.Zero, errors.New("apilayer: currencies are required")
	}

	params := url.Values{}
	params.Set("to", string(to))
	params.Set("from", string(from))
	params.Set("amount", amount.String())

	body, err := p.doRequestWithRetry(ctx, p.config.ConvertPath, params)
	if err != nil {
		return decimal.Zero, err
	}

	var payload convertResponse
	decoder := json.NewDecoder(bytes.NewReader(body))
	if err := decoder.Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("apilayer: decode response: %w", err)
	}
	if !payload.Success {
		if payload.Error != nil {
			return decimal.Zero, fmt.Errorf("apilayer: conversion failed (%d): %s", payload.Error.Code, payload.Error.Info)
		}
		if payload.Message != "" {
			return decimal.Zero, fmt.Errorf("apilayer: conversion failed: %s", payload.Message)
		}
		return decimal.Zero, errors.New("apilayer: conversion failed")
	}
	if payload.Result == nil {
		return decimal.Zero, errors.New("apilayer: response has no result")
	}
	return *payload.Result, nil
}

func (p *Provider) doRequestWithRetry(ctx context.Context, path string, params url.Values) ([]byte, error) {
	attempts := p.config.MaxRetries + 1
	for attempt := 0; ; attempt++ {
		body, status, retryAfter, err := p.doRequest(ctx, path, params)
		if err == nil {
			return body, nil
		}
		if status != http.StatusTooManyRequests || attempt >= attempts-1 {
			return nil, err
		}
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		if retryAfter > p.config.MaxRetryWait {
			return nil, fmt.Errorf("apilayer: retry after %s exceeds %s: %w", retryAfter, p.config.MaxRetryWait, err)
		}
		if err := sleepWithContext(ctx, retryAfter); err != nil {
			return nil, err
		}
	}
}

func (p *Provider) doRequest(ctx context.Context, path string, params url.Values) ([]byte, int, time.Duration, error) {
	endpoint := p.config.BaseURL + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(p.config.APIKeyHeader, p.config.APIKey)
	if p.config.UserAgent != "" {
		req.Header.Set("User-Agent", p.config.UserAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, 0, err
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, resp.StatusCode, parseRetryAfter(resp), fmt.Errorf("apilayer: request failed (%s): %s", resp.Status, strings.TrimSpace(string(body)))
	}

	return body, resp.StatusCode, 0, nil
}

func parseRetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	value := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := time.Parse(http.TimeFormat, value); err == nil {
		if wait := time.Until(when); wait > 0 {
			return wait
		}
	}
	return 0
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

var _ providers.RateQuoter = (*Provider)(nil)
