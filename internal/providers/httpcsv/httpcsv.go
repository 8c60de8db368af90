package httpcsv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"adreport/internal/log"
	"adreport/internal/providers"
)

const (
	defaultTimeoutSeconds = 20
	defaultUserAgent      = "adreport/0.1"
	defaultMaxBodyBytes   = 32 << 20
)

type Config struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
}

type Provider struct {
	config Config
	client *http.Client
	logger log.Logger
}

func New(logger log.Logger) (*Provider, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg, logger)
}

func NewWithConfig(cfg Config, logger log.Logger) (*Provider, error) {
	if cfg.Timeout < 0 {
		return nil, errors.New("httpcsv: timeout must not be negative")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeoutSeconds * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if logger == nil {
		logger = log.NoOp()
	}
	return &Provider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		UserAgent: getenv("ADREPORT_FETCH_USER_AGENT", defaultUserAgent),
	}
	seconds, err := getenvInt("ADREPORT_FETCH_TIMEOUT_SECONDS", defaultTimeoutSeconds)
	if err != nil {
		return Config{}, err
	}
	cfg.Timeout = time.Duration(seconds) * time.Second
	return cfg, nil
}

func (p *Provider) Name() string {
	return "httpcsv"
}

func (p *Provider) Fetch(ctx context.Context, url string) ([]byte, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("httpcsv: url is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/csv, text/plain, */*")
	if p.config.UserAgent != "" {
		req.Header.Set("User-Agent", p.config.UserAgent)
	}

	started := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.config.MaxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > p.config.MaxBodyBytes {
		return nil, fmt.Errorf("httpcsv: response exceeds %s", humanize.IBytes(uint64(p.config.MaxBodyBytes)))
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("httpcsv: request failed (%s): %s", resp.Status, strings.TrimSpace(string(body)))
	}

	p.logger.Debug("report fetched",
		log.String("url", url),
		log.String("size", humanize.Bytes(uint64(len(body)))),
		log.Duration("elapsed", time.Since(started)),
	)
	return body, nil
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("httpcsv: %s: %w", key, err)
	}
	return parsed, nil
}

var _ providers.ReportFetcher = (*Provider)(nil)
