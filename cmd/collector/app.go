package main

import (
	"strings"

	"adreport/internal/config"
	"adreport/internal/log"
	"adreport/internal/metric"
	"adreport/internal/providers/apilayer"
	"adreport/internal/providers/httpcsv"
	"adreport/internal/report"
	"adreport/internal/store"
	"adreport/internal/store/sqlite"
)

// application holds the wired collaborators shared by the run and serve commands.
type application struct {
	cfg      *config.Config
	logger   log.Logger
	metrics  *metric.Metrics
	store    store.Store
	pipeline *report.Pipeline
}

func loadConfig(configPath, dbPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dbPath) != "" {
		cfg.Database.Path = dbPath
	}
	return cfg, nil
}

func newApp(configPath, dbPath string) (*application, error) {
	cfg, err := loadConfig(configPath, dbPath)
	if err != nil {
		return nil, err
	}
	logger := log.NewWithLevel(cfg.Logging.Level)

	metrics, err := metric.NewMetrics()
	if err != nil {
		return nil, err
	}

	st, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	fetcher, err := httpcsv.NewWithConfig(httpcsv.Config{
		Timeout:      cfg.Fetch.Timeout,
		UserAgent:    cfg.Fetch.UserAgent,
		MaxBodyBytes: int64(cfg.Fetch.MaxBodyMB) << 20,
	}, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	quoterCfg, err := apilayer.ConfigFromEnv()
	if err != nil {
		st.Close()
		return nil, err
	}
	if cfg.Rates.BaseURL != "" {
		quoterCfg.BaseURL = cfg.Rates.BaseURL
	}
	if cfg.Rates.APIKey != "" {
		quoterCfg.APIKey = cfg.Rates.APIKey
	}
	if cfg.Rates.Timeout > 0 {
		quoterCfg.Timeout = cfg.Rates.Timeout
	}
	quoter, err := apilayer.NewWithConfig(quoterCfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	if quoterCfg.APIKey == "" {
		logger.Warn("exchange rate api key not set, stale rates will not be refreshed")
	}

	rates := report.NewRates(st, quoter, report.RatesOptions{
		TTL:     cfg.Rates.TTL,
		Logger:  logger,
		Metrics: metrics,
	})
	pipeline, err := report.NewPipeline(report.PipelineConfig{
		Directory: store.NewCachedDirectory(st, cfg.Cache.Size, cfg.Cache.TTL),
		Fetcher:   fetcher,
		Rates:     rates,
		Sink:      st,
		Validator: report.NewValidator(cfg.Validation.Apps, cfg.Validation.Platforms, logger),
		Schema:    report.SchemaOptions{KeepTotals: cfg.Validation.KeepTotals},
		Logger:    logger,
		Metrics:   metrics,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	return &application{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		store:    st,
		pipeline: pipeline,
	}, nil
}

func (a *application) Close() error {
	_ = a.logger.Sync()
	return a.store.Close()
}
