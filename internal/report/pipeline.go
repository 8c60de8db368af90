package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "adreport/internal/errors"
	"adreport/internal/log"
	"adreport/internal/metric"
	"adreport/internal/model"
	"adreport/internal/providers"
	"adreport/internal/store"
)

// Request asks for one network's report on one day.
type Request struct {
	AdNetwork string `json:"ad_network"`
	Date      string `json:"date"`
	// Update allows stale exchange rates to be refreshed from the quoter.
	Update bool `json:"update"`
	// Save runs normalization and persistence; when false the fetched table
	// is returned as received.
	Save bool `json:"save"`
}

type Result struct {
	Network     model.AdNetwork
	Date        time.Time
	URL         string
	Saved       bool
	Raw         model.RawTable
	Diagnostics Diagnostics
	Currency    model.Currency
	Rows        []model.ReportRow
}

// Valid reports whether every validation check passed.
func (r *Result) Valid() bool {
	return r.Diagnostics.Valid()
}

type PipelineConfig struct {
	Directory store.Directory
	Fetcher   providers.ReportFetcher
	Rates     RateLookup
	Sink      store.ReportSink
	Validator *Validator
	Schema    SchemaOptions
	Logger    log.Logger
	Metrics   *metric.Metrics
	Now       func() time.Time
}

// Pipeline drives a request from date validation to persistence.
type Pipeline struct {
	directory store.Directory
	fetcher   providers.ReportFetcher
	currency  *CurrencyResolver
	sink      store.ReportSink
	validator *Validator
	schema    SchemaOptions
	logger    log.Logger
	metrics   *metric.Metrics
	now       func() time.Time
}

func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Directory == nil {
		return nil, errors.New("report: directory is required")
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("report: fetcher is required")
	}
	if cfg.Rates == nil {
		return nil, errors.New("report: rates are required")
	}
	if cfg.Sink == nil {
		cfg.Sink = &store.NopStore{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New()
	}
	if cfg.Validator == nil {
		cfg.Validator = NewValidator(nil, nil, cfg.Logger)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{
		directory: cfg.Directory,
		fetcher:   cfg.Fetcher,
		currency:  NewCurrencyResolver(cfg.Rates, cfg.Logger),
		sink:      cfg.Sink,
		validator: cfg.Validator,
		schema:    cfg.Schema,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		now:       cfg.Now,
	}, nil
}

// unknownNetwork labels metrics for runs whose network was never resolved.
const unknownNetwork = "unknown"

func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	logger := p.logger.With(log.String("network", req.AdNetwork), log.String("date", req.Date))
	result, label, err := p.run(ctx, req, logger)
	if err != nil {
		logger.Error("daily report failed",
			log.String("stage", string(apperrors.GetStage(err))),
			log.Err(err),
		)
		p.metrics.RunFinished(label, string(apperrors.GetCategory(err)))
		return nil, err
	}
	outcome := "saved"
	if !result.Saved {
		outcome = "fetched"
	}
	p.metrics.RunFinished(label, outcome)
	return result, nil
}

// run returns the metrics label of the resolved network alongside the
// outcome. The label stays unknownNetwork until resolution succeeds.
func (p *Pipeline) run(ctx context.Context, req Request, logger log.Logger) (*Result, string, error) {
	label := unknownNetwork
	started := p.now()
	stage := func(s apperrors.Stage) {
		now := p.now()
		p.metrics.ObserveStage(string(s), now.Sub(started))
		started = now
	}

	// VALIDATE_DATE_NOT_FUTURE
	day, err := ParseRequestDate(req.Date)
	if err != nil {
		return nil, label, apperrors.Wrap(apperrors.CategoryRequest, apperrors.CodeInvalidDate,
			fmt.Sprintf("date %q is not YYYY-MM-DD", req.Date), err).WithStage(apperrors.StageValidateDate)
	}
	if IsFutureDate(day, p.now()) {
		return nil, label, apperrors.New(apperrors.CategoryRequest, apperrors.CodeFutureDate,
			fmt.Sprintf("date %s is in the future", req.Date)).WithStage(apperrors.StageValidateDate)
	}
	stage(apperrors.StageValidateDate)

	// RESOLVE_AD_NETWORK
	network, err := p.directory.ResolveAdNetwork(ctx, req.AdNetwork)
	if err != nil {
		return nil, label, apperrors.Wrap(apperrors.CategoryNetwork, apperrors.CodeUnknownNetwork,
			fmt.Sprintf("ad network %q not found", req.AdNetwork), err).WithStage(apperrors.StageResolveNetwork)
	}
	label = network.Name
	stage(apperrors.StageResolveNetwork)

	// FORMAT_DATE_FOR_NETWORK
	formatted, err := FormatDate(day, network.DateFormat)
	if err != nil {
		return nil, label, apperrors.Wrap(apperrors.CategoryNetwork, apperrors.CodeInvalidDateFormat,
			fmt.Sprintf("ad network %q has an unusable date format", network.Name), err).WithStage(apperrors.StageFormatDate)
	}
	url := ExpandURL(network.URLTemplate, formatted)
	stage(apperrors.StageFormatDate)

	// FETCH
	body, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, label, apperrors.Wrap(apperrors.CategoryFetch, apperrors.CodeFetchFailed,
			"report was not read from url", err).WithStage(apperrors.StageFetch)
	}
	raw, err := ParseCSV(body)
	if err != nil {
		return nil, label, err
	}
	logger.Info("report fetched", log.String("url", url), log.Int("rows", raw.Len()))
	stage(apperrors.StageFetch)

	result := &Result{Network: network, Date: day, URL: url}
	if !req.Save {
		result.Raw = raw
		return result, label, nil
	}

	// SCHEMA_NORMALIZE
	if !HasCanonicalLabels(raw.Columns) {
		logger.Warn("columns are not named correctly", log.Strings("columns", raw.Columns))
	}
	table, err := NormalizeSchema(raw, p.schema)
	if err != nil {
		return nil, label, err
	}
	if table.Len() < raw.Len() {
		logger.Warn("last row is totals, dropped")
	}
	stage(apperrors.StageSchemaNormalize)

	// ROW_VALIDATE
	validated, diagnostics := p.validator.Validate(table)
	for _, check := range diagnostics {
		p.metrics.Dropped(check.Check, check.Dropped)
	}
	if n := len(validated.Rows); n > 0 && isTotalsLabel(validated.Rows[n-1].Date) {
		validated.Rows = validated.Rows[:n-1]
	}
	result.Diagnostics = diagnostics
	if !diagnostics.Valid() {
		logger.Warn("report is not valid, continuing with repaired rows", log.Int("rows", len(validated.Rows)))
	}
	stage(apperrors.StageRowValidate)

	// CURRENCY_RESOLVE
	conversion, err := p.currency.Convert(ctx, validated, req.Update)
	if err != nil {
		return nil, label, err
	}
	result.Currency = conversion.Currency
	stage(apperrors.StageCurrencyResolve)

	// AGGREGATE
	rows, unresolved, err := Aggregate(conversion.Rows, day)
	if err != nil {
		return nil, label, err
	}
	if len(unresolved) > 0 {
		result.Diagnostics = result.Diagnostics.withUnresolvedDates(unresolved, day)
		logger.Warn("report dates were not readable, grouped under report date",
			log.Strings("dates", unresolved))
	}
	result.Rows = rows
	stage(apperrors.StageAggregate)

	// ATTACH_KEYS
	var currencyID *int64
	if conversion.Currency != "" && conversion.Rate.ID > 0 {
		id := conversion.Rate.ID
		currencyID = &id
	}
	reports := make([]model.DailyReport, len(rows))
	for i, row := range rows {
		reports[i] = model.DailyReport{ReportRow: row, CurrencyID: currencyID, NetworkID: network.ID}
	}
	stage(apperrors.StageAttachKeys)

	// PERSIST
	if err := p.sink.UpsertDailyReports(ctx, reports); err != nil {
		return nil, label, apperrors.Wrap(apperrors.CategoryPersist, apperrors.CodeUpsertFailed,
			"daily report was not saved", err).WithStage(apperrors.StagePersist)
	}
	result.Saved = true
	stage(apperrors.StagePersist)

	logger.Info("daily report saved", log.Int("rows", len(rows)), log.String("currency", string(conversion.Currency)))
	return result, label, nil
}
