package report

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	apperrors "adreport/internal/errors"
	"adreport/internal/log"
	"adreport/internal/metric"
	"adreport/internal/model"
)

const reportHeader = "Date,App,Platform,Requests,Impressions,Revenue"

type pipelineFixture struct {
	fetcher  *stubFetcher
	sink     *recordingSink
	quoter   *stubQuoter
	metrics  *metric.Metrics
	pipeline *Pipeline
}

func newPipelineFixture(t *testing.T, body string) *pipelineFixture {
	t.Helper()

	directory := memoryDirectory{
		"SuperNetwork": {ID: 1, Name: "SuperNetwork", URLTemplate: "https://reports.test/supernetwork/{}.csv", DateFormat: "%Y-%m-%d"},
		"AdUmbrella":   {ID: 2, Name: "AdUmbrella", URLTemplate: "https://reports.test/adumbrella-{}.csv", DateFormat: "%-d_%-m_%Y"},
		"Broken":       {ID: 3, Name: "Broken", URLTemplate: "https://reports.test/{}.csv", DateFormat: "%Q"},
	}
	rateStore := newMemoryRates(
		model.ExchangeRate{Currency: model.CurrencyUSD, Rate: decimal.NewFromInt(1), UpdatedAt: fixedNow()},
		model.ExchangeRate{Currency: model.CurrencyEUR, Rate: decimal.RequireFromString("1.10"), UpdatedAt: fixedNow()},
	)
	quoter := &stubQuoter{rate: decimal.RequireFromString("1.5")}
	metrics, err := metric.NewMetrics()
	require.NoError(t, err)

	f := &pipelineFixture{
		fetcher: &stubFetcher{body: body},
		sink:    &recordingSink{},
		quoter:  quoter,
		metrics: metrics,
	}
	f.pipeline, err = NewPipeline(PipelineConfig{
		Directory: directory,
		Fetcher:   f.fetcher,
		Rates:     NewRates(rateStore, quoter, RatesOptions{Logger: log.NoOp(), Now: fixedNow}),
		Sink:      f.sink,
		Validator: NewValidator(testApps, testPlatforms, log.NoOp()),
		Logger:    log.NoOp(),
		Metrics:   metrics,
		Now:       fixedNow,
	})
	require.NoError(t, err)
	return f
}

func TestNewPipeline_RequiresCollaborators(t *testing.T) {
	_, err := NewPipeline(PipelineConfig{})
	require.Error(t, err)
}

func TestPipeline_USDRowPassesThrough(t *testing.T) {
	f := newPipelineFixture(t, csvReport(reportHeader, "15/09/2017,Talking Ginger,iOS,8934,248,$1.74"))

	result, err := f.pipeline.Run(context.Background(), Request{AdNetwork: "SuperNetwork", Date: "2017-09-15", Save: true})
	require.NoError(t, err)
	require.True(t, result.Valid())
	require.True(t, result.Saved)
	require.Equal(t, model.CurrencyUSD, result.Currency)
	require.Equal(t, []string{"https://reports.test/supernetwork/2017-09-15.csv"}, f.fetcher.urls)

	require.Len(t, result.Rows, 1)
	row := result.Rows[0]
	require.Equal(t, time.Date(2017, 9, 15, 0, 0, 0, 0, time.UTC), row.Date)
	require.Equal(t, "Talking Ginger", row.App)
	require.Equal(t, "iOS", row.Platform)
	require.Equal(t, int64(8934), row.Requests)
	require.Equal(t, int64(248), row.Impressions)
	require.Equal(t, "1.74", row.Revenue.StringFixed(2))

	require.Len(t, f.sink.reports, 1)
	require.Equal(t, int64(1), f.sink.reports[0].NetworkID)
	require.NotNil(t, f.sink.reports[0].CurrencyID)
	require.Equal(t, int64(1), *f.sink.reports[0].CurrencyID)
}

func TestPipeline_DropsImpressionsAboveRequests(t *testing.T) {
	f := newPipelineFixture(t, csvReport(reportHeader,
		"15/09/2017,Talking Tom,iOS,100,500,$1.00",
		"15/09/2017,Talking Ben,iOS,300,200,$2.00",
		"15/09/2017,Talking Ben,Android,300,300,$3.00",
	))

	result, err := f.pipeline.Run(context.Background(), Request{AdNetwork: "SuperNetwork", Date: "2017-09-15", Save: true})
	require.NoError(t, err)
	require.False(t, result.Valid())
	require.Len(t, result.Rows, 2)
	for _, row := range result.Rows {
		require.Equal(t, "Talking Ben", row.App)
	}
	require.Len(t, f.sink.reports, 2)
}

func TestPipeline_FutureDateFailsWithoutFetch(t *testing.T) {
	f := newPipelineFixture(t, csvReport(reportHeader))

	tomorrow := fixedNow().AddDate(0, 0, 1).Format(model.StorageDateLayout)
	result, err := f.pipeline.Run(context.Background(), Request{AdNetwork: "SuperNetwork", Date: tomorrow, Save: true})
	require.Nil(t, result)
	require.Equal(t, apperrors.CategoryRequest, apperrors.GetCategory(err))
	require.Equal(t, apperrors.CodeFutureDate, apperrors.GetCode(err))
	require.Equal(t, apperrors.StageValidateDate, apperrors.GetStage(err))
	require.Zero(t, f.fetcher.calls())
}

func TestPipeline_ConvertsEuro(t *testing.T) {
	f := newPipelineFixture(t, csvReport(
		"Date,App,Platform,Requests,Impressions,Revenue (eur)",
		"15/09/2017,Talking Angela,Android,1000,900,€10.00",
	))

	result, err := f.pipeline.Run(context.Background(), Request{AdNetwork: "AdUmbrella", Date: "2017-09-15", Save: true})
	require.NoError(t, err)
	require.Equal(t, model.CurrencyEUR, result.Currency)
	require.Equal(t, []string{"https://reports.test/adumbrella-15_9_2017.csv"}, f.fetcher.urls)
	require.Len(t, result.Rows, 1)
	require.Equal(t, "11.00", result.Rows[0].Revenue.StringFixed(2))
	require.Equal(t, int64(2), *f.sink.reports[0].CurrencyID)
	require.Zero(t, f.quoter.count())
}

func TestPipeline_AggregatesAndDropsTotals(t *testing.T) {
	f := newPipelineFixture(t, csvReport(
		"Day,Application,OS,Reqs,Imps,Revenue",
		"15/09/2017,Talking Tom,iOS,10,5,$1.00",
		"15/09/2017,Talking Tom,iOS,20,5,$2.50",
		"15/09/2017,Talking Tom,Android,5,5,$0.25",
		"Total,,,35,15,$3.75",
	))

	result, err := f.pipeline.Run(context.Background(), Request{AdNetwork: "SuperNetwork", Date: "2017-09-15", Save: true})
	require.NoError(t, err)
	require.True(t, result.Valid())
	require.Len(t, result.Rows, 2)
	require.Equal(t, "Android", result.Rows[0].Platform)
	require.Equal(t, int64(30), result.Rows[1].Requests)
	require.Equal(t, "3.50", result.Rows[1].Revenue.StringFixed(2))
}

func TestPipeline_NoSaveReturnsRawTable(t *testing.T) {
	f := newPipelineFixture(t, csvReport("Day,Application,OS,Reqs,Imps,Revenue", "15/09/2017,Talking Tom,iOS,10,5,$1.00"))

	result, err := f.pipeline.Run(context.Background(), Request{AdNetwork: "SuperNetwork", Date: "2017-09-15"})
	require.NoError(t, err)
	require.False(t, result.Saved)
	require.Equal(t, "Day", result.Raw.Columns[0])
	require.Equal(t, 1, result.Raw.Len())
	require.Empty(t, result.Rows)
	require.Empty(t, f.sink.reports)
}

func TestPipeline_TerminalErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		fetchErr error
		sinkErr  error
		req      Request
		category apperrors.Category
		code     string
		stage    apperrors.Stage
	}{
		{
			name:     "bad date",
			req:      Request{AdNetwork: "SuperNetwork", Date: "15/09/2017", Save: true},
			category: apperrors.CategoryRequest,
			code:     apperrors.CodeInvalidDate,
			stage:    apperrors.StageValidateDate,
		},
		{
			name:     "unknown network",
			req:      Request{AdNetwork: "Nope", Date: "2017-09-15", Save: true},
			category: apperrors.CategoryNetwork,
			code:     apperrors.CodeUnknownNetwork,
			stage:    apperrors.StageResolveNetwork,
		},
		{
			name:     "bad date format",
			req:      Request{AdNetwork: "Broken", Date: "2017-09-15", Save: true},
			category: apperrors.CategoryNetwork,
			code:     apperrors.CodeInvalidDateFormat,
			stage:    apperrors.StageFormatDate,
		},
		{
			name:     "fetch failure",
			fetchErr: errBoom,
			req:      Request{AdNetwork: "SuperNetwork", Date: "2017-09-15", Save: true},
			category: apperrors.CategoryFetch,
			code:     apperrors.CodeFetchFailed,
			stage:    apperrors.StageFetch,
		},
		{
			name:     "wrong column count",
			body:     csvReport("Date,App,Revenue", "15/09/2017,Talking Tom,$1"),
			req:      Request{AdNetwork: "SuperNetwork", Date: "2017-09-15", Save: true},
			category: apperrors.CategorySchema,
			code:     apperrors.CodeColumnMismatch,
			stage:    apperrors.StageSchemaNormalize,
		},
		{
			name:     "no digits in revenue",
			body:     csvReport(reportHeader, "15/09/2017,Talking Tom,iOS,10,5,$"),
			req:      Request{AdNetwork: "SuperNetwork", Date: "2017-09-15", Save: true},
			category: apperrors.CategoryCurrency,
			code:     apperrors.CodeInvalidRevenue,
			stage:    apperrors.StageCurrencyResolve,
		},
		{
			name:     "persist failure",
			body:     csvReport(reportHeader, "15/09/2017,Talking Tom,iOS,10,5,$1"),
			sinkErr:  errBoom,
			req:      Request{AdNetwork: "SuperNetwork", Date: "2017-09-15", Save: true},
			category: apperrors.CategoryPersist,
			code:     apperrors.CodeUpsertFailed,
			stage:    apperrors.StagePersist,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPipelineFixture(t, tt.body)
			f.fetcher.err = tt.fetchErr
			f.sink.err = tt.sinkErr

			result, err := f.pipeline.Run(context.Background(), tt.req)
			require.Nil(t, result)
			require.Equal(t, tt.category, apperrors.GetCategory(err))
			require.Equal(t, tt.code, apperrors.GetCode(err))
			require.Equal(t, tt.stage, apperrors.GetStage(err))
		})
	}
}

func TestPipeline_MixedDateFormatsAreSaved(t *testing.T) {
	f := newPipelineFixture(t, csvReport(reportHeader,
		"15/09/2017,Talking Tom,iOS,10,5,$1.00",
		"2017.09.15,Talking Tom,iOS,20,5,$2.00",
		"15/9/2017,Talking Tom,iOS,30,5,$3.00",
	))

	result, err := f.pipeline.Run(context.Background(), Request{AdNetwork: "SuperNetwork", Date: "2017-09-15", Save: true})
	require.NoError(t, err)
	require.True(t, result.Saved)
	require.False(t, result.Valid())

	check, ok := result.Diagnostics.Get(CheckDate)
	require.True(t, ok)
	require.False(t, check.Passed)
	require.Contains(t, check.Details, `date "2017.09.15" not readable, grouped under 2017-09-15`)

	require.Len(t, result.Rows, 1)
	require.Equal(t, time.Date(2017, 9, 15, 0, 0, 0, 0, time.UTC), result.Rows[0].Date)
	require.Equal(t, int64(60), result.Rows[0].Requests)
	require.Equal(t, "6.00", result.Rows[0].Revenue.StringFixed(2))
	require.Len(t, f.sink.reports, 1)
}

func TestPipeline_MetricsUseResolvedNetworkName(t *testing.T) {
	f := newPipelineFixture(t, csvReport(reportHeader, "15/09/2017,Talking Tom,iOS,10,5,$1.00"))
	ctx := context.Background()

	_, err := f.pipeline.Run(ctx, Request{AdNetwork: "Nope", Date: "2017-09-15", Save: true})
	require.Error(t, err)
	_, err = f.pipeline.Run(ctx, Request{AdNetwork: "made-up-<script>", Date: "2017-09-15", Save: true})
	require.Error(t, err)
	_, err = f.pipeline.Run(ctx, Request{AdNetwork: "SuperNetwork", Date: "2017-09-15", Save: true})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	f.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	require.NotContains(t, body, `network="Nope"`)
	require.NotContains(t, body, "made-up")
	require.Contains(t, body, `adreport_pipeline_runs_total{network="unknown",outcome="NETWORK"} 2`)
	require.Contains(t, body, `adreport_pipeline_runs_total{network="SuperNetwork",outcome="saved"} 1`)
}
