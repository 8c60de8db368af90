package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	apperrors "adreport/internal/errors"
	"adreport/internal/model"
)

type bucketKey struct {
	date     time.Time
	app      string
	platform string
}

// Aggregate sums requests, impressions and revenue per (date, app, platform).
// The result is sorted by date, app and platform. Rows whose date cannot be
// read are grouped under fallback and their raw dates returned as unresolved.
func Aggregate(rows []model.ConvertedRow, fallback time.Time) ([]model.ReportRow, []string, error) {
	buckets := make(map[bucketKey]*model.ReportRow, len(rows))
	var unresolved []string
	seen := make(map[string]struct{})
	for _, row := range rows {
		if row.Requests < 0 || row.Impressions < 0 {
			return nil, nil, apperrors.NewAggregationError(
				fmt.Sprintf("negative counts for %s (%s)", row.App, row.Platform), nil)
		}
		day, err := parseReportDate(row.Date)
		if err != nil {
			day = fallback
			if _, ok := seen[row.Date]; !ok {
				seen[row.Date] = struct{}{}
				unresolved = append(unresolved, row.Date)
			}
		}
		key := bucketKey{date: day, app: row.App, platform: row.Platform}
		bucket, ok := buckets[key]
		if !ok {
			bucket = &model.ReportRow{
				Date:     day,
				App:      row.App,
				Platform: row.Platform,
				Revenue:  decimal.Zero,
			}
			buckets[key] = bucket
		}
		bucket.Requests += row.Requests
		bucket.Impressions += row.Impressions
		bucket.Revenue = bucket.Revenue.Add(row.Revenue)
	}

	out := make([]model.ReportRow, 0, len(buckets))
	for _, bucket := range buckets {
		out = append(out, *bucket)
	}
	sortReportRows(out)
	return out, unresolved, nil
}

func sortReportRows(rows []model.ReportRow) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.App != b.App {
			return a.App < b.App
		}
		return a.Platform < b.Platform
	})
}
