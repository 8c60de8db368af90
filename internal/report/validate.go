package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"adreport/internal/log"
	"adreport/internal/model"
)

// Check names reported in Diagnostics.
const (
	CheckDate        = "date"
	CheckCounts      = "counts"
	CheckAppPlatform = "app_platform"
	CheckRevenueSign = "revenue_sign"
)

// CheckResult is the outcome of one validation check.
type CheckResult struct {
	Check   string   `json:"check"`
	Passed  bool     `json:"passed"`
	Dropped int      `json:"dropped"`
	Details []string `json:"details,omitempty"`
}

type Diagnostics []CheckResult

// Valid is true only when every check passed.
func (d Diagnostics) Valid() bool {
	for _, result := range d {
		if !result.Passed {
			return false
		}
	}
	return true
}

// withUnresolvedDates marks the date check failed and records each raw date
// that was grouped under day.
func (d Diagnostics) withUnresolvedDates(dates []string, day time.Time) Diagnostics {
	details := make([]string, len(dates))
	for i, raw := range dates {
		details[i] = fmt.Sprintf("date %q not readable, grouped under %s", raw, day.Format(model.StorageDateLayout))
	}
	for i := range d {
		if d[i].Check == CheckDate {
			d[i].Passed = false
			d[i].Details = append(d[i].Details, details...)
			return d
		}
	}
	return append(d, CheckResult{Check: CheckDate, Passed: false, Details: details})
}

func (d Diagnostics) Get(check string) (CheckResult, bool) {
	for _, result := range d {
		if result.Check == check {
			return result, true
		}
	}
	return CheckResult{}, false
}

// Validator checks and repairs a schema-normalized table.
type Validator struct {
	apps      map[string]struct{}
	platforms map[string]struct{}
	logger    log.Logger
}

func NewValidator(apps, platforms []string, logger log.Logger) *Validator {
	if logger == nil {
		logger = log.NoOp()
	}
	return &Validator{
		apps:      toSet(apps),
		platforms: toSet(platforms),
		logger:    logger,
	}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[value] = struct{}{}
	}
	return set
}

// Validate runs the date, counts, app/platform and revenue sign checks in
// order. Rows failing counts or app/platform are dropped; the other checks
// only flag.
func (v *Validator) Validate(table model.RawTable) (model.Validated, Diagnostics) {
	out := model.Validated{}
	if len(table.Columns) > 0 {
		out.RevenueColumn = table.Columns[len(table.Columns)-1]
	}

	diagnostics := make(Diagnostics, 0, 4)
	diagnostics = append(diagnostics, v.checkDate(table))

	rows, counts := v.checkCounts(table)
	diagnostics = append(diagnostics, counts)

	rows, appPlatform := v.checkAppPlatform(rows)
	diagnostics = append(diagnostics, appPlatform)

	diagnostics = append(diagnostics, v.checkRevenueSign(rows))

	out.Rows = rows
	return out, diagnostics
}

func (v *Validator) checkDate(table model.RawTable) CheckResult {
	result := CheckResult{Check: CheckDate, Passed: true}
	if table.Len() == 0 {
		return result
	}

	first := cell(table.Rows[0], 0)
	for _, row := range table.Rows {
		if cell(row, 0) != first {
			result.Passed = false
			result.Details = append(result.Details, "dates are not the same")
			v.logger.Warn("dates are not the same")
			break
		}
	}
	for _, row := range table.Rows {
		date := cell(row, 0)
		if !isDisplayDate(date) {
			result.Passed = false
			result.Details = append(result.Details, fmt.Sprintf("date %q is not DD/MM/YYYY", date))
			v.logger.Warn("dates are not in the correct format", log.String("date", date))
			break
		}
	}
	return result
}

func (v *Validator) checkCounts(table model.RawTable) ([]model.Row, CheckResult) {
	result := CheckResult{Check: CheckCounts, Passed: true}
	rows := make([]model.Row, 0, table.Len())

	unparsed := 0
	for _, raw := range table.Rows {
		requests, okRequests := parseCount(cell(raw, 3))
		impressions, okImpressions := parseCount(cell(raw, 4))
		if !okRequests || !okImpressions || len(raw) < len(model.CanonicalColumns) {
			unparsed++
			continue
		}
		rows = append(rows, model.Row{
			Date:        cell(raw, 0),
			App:         cell(raw, 1),
			Platform:    cell(raw, 2),
			Requests:    requests,
			Impressions: impressions,
			Revenue:     cell(raw, 5),
		})
	}
	if unparsed > 0 {
		result.Passed = false
		result.Dropped += unparsed
		result.Details = append(result.Details, fmt.Sprintf("%d rows with non-numeric requests or impressions", unparsed))
		v.logger.Warn("requests or impressions are not numeric", log.Int("rows", unparsed))
	}

	kept := rows[:0]
	seen := make(map[[2]string]struct{})
	for _, row := range rows {
		if row.Impressions <= row.Requests {
			kept = append(kept, row)
			continue
		}
		result.Passed = false
		result.Dropped++
		key := [2]string{row.App, row.Platform}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result.Details = append(result.Details, fmt.Sprintf("impressions exceed requests for %s (%s)", row.App, row.Platform))
		v.logger.Warn("impressions are greater than requests",
			log.String("app", row.App),
			log.String("platform", row.Platform),
		)
	}
	return kept, result
}

func (v *Validator) checkAppPlatform(rows []model.Row) ([]model.Row, CheckResult) {
	result := CheckResult{Check: CheckAppPlatform, Passed: true}
	kept := rows[:0]
	for _, row := range rows {
		if _, ok := v.apps[row.App]; !ok {
			result.Dropped++
			result.Details = append(result.Details, fmt.Sprintf("unknown app %q", row.App))
			continue
		}
		if _, ok := v.platforms[row.Platform]; !ok {
			result.Dropped++
			result.Details = append(result.Details, fmt.Sprintf("unknown platform %q for %s", row.Platform, row.App))
			continue
		}
		kept = append(kept, row)
	}
	if result.Dropped > 0 {
		result.Passed = false
		v.logger.Warn("data contains invalid apps and platforms", log.Int("rows", result.Dropped))
	}
	return kept, result
}

func (v *Validator) checkRevenueSign(rows []model.Row) CheckResult {
	result := CheckResult{Check: CheckRevenueSign, Passed: true}
	for _, row := range rows {
		if strings.Contains(row.Revenue, "-") {
			result.Passed = false
			result.Details = append(result.Details, fmt.Sprintf("negative revenue %q for %s (%s)", row.Revenue, row.App, row.Platform))
		}
	}
	if !result.Passed {
		v.logger.Warn("revenue is negative")
	}
	return result
}

// parseCount coerces a count to a non-negative integer. Fractional values
// are truncated toward zero.
func parseCount(value string) (int64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n, n >= 0
	}
	d, err := decimal.NewFromString(value)
	if err != nil || d.IsNegative() {
		return 0, false
	}
	return d.Truncate(0).IntPart(), true
}

func isDisplayDate(value string) bool {
	_, err := parseDisplayDate(value)
	return err == nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
