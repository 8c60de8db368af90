package report

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"adreport/internal/log"
	"adreport/internal/model"
)

func newTestValidator() *Validator {
	return NewValidator(testApps, testPlatforms, log.NoOp())
}

func rawTable(rows ...[]string) model.RawTable {
	return model.RawTable{Columns: append([]string(nil), model.CanonicalColumns...), Rows: rows}
}

func TestValidate_AllPass(t *testing.T) {
	validated, diagnostics := newTestValidator().Validate(rawTable(
		[]string{"15/09/2017", "Talking Ginger", "iOS", "8934", "248", "$1.74"},
		[]string{"15/09/2017", "Talking Tom", "Android", "12.0", "12", "$0.10"},
	))

	require.True(t, diagnostics.Valid())
	require.Len(t, diagnostics, 4)
	require.Equal(t, "Revenue", validated.RevenueColumn)
	require.Len(t, validated.Rows, 2)
	require.Equal(t, int64(12), validated.Rows[1].Requests)
}

func TestValidate_ImpressionsExceedRequests(t *testing.T) {
	validated, diagnostics := newTestValidator().Validate(rawTable(
		[]string{"15/09/2017", "Talking Tom", "iOS", "100", "500", "$1.00"},
		[]string{"15/09/2017", "Talking Tom", "iOS", "100", "600", "$1.00"},
		[]string{"15/09/2017", "Talking Ben", "iOS", "100", "100", "$1.00"},
	))

	require.False(t, diagnostics.Valid())
	counts, ok := diagnostics.Get(CheckCounts)
	require.True(t, ok)
	require.False(t, counts.Passed)
	require.Equal(t, 2, counts.Dropped)
	// One detail per distinct (app, platform).
	require.Len(t, counts.Details, 1)
	require.Len(t, validated.Rows, 1)
	require.Equal(t, "Talking Ben", validated.Rows[0].App)
}

func TestValidate_NonNumericCounts(t *testing.T) {
	validated, diagnostics := newTestValidator().Validate(rawTable(
		[]string{"15/09/2017", "Talking Tom", "iOS", "n/a", "5", "$1.00"},
		[]string{"15/09/2017", "Talking Tom", "iOS", "10", "-1", "$1.00"},
		[]string{"15/09/2017", "Talking Tom", "iOS", "10.9", "3.2", "$1.00"},
	))

	counts, _ := diagnostics.Get(CheckCounts)
	require.False(t, counts.Passed)
	require.Equal(t, 2, counts.Dropped)
	require.Len(t, validated.Rows, 1)
	require.Equal(t, int64(10), validated.Rows[0].Requests)
	require.Equal(t, int64(3), validated.Rows[0].Impressions)
}

func TestValidate_AppPlatform(t *testing.T) {
	validated, diagnostics := newTestValidator().Validate(rawTable(
		[]string{"15/09/2017", "Talking Tom", "iOS", "10", "5", "$1.00"},
		[]string{"15/09/2017", "Candy Crush", "iOS", "10", "5", "$1.00"},
		[]string{"15/09/2017", "Talking Tom", "Windows", "10", "5", "$1.00"},
	))

	check, _ := diagnostics.Get(CheckAppPlatform)
	require.False(t, check.Passed)
	require.Equal(t, 2, check.Dropped)
	require.Len(t, validated.Rows, 1)
}

func TestValidate_DateAndRevenueSignOnlyFlag(t *testing.T) {
	validated, diagnostics := newTestValidator().Validate(rawTable(
		[]string{"15/09/2017", "Talking Tom", "iOS", "10", "5", "-$1.00"},
		[]string{"2017-09-16", "Talking Tom", "Android", "10", "5", "$1.00"},
	))

	date, _ := diagnostics.Get(CheckDate)
	require.False(t, date.Passed)
	sign, _ := diagnostics.Get(CheckRevenueSign)
	require.False(t, sign.Passed)
	require.Zero(t, sign.Dropped)
	require.Len(t, validated.Rows, 2)
}

func TestValidate_Empty(t *testing.T) {
	validated, diagnostics := newTestValidator().Validate(rawTable())
	require.True(t, diagnostics.Valid())
	require.Empty(t, validated.Rows)
}

func TestProperty_Validator(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	validator := newTestValidator()

	properties.Property("accepted rows never have more impressions than requests", prop.ForAll(
		func(requests, impressions []int64) bool {
			n := len(requests)
			if len(impressions) < n {
				n = len(impressions)
			}
			rows := make([][]string, 0, n)
			for i := 0; i < n; i++ {
				rows = append(rows, []string{
					"15/09/2017", "Talking Tom", "iOS",
					fmt.Sprint(requests[i]), fmt.Sprint(impressions[i]), "$1.00",
				})
			}
			validated, _ := validator.Validate(rawTable(rows...))
			for _, row := range validated.Rows {
				if row.Impressions > row.Requests || row.Requests < 0 || row.Impressions < 0 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(-10, 1000)),
		gen.SliceOf(gen.Int64Range(-10, 1000)),
	))

	properties.Property("date check passes iff all dates equal and DD/MM/YYYY", prop.ForAll(
		func(days []int) bool {
			if len(days) == 0 {
				return true
			}
			rows := make([][]string, len(days))
			same := true
			for i, day := range days {
				rows[i] = []string{fmt.Sprintf("%02d/09/2017", day), "Talking Tom", "iOS", "10", "5", "$1.00"}
				if day != days[0] {
					same = false
				}
			}
			_, diagnostics := validator.Validate(rawTable(rows...))
			check, _ := diagnostics.Get(CheckDate)
			return check.Passed == same
		},
		gen.SliceOf(gen.IntRange(1, 3)),
	))

	properties.TestingRun(t)
}
