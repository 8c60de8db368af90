package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyCNY Currency = "CNY"
	CurrencyHKD Currency = "HKD"
)

// ReferenceCurrency is the currency every revenue value is normalized into.
const ReferenceCurrency = CurrencyUSD

var SupportedCurrencies = []Currency{
	CurrencyUSD,
	CurrencyEUR,
	CurrencyGBP,
	CurrencyCNY,
	CurrencyHKD,
}

const (
	ColumnDate        = "Date"
	ColumnApp         = "App"
	ColumnPlatform    = "Platform"
	ColumnRequests    = "Requests"
	ColumnImpressions = "Impressions"
	ColumnRevenue     = "Revenue"
)

// CanonicalColumns is the six-field schema every report is normalized into.
var CanonicalColumns = []string{
	ColumnDate,
	ColumnApp,
	ColumnPlatform,
	ColumnRequests,
	ColumnImpressions,
	ColumnRevenue,
}

const (
	// DisplayDateLayout is the date layout carried inside fetched reports (DD/MM/YYYY).
	DisplayDateLayout = "02/01/2006"
	// StorageDateLayout is the date layout used for requests and persistence (YYYY-MM-DD).
	StorageDateLayout = "2006-01-02"
)

type AdNetwork struct {
	ID          int64
	Name        string
	URLTemplate string
	DateFormat  string
}

type ExchangeRate struct {
	ID        int64
	Currency  Currency
	Rate      decimal.Decimal
	UpdatedAt time.Time
}

// RawTable is an untyped report as parsed from the network payload.
type RawTable struct {
	Columns []string
	Rows    [][]string
}

func (t RawTable) Len() int {
	return len(t.Rows)
}

func (t RawTable) Clone() RawTable {
	columns := append([]string(nil), t.Columns...)
	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		rows[i] = append([]string(nil), row...)
	}
	return RawTable{Columns: columns, Rows: rows}
}

// Row is a validated report row whose revenue is still the network's raw text.
type Row struct {
	Date        string
	App         string
	Platform    string
	Requests    int64
	Impressions int64
	Revenue     string
}

// Validated is the table produced by the row validator.
type Validated struct {
	RevenueColumn string
	Rows          []Row
}

// ConvertedRow carries a revenue amount already expressed in the reference currency.
type ConvertedRow struct {
	Date        string
	App         string
	Platform    string
	Requests    int64
	Impressions int64
	Revenue     decimal.Decimal
}

type ReportRow struct {
	Date        time.Time
	App         string
	Platform    string
	Requests    int64
	Impressions int64
	Revenue     decimal.Decimal
}

// DailyReport is the persisted shape of one aggregated row.
type DailyReport struct {
	ReportRow
	CurrencyID *int64
	NetworkID  int64
}
