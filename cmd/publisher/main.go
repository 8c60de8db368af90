package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"adreport/internal/model"
	"adreport/internal/store"
	"adreport/internal/store/sqlite"
)

type metaFile struct {
	GeneratedAt string   `json:"generated_at"`
	From        string   `json:"from,omitempty"`
	To          string   `json:"to,omitempty"`
	Networks    []string `json:"networks"`
	Rows        int      `json:"rows"`
}

type reportsFile struct {
	GeneratedAt string        `json:"generated_at"`
	Rows        []reportEntry `json:"rows"`
	Summary     []summaryRow  `json:"summary"`
}

type reportEntry struct {
	Date        string          `json:"date"`
	AdNetwork   string          `json:"ad_network"`
	App         string          `json:"app"`
	Platform    string          `json:"platform"`
	Requests    int64           `json:"requests"`
	Impressions int64           `json:"impressions"`
	Revenue     decimal.Decimal `json:"revenue"`
	Currency    string          `json:"currency,omitempty"`
}

// summaryRow totals one network/app/platform over the exported range.
type summaryRow struct {
	AdNetwork   string          `json:"ad_network"`
	App         string          `json:"app"`
	Platform    string          `json:"platform"`
	LatestDate  string          `json:"latest_date"`
	Days        int             `json:"days"`
	Requests    int64           `json:"requests"`
	Impressions int64           `json:"impressions"`
	Revenue     decimal.Decimal `json:"revenue"`
	FillRate    decimal.Decimal `json:"fill_rate"`
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "build":
		build(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func build(args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	outDir := fs.String("out", "site/data", "output directory")
	dbPath := fs.String("db", "adreport.db", "sqlite database path")
	network := fs.String("network", "", "ad network name (empty = all)")
	from := fs.String("from", "", "first report date YYYY-MM-DD")
	to := fs.String("to", "", "last report date YYYY-MM-DD")
	fs.Parse(args)

	filter, err := buildFilter(*network, *from, *to)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid filter:", err)
		os.Exit(2)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "failed to create output dir:", err)
		os.Exit(1)
	}

	reports, err := loadReports(*dbPath, filter)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load daily reports:", err)
		os.Exit(1)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	meta := metaFile{
		GeneratedAt: now,
		From:        strings.TrimSpace(*from),
		To:          strings.TrimSpace(*to),
		Networks:    networkNames(reports),
		Rows:        len(reports),
	}
	if err := writeJSON(filepath.Join(*outDir, "meta.json"), meta); err != nil {
		fmt.Fprintln(os.Stderr, "failed to write meta.json:", err)
		os.Exit(1)
	}

	out := reportsFile{
		GeneratedAt: now,
		Rows:        buildEntries(reports),
		Summary:     buildSummary(reports),
	}
	if err := writeJSON(filepath.Join(*outDir, "reports.json"), out); err != nil {
		fmt.Fprintln(os.Stderr, "failed to write reports.json:", err)
		os.Exit(1)
	}

	fmt.Printf("publisher build complete (out=%s rows=%d)\n", *outDir, len(reports))
}

func writeJSON(path string, value any) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: publisher build [options]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "options:")
	fmt.Fprintln(os.Stderr, "  -out       output directory (default: site/data)")
	fmt.Fprintln(os.Stderr, "  -db        sqlite database path (default: adreport.db)")
	fmt.Fprintln(os.Stderr, "  -network   ad network name (default: all)")
	fmt.Fprintln(os.Stderr, "  -from      first report date YYYY-MM-DD")
	fmt.Fprintln(os.Stderr, "  -to        last report date YYYY-MM-DD")
}

func buildFilter(network, from, to string) (store.ReportFilter, error) {
	filter := store.ReportFilter{Network: strings.TrimSpace(network)}
	var err error
	if filter.From, err = parseOptionalDate(from); err != nil {
		return store.ReportFilter{}, fmt.Errorf("from: %w", err)
	}
	if filter.To, err = parseOptionalDate(to); err != nil {
		return store.ReportFilter{}, fmt.Errorf("to: %w", err)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return store.ReportFilter{}, errors.New("to is before from")
	}
	return filter, nil
}

func parseOptionalDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(model.StorageDateLayout, value)
}

func loadReports(dbPath string, filter store.ReportFilter) ([]store.StoredReport, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, errors.New("db path is required")
	}
	st, err := sqlite.New(dbPath)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	return st.ListDailyReports(context.Background(), filter)
}

func buildEntries(reports []store.StoredReport) []reportEntry {
	entries := make([]reportEntry, 0, len(reports))
	for _, report := range reports {
		entries = append(entries, reportEntry{
			Date:        report.Date.Format(model.StorageDateLayout),
			AdNetwork:   report.NetworkName,
			App:         report.App,
			Platform:    report.Platform,
			Requests:    report.Requests,
			Impressions: report.Impressions,
			Revenue:     report.Revenue,
			Currency:    string(report.Currency),
		})
	}
	return entries
}

func buildSummary(reports []store.StoredReport) []summaryRow {
	type summaryKey struct {
		network  string
		app      string
		platform string
	}
	type accumulator struct {
		latest      time.Time
		days        int
		requests    int64
		impressions int64
		revenue     decimal.Decimal
	}

	totals := make(map[summaryKey]*accumulator)
	for _, report := range reports {
		key := summaryKey{network: report.NetworkName, app: report.App, platform: report.Platform}
		acc, ok := totals[key]
		if !ok {
			acc = &accumulator{revenue: decimal.Zero}
			totals[key] = acc
		}
		if report.Date.After(acc.latest) {
			acc.latest = report.Date
		}
		acc.days++
		acc.requests += report.Requests
		acc.impressions += report.Impressions
		acc.revenue = acc.revenue.Add(report.Revenue)
	}

	results := make([]summaryRow, 0, len(totals))
	for key, acc := range totals {
		fillRate := decimal.Zero
		if acc.requests > 0 {
			fillRate = decimal.NewFromInt(acc.impressions).Div(decimal.NewFromInt(acc.requests)).Round(4)
		}
		results = append(results, summaryRow{
			AdNetwork:   key.network,
			App:         key.app,
			Platform:    key.platform,
			LatestDate:  acc.latest.Format(model.StorageDateLayout),
			Days:        acc.days,
			Requests:    acc.requests,
			Impressions: acc.impressions,
			Revenue:     acc.revenue.Round(2),
			FillRate:    fillRate,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.AdNetwork != b.AdNetwork {
			return a.AdNetwork < b.AdNetwork
		}
		if a.App != b.App {
			return a.App < b.App
		}
		return a.Platform < b.Platform
	})
	return results
}

func networkNames(reports []store.StoredReport) []string {
	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, report := range reports {
		if _, ok := seen[report.NetworkName]; ok {
			continue
		}
		seen[report.NetworkName] = struct{}{}
		names = append(names, report.NetworkName)
	}
	sort.Strings(names)
	return names
}
