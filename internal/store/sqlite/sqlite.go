package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"adreport/internal/model"
	"adreport/internal/store"
)

const timestampLayout = time.RFC3339Nano

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	st := &Store{db: db, now: time.Now}
	if err := st.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return st, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ResolveAdNetwork(ctx context.Context, name string) (model.AdNetwork, error) {
	var network model.AdNetwork
	err := s.db.QueryRowContext(ctx, `
		SELECT ad_network_id, ad_network_name, ad_network_url, ad_network_date_format
		FROM ad_network WHERE ad_network_name = ?
	`, strings.TrimSpace(name)).Scan(&network.ID, &network.Name, &network.URLTemplate, &network.DateFormat)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AdNetwork{}, store.ErrNotFound
	}
	if err != nil {
		return model.AdNetwork{}, err
	}
	return network, nil
}

func (s *Store) ReadRate(ctx context.Context, currency model.Currency) (model.ExchangeRate, error) {
	var (
		id        int64
		value     string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT currency_usd_id, currency_usd_value, currency_usd_updated_at
		FROM currency_usd WHERE currency_usd_name = ?
	`, string(currency)).Scan(&id, &value, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ExchangeRate{}, store.ErrNotFound
	}
	if err != nil {
		return model.ExchangeRate{}, err
	}

	rate, err := decimal.NewFromString(value)
	if err != nil {
		return model.ExchangeRate{}, fmt.Errorf("sqlite: rate for %s: %w", currency, err)
	}
	at, err := time.Parse(timestampLayout, updatedAt)
	if err != nil {
		return model.ExchangeRate{}, fmt.Errorf("sqlite: updated_at for %s: %w", currency, err)
	}

	return model.ExchangeRate{
		ID:        id,
		Currency:  currency,
		Rate:      rate,
		UpdatedAt: at,
	}, nil
}

func (s *Store) WriteRate(ctx context.Context, currency model.Currency, rate decimal.Decimal, updatedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE currency_usd
		SET currency_usd_value = ?, currency_usd_updated_at = ?
		WHERE currency_usd_name = ?
	`, rate.String(), updatedAt.UTC().Format(timestampLayout), string(currency))
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) UpsertDailyReports(ctx context.Context, reports []model.DailyReport) error {
	if len(reports) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_report (
			report_date, report_app, report_platform, report_requests,
			report_impressions, report_revenue, currency_usd_id, ad_network_id, ingested_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(report_date, report_app, report_platform, ad_network_id)
		DO UPDATE SET
			report_requests = excluded.report_requests,
			report_impressions = excluded.report_impressions,
			report_revenue = excluded.report_revenue,
			currency_usd_id = excluded.currency_usd_id,
			ingested_at = excluded.ingested_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	ingestedAt := s.now().UTC().Format(timestampLayout)
	for i := range reports {
		report := reports[i]
		var currencyID any
		if report.CurrencyID != nil {
			currencyID = *report.CurrencyID
		}
		_, err = stmt.ExecContext(
			ctx,
			report.Date.Format(model.StorageDateLayout),
			report.App,
			report.Platform,
			report.Requests,
			report.Impressions,
			report.Revenue.StringFixed(2),
			currencyID,
			report.NetworkID,
			ingestedAt,
		)
		if err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	return nil
}

func (s *Store) ListDailyReports(ctx context.Context, filter store.ReportFilter) ([]store.StoredReport, error) {
	query := `
		SELECT r.report_date, r.report_app, r.report_platform, r.report_requests,
			r.report_impressions, r.report_revenue, r.currency_usd_id, r.ad_network_id,
			n.ad_network_name, COALESCE(c.currency_usd_name, '')
		FROM daily_report r
		JOIN ad_network n ON n.ad_network_id = r.ad_network_id
		LEFT JOIN currency_usd c ON c.currency_usd_id = r.currency_usd_id
		WHERE 1 = 1`
	args := make([]any, 0, 3)
	if strings.TrimSpace(filter.Network) != "" {
		query += ` AND n.ad_network_name = ?`
		args = append(args, strings.TrimSpace(filter.Network))
	}
	if !filter.From.IsZero() {
		query += ` AND r.report_date >= ?`
		args = append(args, filter.From.Format(model.StorageDateLayout))
	}
	if !filter.To.IsZero() {
		query += ` AND r.report_date <= ?`
		args = append(args, filter.To.Format(model.StorageDateLayout))
	}
	query += ` ORDER BY r.report_date, n.ad_network_name, r.report_app, r.report_platform`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := make([]store.StoredReport, 0)
	for rows.Next() {
		var (
			report     store.StoredReport
			date       string
			revenue    string
			currencyID sql.NullInt64
			currency   string
		)
		if err := rows.Scan(
			&date,
			&report.App,
			&report.Platform,
			&report.Requests,
			&report.Impressions,
			&revenue,
			&currencyID,
			&report.NetworkID,
			&report.NetworkName,
			&currency,
		); err != nil {
			return nil, err
		}
		if report.Date, err = time.Parse(model.StorageDateLayout, date); err != nil {
			return nil, err
		}
		if report.Revenue, err = decimal.NewFromString(revenue); err != nil {
			return nil, err
		}
		if currencyID.Valid {
			id := currencyID.Int64
			report.CurrencyID = &id
		}
		report.Currency = model.Currency(currency)
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reports, nil
}

// SeedCurrencies inserts missing currencies; rates already stored are kept.
func (s *Store) SeedCurrencies(ctx context.Context, rates map[model.Currency]decimal.Decimal) error {
	updatedAt := s.now().UTC().Format(timestampLayout)
	for _, currency := range model.SupportedCurrencies {
		rate, ok := rates[currency]
		if !ok {
			continue
		}
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO currency_usd (currency_usd_name, currency_usd_value, currency_usd_updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(currency_usd_name) DO NOTHING
		`, string(currency), rate.String(), updatedAt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) SeedAdNetworks(ctx context.Context, networks []model.AdNetwork) error {
	for _, network := range networks {
		if strings.TrimSpace(network.Name) == "" {
			return errors.New("sqlite: ad network name is required")
		}
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO ad_network (ad_network_name, ad_network_url, ad_network_date_format)
			VALUES (?, ?, ?)
			ON CONFLICT(ad_network_name) DO UPDATE SET
				ad_network_url = excluded.ad_network_url,
				ad_network_date_format = excluded.ad_network_date_format
		`, network.Name, network.URLTemplate, network.DateFormat); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) migrate() error {
	statements := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS ad_network (
			ad_network_id INTEGER PRIMARY KEY AUTOINCREMENT,
			ad_network_name TEXT NOT NULL UNIQUE,
			ad_network_url TEXT NOT NULL,
			ad_network_date_format TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS currency_usd (
			currency_usd_id INTEGER PRIMARY KEY AUTOINCREMENT,
			currency_usd_name TEXT NOT NULL UNIQUE,
			currency_usd_value TEXT NOT NULL,
			currency_usd_updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS daily_report (
			report_date TEXT NOT NULL,
			report_app TEXT NOT NULL,
			report_platform TEXT NOT NULL,
			report_requests INTEGER NOT NULL,
			report_impressions INTEGER NOT NULL,
			report_revenue TEXT NOT NULL,
			currency_usd_id INTEGER REFERENCES currency_usd(currency_usd_id),
			ad_network_id INTEGER NOT NULL REFERENCES ad_network(ad_network_id),
			ingested_at TEXT NOT NULL,
			PRIMARY KEY (report_date, report_app, report_platform, ad_network_id)
		);`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return err
		}
	}

	return nil
}

var _ store.Store = (*Store)(nil)
