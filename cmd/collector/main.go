package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"adreport/internal/api"
	"adreport/internal/config"
	"adreport/internal/log"
	"adreport/internal/model"
	"adreport/internal/render"
	"adreport/internal/report"
	"adreport/internal/store"
	"adreport/internal/store/sqlite"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		run(os.Args[2:])
	case "seed":
		seed(os.Args[2:])
	case "serve":
		serve(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: collector <run|seed|serve> [options]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "run options:")
	fmt.Fprintln(os.Stderr, "  -network   ad network name (required)")
	fmt.Fprintln(os.Stderr, "  -date      report date YYYY-MM-DD (required)")
	fmt.Fprintln(os.Stderr, "  -update    refresh stale exchange rates (default: rates.update)")
	fmt.Fprintln(os.Stderr, "  -save      normalize and persist the report (default: true)")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "common options:")
	fmt.Fprintln(os.Stderr, "  -config    path to a yaml or json config file")
	fmt.Fprintln(os.Stderr, "  -db        sqlite database path (overrides database.path)")
}

func run(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	dbPath := fs.String("db", "", "sqlite database path")
	network := fs.String("network", "", "ad network name")
	date := fs.String("date", "", "report date YYYY-MM-DD")
	update := fs.String("update", "", "refresh stale exchange rates (true/false)")
	save := fs.Bool("save", true, "normalize and persist the report")
	fs.Parse(args)

	if strings.TrimSpace(*network) == "" || strings.TrimSpace(*date) == "" {
		fmt.Fprintln(os.Stderr, "collector run: -network and -date are required")
		os.Exit(2)
	}

	req := report.Request{
		AdNetwork: *network,
		Date:      *date,
		Save:      *save,
	}
	if err := runReport(*configPath, *dbPath, req, *update); err != nil {
		fmt.Fprintln(os.Stderr, "collector run failed:", err)
		os.Exit(1)
	}
}

func runReport(configPath, dbPath string, req report.Request, update string) error {
	app, err := newApp(configPath, dbPath)
	if err != nil {
		return err
	}
	defer app.Close()

	req.Update = app.cfg.Rates.Update
	if update != "" {
		req.Update = parseBool(update)
	}

	result, err := app.pipeline.Run(context.Background(), req)
	if err != nil {
		return err
	}
	return printResult(result)
}

func printResult(result *report.Result) error {
	if !result.Saved {
		if err := render.RawTable(os.Stdout, result.Raw); err != nil {
			return err
		}
		fmt.Printf("collector fetched rows=%d url=%s\n", result.Raw.Len(), result.URL)
		return nil
	}

	if err := render.ReportRows(os.Stdout, result.Rows); err != nil {
		return err
	}
	for _, check := range result.Diagnostics {
		if check.Passed {
			continue
		}
		fmt.Fprintf(os.Stderr, "check %s failed dropped=%d\n", check.Check, check.Dropped)
		for _, detail := range check.Details {
			fmt.Fprintf(os.Stderr, "  %s\n", detail)
		}
	}
	fmt.Printf("collector run complete (network=%s date=%s currency=%s rows=%d valid=%t)\n",
		result.Network.Name,
		result.Date.Format(model.StorageDateLayout),
		result.Currency,
		len(result.Rows),
		result.Valid(),
	)
	return nil
}

func seed(args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	dbPath := fs.String("db", "", "sqlite database path")
	fs.Parse(args)

	if err := runSeed(*configPath, *dbPath); err != nil {
		fmt.Fprintln(os.Stderr, "collector seed failed:", err)
		os.Exit(1)
	}
}

func runSeed(configPath, dbPath string) error {
	cfg, err := loadConfig(configPath, dbPath)
	if err != nil {
		return err
	}
	st, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := seedStore(context.Background(), cfg, st); err != nil {
		return err
	}
	fmt.Printf("collector seed complete (db=%s currencies=%d networks=%d)\n",
		cfg.Database.Path, len(cfg.Seed.Currencies), len(cfg.Seed.Networks))
	return nil
}

func seedStore(ctx context.Context, cfg *config.Config, st store.Store) error {
	rates, err := cfg.SeedRates()
	if err != nil {
		return err
	}
	if err := st.SeedCurrencies(ctx, rates); err != nil {
		return err
	}
	return st.SeedAdNetworks(ctx, cfg.SeedNetworks())
}

func serve(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	dbPath := fs.String("db", "", "sqlite database path")
	addr := fs.String("addr", "", "listen address (overrides http.addr)")
	fs.Parse(args)

	if err := runServer(*configPath, *dbPath, *addr); err != nil {
		fmt.Fprintln(os.Stderr, "collector serve failed:", err)
		os.Exit(1)
	}
}

func runServer(configPath, dbPath, addr string) error {
	app, err := newApp(configPath, dbPath)
	if err != nil {
		return err
	}
	defer app.Close()

	if addr != "" {
		app.cfg.HTTP.Addr = addr
	}
	return serveHTTP(app)
}

func serveHTTP(app *application) error {
	server := api.NewServer(app.pipeline, api.Options{
		Logger:  app.logger,
		Metrics: app.metrics,
	})
	srv := &http.Server{
		Addr:         app.cfg.HTTP.Addr,
		Handler:      server.Router(),
		ReadTimeout:  app.cfg.HTTP.ReadTimeout,
		WriteTimeout: app.cfg.HTTP.WriteTimeout,
		IdleTimeout:  app.cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	app.logger.Info("server started", log.String("addr", app.cfg.HTTP.Addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	app.logger.Info("stopping server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	app.logger.Info("server stopped")
	return nil
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y":
		return true
	default:
		return false
	}
}
