package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rezonia/stock-intake/internal/catalog"
	"github.com/rezonia/stock-intake/internal/config"
	"github.com/rezonia/stock-intake/internal/infra"
	"github.com/rezonia/stock-intake/internal/ledger"
	"github.com/rezonia/stock-intake/internal/logger"
	"github.com/rezonia/stock-intake/internal/matcher"
	"github.com/rezonia/stock-intake/internal/processor"
	"github.com/rezonia/stock-intake/internal/storage"
)

var (
	version = "1.0.0"

	// Global flags
	verbose      bool
	outputFormat string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "stock-intake",
	Short: "Turn supplier invoice text into catalog-matched items and stock",
	Long: `Stock Intake reads the text of supplier invoices, recognizes the line
items, matches them against the product catalog and books delivered goods
into a per-batch stock ledger.

Supported layouts:
  - receipt:   German retail receipts (1.234,56; 05.03.24)
  - wholesale: German cash-and-carry invoices with article numbers and MHD
  - webshop:   online order confirmations (1,234.56; ISO dates)

Examples:
  # Parse a receipt and match it against a catalog
  stock-intake parse receipt.txt --format receipt --catalog products.json

  # Export items for review, then commit the reviewed sheet
  stock-intake parse invoice.txt --format wholesale --catalog products.json -f xlsx -o review.xlsx
  stock-intake commit invoice.txt --format wholesale --catalog products.json --review review.xlsx

  # Fold an event log without a database
  stock-intake stock fold events.json`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVarP(&outputFormat, "output-format", "f", "json", "Output format (json, table, xlsx)")
	flags.String("log-level", "info", "Log level (env: LOG_LEVEL)")
	flags.String("log-format", "console", "Log format: console or json (env: LOG_FORMAT)")
	flags.Float64("match-threshold", matcher.DefaultThreshold, "Minimum fuzzy similarity (env: MATCH_THRESHOLD)")
	flags.Float64("review-threshold", processor.DefaultReviewThreshold, "Confidence below which results need review (env: REVIEW_THRESHOLD)")
	flags.Int("workers", 4, "Invoices and items processed in parallel (env: WORKERS)")
	flags.String("catalog", "", "Product catalog JSON file (env: CATALOG_FILE)")
	flags.String("database-url", "", "Postgres DSN for the stock ledger (env: DATABASE_URL)")
	flags.String("redis-url", "", "Redis URL for cross-process batch locks (env: REDIS_URL)")

	for key, name := range map[string]string{
		"LOG_LEVEL":        "log-level",
		"LOG_FORMAT":       "log-format",
		"MATCH_THRESHOLD":  "match-threshold",
		"REVIEW_THRESHOLD": "review-threshold",
		"WORKERS":          "workers",
		"CATALOG_FILE":     "catalog",
		"DATABASE_URL":     "database-url",
		"REDIS_URL":        "redis-url",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(name))
	}
}

func setup(cmd *cobra.Command, args []string) error {
	c, err := config.Load()
	if err != nil {
		return err
	}
	lc := c.LoggerConfig()
	if verbose {
		lc.Level = "debug"
	}
	if err := logger.Setup(lc); err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	cfg = c
	return nil
}

func newMatcher() *matcher.Matcher {
	return matcher.New(
		matcher.WithThreshold(cfg.MatchThreshold),
		matcher.WithWorkers(cfg.Workers),
	)
}

func newPipeline() *processor.Pipeline {
	opts := []processor.Option{
		processor.WithMatcher(newMatcher()),
		processor.WithReviewThreshold(cfg.ReviewThreshold),
		processor.WithWorkers(cfg.Workers),
	}
	if cfg.CatalogFile != "" {
		opts = append(opts, processor.WithCatalog(catalog.NewFileSource(cfg.CatalogFile)))
	}
	return processor.NewPipeline(opts...)
}

// backend is the Postgres-backed ledger and invoice store of one command run
type backend struct {
	ledger   *ledger.Ledger
	invoices *storage.InvoiceStore
	close    func()
}

var errNoDatabase = errors.New("this command needs a database: set DATABASE_URL or --database-url")

func openBackend(ctx context.Context) (*backend, error) {
	if cfg.DatabaseURL == "" {
		return nil, errNoDatabase
	}
	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	closers := []func(){func() { _ = sqlDB.Close() }}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	ledgerStore := storage.NewLedgerStore(db)
	invoiceStore := storage.NewInvoiceStore(db)
	if err := ledgerStore.Migrate(ctx); err != nil {
		closeAll()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	if err := invoiceStore.Migrate(ctx); err != nil {
		closeAll()
		return nil, fmt.Errorf("migrate invoices: %w", err)
	}

	opts := []ledger.Option{ledger.WithClockSkew(cfg.ClockSkew)}
	if cfg.RedisURL != "" {
		rdb, err := infra.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		closers = append(closers, func() { _ = rdb.Close() })
		opts = append(opts, ledger.WithLocker(ledger.NewRedisLocker(rdb, cfg.LockTTL)))
	} else {
		opts = append(opts, ledger.WithLocker(storage.NewAdvisoryLocker(db)))
	}

	return &backend{
		ledger:   ledger.New(ledgerStore, opts...),
		invoices: invoiceStore,
		close:    closeAll,
	}, nil
}

func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
