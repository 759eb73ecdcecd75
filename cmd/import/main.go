// Command saleimport runs bulk sales imports from local CSV or XLSX files.
//
//	saleimport run sales-march.csv sales-april.xlsx
//	saleimport preview --json ./exports
//	saleimport history --limit 10
//
// Files are imported through the same service the HTTP API uses, so runs
// appear in the import history. A directory argument expands to every .csv
// and .xlsx file in it, in name order.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/saleimport/internal/config"
	"github.com/JonMunkholm/saleimport/internal/core"
	"github.com/JonMunkholm/saleimport/internal/logging"
	"github.com/JonMunkholm/saleimport/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// errReported is returned when the failures have already been printed.
var errReported = errors.New("one or more imports reported errors")

type globalOptions struct {
	asJSON  bool
	migrate bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts globalOptions

	root := &cobra.Command{
		Use:           "saleimport",
		Short:         "Import sales spreadsheets into the sales database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print results as JSON")
	root.PersistentFlags().BoolVar(&opts.migrate, "migrate", false, "apply the schema before running")

	root.AddCommand(
		newRunCmd(&opts),
		newPreviewCmd(&opts),
		newHistoryCmd(&opts),
	)
	return root
}

// openService loads configuration, connects to the database and builds the
// service. The returned cleanup closes the pool.
func openService(ctx context.Context, opts *globalOptions) (*core.Service, func(), error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	st := store.New(pool)
	if opts.migrate {
		if err := st.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return core.NewService(st, cfg), pool.Close, nil
}
