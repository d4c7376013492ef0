package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bmlt-enabled/tomato/internal/config"
	"github.com/bmlt-enabled/tomato/internal/importer"
	"github.com/bmlt-enabled/tomato/internal/metrics"
	"github.com/bmlt-enabled/tomato/internal/storage/postgres"
	"github.com/bmlt-enabled/tomato/internal/upstream"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Run one import pass and exit",
	Long: `Fetch the root server list and import every listed root's service
bodies, formats, and meetings, then exit.

The serve command schedules this same pass periodically; import exists
for the initial load and for re-running a pass by hand. SIGINT aborts
the pass after the current root finishes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport()
	},
}

func runImport() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logger := config.NewLogger(cfg.Logging)
	metrics.Init(Version, GitCommit, BuildDate)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poolCtx, poolCancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := newPool(poolCtx, cfg.Database)
	poolCancel()
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return err
	}

	client := upstream.NewClient(
		upstream.WithTimeout(cfg.Import.RequestTimeout),
		upstream.WithRateLimit(cfg.Import.RequestsPerSecond),
	)

	imp := importer.New(repo, client, repo, cfg.Import, logger)
	if err := imp.Run(ctx); err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	return nil
}
