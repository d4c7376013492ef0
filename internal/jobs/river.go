// Package jobs schedules the periodic root server import through River.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"

	"github.com/bmlt-enabled/tomato/internal/metrics"
)

const JobKindImport = "import_root_servers"

// ImportMaxAttempts keeps import passes single-shot. A failed pass is
// not retried; the next scheduled run starts from a clean slate.
const ImportMaxAttempts = 1

// DefaultImportInterval is the schedule applied when the configured
// interval is missing or nonsensical.
const DefaultImportInterval = 24 * time.Hour

// ImportArgs is the periodic import job. It carries no payload; the
// worker owns its configuration.
type ImportArgs struct{}

func (ImportArgs) Kind() string { return JobKindImport }

func (ImportArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: ImportMaxAttempts,
		// One import in flight at a time; a periodic tick that lands
		// while the previous pass still runs is dropped.
		UniqueOpts: river.UniqueOpts{ByArgs: true},
	}
}

// NewWorkers registers the import worker.
func NewWorkers(imp Importer) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[ImportArgs](workers, ImportWorker{Importer: imp})
	return workers
}

// NewPeriodicJobs builds the import schedule. RunOnStart stays false:
// a freshly deployed instance serves the existing catalog until the
// first scheduled pass.
func NewPeriodicJobs(interval time.Duration) []*river.PeriodicJob {
	if interval <= 0 {
		interval = DefaultImportInterval
	}
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(interval),
			func() (river.JobArgs, *river.InsertOpts) {
				return ImportArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: false},
		),
	}
}

// NewClientConfig builds the River client configuration. A single
// worker on the default queue keeps import passes strictly sequential.
func NewClientConfig(workers *river.Workers, logger *slog.Logger, periodicJobs []*river.PeriodicJob) *river.Config {
	config := &river.Config{
		Workers:      workers,
		MaxAttempts:  ImportMaxAttempts,
		PeriodicJobs: periodicJobs,
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 1},
		},
		Hooks: []rivertype.Hook{metrics.NewRiverMetricsHook()},
	}
	if logger != nil {
		config.Logger = logger
		config.ErrorHandler = &ErrorLogger{Logger: logger}
	}
	return config
}

// NewClient creates a River client using pgx v5.
func NewClient(pool *pgxpool.Pool, workers *river.Workers, logger *slog.Logger, periodicJobs []*river.PeriodicJob) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), NewClientConfig(workers, logger, periodicJobs))
}

// ErrorLogger logs failed and panicked jobs.
type ErrorLogger struct {
	Logger *slog.Logger
}

func (h *ErrorLogger) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	h.Logger.Error("job failed", "job_id", job.ID, "kind", job.Kind, "attempt", job.Attempt, "error", err)
	return nil
}

func (h *ErrorLogger) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	h.Logger.Error("job panicked", "job_id", job.ID, "kind", job.Kind, "attempt", job.Attempt, "error", fmt.Errorf("panic: %v", panicVal), "trace", trace)
	return nil
}
