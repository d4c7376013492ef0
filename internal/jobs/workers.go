package jobs

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"
)

// Importer runs one full import pass across every configured root server.
type Importer interface {
	Run(ctx context.Context) error
}

// ImportWorker executes the periodic import job.
type ImportWorker struct {
	river.WorkerDefaults[ImportArgs]
	Importer Importer
}

func (ImportWorker) Kind() string { return JobKindImport }

func (w ImportWorker) Work(ctx context.Context, job *river.Job[ImportArgs]) error {
	if w.Importer == nil {
		return fmt.Errorf("importer not configured")
	}
	return w.Importer.Run(ctx)
}
