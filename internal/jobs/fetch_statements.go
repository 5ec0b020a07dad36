package jobs

import (
	"context"
	"encoding/json"

	"github.com/kavwad/clippertv/internal/models"
	"github.com/kavwad/clippertv/internal/store"
)

// TypeFetchStatements runs a full download-and-enqueue cycle, the same
// work the monthly schedule does.
const TypeFetchStatements = "fetch_statements"

// FetchStatementsHandler wraps the download cycle so an operator can
// trigger it through the queue and get retry accounting for free. The
// cycle is injected to keep this package free of the scheduler's
// dependencies.
func FetchStatementsHandler(run func(ctx context.Context) error) Handler {
	return func(ctx context.Context, job *models.Job, db *store.DB) error {
		if err := run(ctx); err != nil {
			return err
		}
		result, _ := json.Marshal(map[string]string{"status": "completed"})
		db.CompleteJob(job.ID, string(result))
		return nil
	}
}
