package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kavwad/clippertv/internal/filestore"
	"github.com/kavwad/clippertv/internal/ingest"
	"github.com/kavwad/clippertv/internal/models"
	"github.com/kavwad/clippertv/internal/store"
)

// TypeIngestStatement processes one archived statement PDF.
const TypeIngestStatement = "ingest_statement"

// IngestStatementPayload names an archived statement and the rider it
// belongs to.
type IngestStatementPayload struct {
	Rider string `json:"rider"`
	File  string `json:"file"`
}

// IngestStatementHandler runs the statement pipeline over an archived
// PDF. Re-running the same job is safe: the merge dedupes by content.
func IngestStatementHandler(pipe *ingest.Pipeline, archive *filestore.Store) Handler {
	return func(ctx context.Context, job *models.Job, db *store.DB) error {
		var payload IngestStatementPayload
		if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}

		db.UpdateJobProgress(job.ID, 10)

		result, err := pipe.IngestPDF(ctx, payload.Rider, archive.FullPath(payload.File))
		if err != nil {
			return fmt.Errorf("ingest %s: %w", payload.File, err)
		}

		db.UpdateJobProgress(job.ID, 90)

		resultJSON, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		db.CompleteJob(job.ID, string(resultJSON))
		return nil
	}
}
