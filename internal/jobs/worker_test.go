package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kavwad/clippertv/internal/models"
	"github.com/kavwad/clippertv/internal/store"
)

func newTestWorker(t *testing.T) (*Worker, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "clippertv.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	w := NewWorker(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	w.pollInterval = 10 * time.Millisecond
	w.jobTimeout = 5 * time.Second
	return w, db
}

func waitForStatus(t *testing.T, db *store.DB, id int64, want string) *models.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := db.GetJob(id)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	job, _ := db.GetJob(id)
	t.Fatalf("job %d never reached %s (status %s)", id, want, job.Status)
	return nil
}

func TestWorkerProcessesJob(t *testing.T) {
	w, db := newTestWorker(t)

	var ran atomic.Int32
	w.Register("touch", func(ctx context.Context, job *models.Job, db *store.DB) error {
		ran.Add(1)
		return db.CompleteJob(job.ID, `{"ok":true}`)
	})

	id, err := db.CreateJob("touch", map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	w.Start()
	defer w.Stop()

	job := waitForStatus(t, db, id, "completed")
	if job.Progress != 100 {
		t.Errorf("progress = %d, want 100", job.Progress)
	}
	if ran.Load() != 1 {
		t.Errorf("handler ran %d times, want 1", ran.Load())
	}
}

func TestWorkerRetriesThenSucceeds(t *testing.T) {
	w, db := newTestWorker(t)

	var calls atomic.Int32
	w.Register("flaky", func(ctx context.Context, job *models.Job, db *store.DB) error {
		if calls.Add(1) == 1 {
			return errors.New("transient failure")
		}
		return db.CompleteJob(job.ID, "")
	})

	id, err := db.CreateJob("flaky", nil)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	w.Start()
	defer w.Stop()

	waitForStatus(t, db, id, "completed")
	if calls.Load() != 2 {
		t.Errorf("handler ran %d times, want 2", calls.Load())
	}
}

func TestWorkerFailsAfterMaxAttempts(t *testing.T) {
	w, db := newTestWorker(t)

	var calls atomic.Int32
	w.Register("doomed", func(ctx context.Context, job *models.Job, db *store.DB) error {
		calls.Add(1)
		return errors.New("permanent failure")
	})

	id, err := db.CreateJob("doomed", nil)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	w.Start()
	defer w.Stop()

	job := waitForStatus(t, db, id, "failed")
	if job.Result != "permanent failure" {
		t.Errorf("result = %q, want the error message", job.Result)
	}
	if calls.Load() != int32(job.MaxAttempts) {
		t.Errorf("handler ran %d times, want %d", calls.Load(), job.MaxAttempts)
	}
}

func TestWorkerFailsUnknownType(t *testing.T) {
	w, db := newTestWorker(t)

	id, err := db.CreateJob("nobody-handles-this", nil)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	w.Start()
	defer w.Stop()

	job := waitForStatus(t, db, id, "failed")
	if !strings.Contains(job.Result, "unknown job type") {
		t.Errorf("result = %q, want an unknown-type message", job.Result)
	}
}

func TestIngestStatementHandlerBadPayload(t *testing.T) {
	_, db := newTestWorker(t)

	handler := IngestStatementHandler(nil, nil)
	job := &models.Job{ID: 1, Payload: "{not json"}
	err := handler(context.Background(), job, db)
	if err == nil || !strings.Contains(err.Error(), "unmarshal payload") {
		t.Fatalf("error = %v, want an unmarshal error", err)
	}
}

func TestFetchStatementsHandler(t *testing.T) {
	_, db := newTestWorker(t)

	id, err := db.CreateJob(TypeFetchStatements, nil)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	job, err := db.GetJob(id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}

	handler := FetchStatementsHandler(func(ctx context.Context) error { return nil })
	if err := handler(context.Background(), job, db); err != nil {
		t.Fatalf("handler: %v", err)
	}
	job = waitForStatus(t, db, id, "completed")
	if !strings.Contains(job.Result, "completed") {
		t.Errorf("result = %q", job.Result)
	}

	broken := FetchStatementsHandler(func(ctx context.Context) error { return errors.New("download failed") })
	if err := broken(context.Background(), job, db); err == nil {
		t.Error("handler swallowed the cycle error")
	}
}
