// Package ingest runs Clipper statements through extraction,
// normalization, categorization, and persistence as one pipeline.
package ingest

import (
	"context"
	"fmt"
	"io"
	"math"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/kavwad/clippertv/internal/categorize"
	"github.com/kavwad/clippertv/internal/config"
	"github.com/kavwad/clippertv/internal/extract"
	"github.com/kavwad/clippertv/internal/logger"
	"github.com/kavwad/clippertv/internal/models"
	"github.com/kavwad/clippertv/internal/normalize"
	"github.com/kavwad/clippertv/internal/store"
)

// Pipeline ties the statement stages together for one deployment's
// configuration.
type Pipeline struct {
	store  *store.DB
	engine *categorize.Engine
	opts   extract.Options
	cfg    config.Config
}

// Result reports what one statement ingestion did.
type Result struct {
	BatchID   string             `json:"batch_id"`
	Rider     string             `json:"rider"`
	Source    string             `json:"source"`
	Extracted int                `json:"extracted"`
	Dropped   int                `json:"dropped"`
	Merge     models.MergeResult `json:"merge"`
	Warnings  []string           `json:"warnings,omitempty"`
}

// ExtractOptions parses the configured table areas into extraction
// options.
func ExtractOptions(cfg config.Config) (extract.Options, error) {
	var opts extract.Options
	if s := cfg.Extract.FirstPageArea; s != "" {
		area, err := extract.ParseArea(s)
		if err != nil {
			return opts, fmt.Errorf("first page area: %w", err)
		}
		opts.FirstPageArea = &area
	}
	if s := cfg.Extract.OtherPagesArea; s != "" {
		area, err := extract.ParseArea(s)
		if err != nil {
			return opts, fmt.Errorf("other pages area: %w", err)
		}
		opts.OtherPagesArea = &area
	}
	return opts, nil
}

// New builds a pipeline from the configuration. The table areas are
// parsed here so a bad config fails at startup, not per statement.
func New(cfg config.Config, db *store.DB) (*Pipeline, error) {
	opts, err := ExtractOptions(cfg)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		store:  db,
		engine: categorize.Default(),
		opts:   opts,
		cfg:    cfg,
	}, nil
}

// DetectRider resolves which configured rider a statement belongs to
// by the card serial printed on it.
func (p *Pipeline) DetectRider(path string) (string, error) {
	serial, err := extract.CardSerial(path)
	if err != nil {
		return "", fmt.Errorf("scan %s: %w", filepath.Base(path), err)
	}
	if serial == "" {
		return "", fmt.Errorf("no card serial found in %s", filepath.Base(path))
	}
	rider, ok := p.cfg.RiderForCard(serial)
	if !ok {
		return "", fmt.Errorf("card %s is not assigned to a rider", serial)
	}
	return rider, nil
}

// IngestPDF extracts a statement PDF and merges its transactions into
// the rider's history.
func (p *Pipeline) IngestPDF(ctx context.Context, rider, path string) (Result, error) {
	raw, err := extract.Statement(path, p.opts)
	if err != nil {
		return Result{}, fmt.Errorf("extract %s: %w", filepath.Base(path), err)
	}
	return p.run(ctx, rider, filepath.Base(path), raw)
}

// IngestCSV merges a previously exported transaction CSV.
func (p *Pipeline) IngestCSV(ctx context.Context, rider string, r io.Reader) (Result, error) {
	raw, err := extract.CSVTable(r)
	if err != nil {
		return Result{}, fmt.Errorf("read csv: %w", err)
	}
	return p.run(ctx, rider, "csv", raw)
}

func (p *Pipeline) run(ctx context.Context, rider, source string, raw extract.RawTable) (Result, error) {
	if rider == "" {
		return Result{}, fmt.Errorf("no rider given for %s", source)
	}

	result := Result{
		BatchID:   uuid.NewString(),
		Rider:     rider,
		Source:    source,
		Extracted: len(raw.Records),
	}
	log := logger.FromContext(ctx).With(
		"batch_id", result.BatchID, "rider", rider, "source", source)
	log.Info("ingest_started", "rows", result.Extracted)

	if raw.Empty() {
		result.Warnings = append(result.Warnings, "no transactions found")
		log.Warn("ingest_empty")
		return result, nil
	}

	norm := normalize.Table(raw)
	result.Dropped = norm.Dropped
	result.Warnings = append(result.Warnings, norm.Warnings...)

	if err := p.engine.Apply(norm.Transactions); err != nil {
		// Persisting uncategorized rows would corrupt every pivot they
		// appear in, so the batch halts until the rule set catches up
		// or the rows are resolved by hand.
		log.Error("categorize_incomplete", "error", err)
		return result, fmt.Errorf("categorize %s: %w", source, err)
	}
	result.Warnings = append(result.Warnings, balanceWarnings(norm.Transactions)...)

	merge, err := p.store.AddTransactions(rider, norm.Transactions)
	if err != nil {
		log.Error("ingest_failed", "error", err)
		return result, fmt.Errorf("persist transactions: %w", err)
	}
	result.Merge = merge

	log.Info("ingest_finished",
		"extracted", result.Extracted,
		"dropped", result.Dropped,
		"new", merge.New,
		"duplicates", merge.Duplicates,
		"updated", merge.Updated,
		"skipped", merge.Skipped,
		"warnings", len(result.Warnings))
	return result, nil
}

// balanceWarnings checks that each row's running balance follows from
// the previous one. Statements list newest first, so the walk runs
// back-to-front. Gaps are reported, never fatal: a statement that
// starts mid-history or interleaves same-minute taps can disagree
// without being wrong.
func balanceWarnings(txns []models.Transaction) []string {
	var warnings []string
	var prev *models.Transaction
	for i := len(txns) - 1; i >= 0; i-- {
		t := &txns[i]
		if t.Balance == nil {
			prev = nil
			continue
		}
		if prev != nil {
			expected := *prev.Balance - t.DebitAmount() + t.CreditAmount()
			if math.Abs(expected-*t.Balance) > 0.005 {
				warnings = append(warnings, fmt.Sprintf(
					"balance discontinuity at %s: statement says %.2f, running total says %.2f",
					t.Date.Format("2006-01-02 15:04"), *t.Balance, expected))
			}
		}
		prev = t
	}
	return warnings
}
