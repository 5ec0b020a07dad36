// Package scheduler runs the monthly statement cycle: sign into each
// configured clippercard.com account, download last month's statement
// for every card, archive with content dedup, and enqueue an ingest
// job per new statement.
package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kavwad/clippertv/internal/clipperweb"
	"github.com/kavwad/clippertv/internal/config"
	"github.com/kavwad/clippertv/internal/filestore"
	"github.com/kavwad/clippertv/internal/jobs"
	"github.com/kavwad/clippertv/internal/logger"
	"github.com/kavwad/clippertv/internal/store"
)

// statementSource is the part of the clippercard client the cycle
// uses.
type statementSource interface {
	Login(ctx context.Context, email, password string) error
	Cards(ctx context.Context) ([]clipperweb.Card, error)
	DownloadStatement(ctx context.Context, card clipperweb.Card, from, to time.Time) ([]byte, string, error)
}

// Scheduler owns the cron entry and the download cycle.
type Scheduler struct {
	cfg     config.Config
	db      *store.DB
	archive *filestore.Store
	cron    *cron.Cron
	http    *http.Client

	now       func() time.Time
	newSource func() (statementSource, error)
}

// New builds a scheduler. Start registers the cron entry; RunOnce can
// also be called directly.
func New(cfg config.Config, db *store.DB, archive *filestore.Store) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		db:      db,
		archive: archive,
		cron:    cron.New(),
		http:    &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
		newSource: func() (statementSource, error) {
			return clipperweb.New()
		},
	}
}

// Start schedules the monthly cycle and begins ticking.
func (s *Scheduler) Start() error {
	spec := s.cfg.Schedule.Spec
	if spec == "" {
		spec = "0 2 2 * *"
	}
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if err := s.RunOnce(ctx); err != nil {
			logger.Default().Error("monthly_cycle_failed", "error", err.Error())
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

type cycleStats struct {
	downloaded int
	duplicates int
	enqueued   int
	failures   int
}

// RunOnce executes one download-and-enqueue cycle for every account.
// One bad account or card never blocks the others; the cycle only
// errors when nothing at all could be fetched.
func (s *Scheduler) RunOnce(ctx context.Context) (err error) {
	s.ping(ctx, "/start", "")
	defer func() {
		if err != nil {
			s.ping(ctx, "/fail", err.Error()+"\n\n"+logTail(s.cfg.LogFile, 4096))
		} else {
			s.ping(ctx, "", "")
		}
	}()

	log := logger.FromContext(ctx)
	accounts := s.cfg.Clipper.Accounts
	if len(accounts) == 0 {
		return errors.New("no clippercard accounts configured")
	}

	from, to := clipperweb.LastMonth(s.now())
	log.Info("monthly_cycle_started",
		"from", from.Format("2006-01-02"),
		"to", to.Format("2006-01-02"),
		"accounts", len(accounts))

	var stats cycleStats
	accountFailures := 0
	for _, account := range accounts {
		if err := s.runAccount(ctx, account, from, to, &stats); err != nil {
			log.Error("account_failed", "email", account.Email, "error", err.Error())
			accountFailures++
		}
	}

	log.Info("monthly_cycle_finished",
		"downloaded", stats.downloaded,
		"duplicates", stats.duplicates,
		"enqueued", stats.enqueued,
		"failures", stats.failures+accountFailures)

	if accountFailures == len(accounts) {
		return fmt.Errorf("all %d accounts failed", len(accounts))
	}
	return nil
}

func (s *Scheduler) runAccount(ctx context.Context, account config.ClipperAccount, from, to time.Time, stats *cycleStats) error {
	log := logger.FromContext(ctx)

	client, err := s.newSource()
	if err != nil {
		return err
	}
	if err := client.Login(ctx, account.Email, account.Password); err != nil {
		return err
	}
	cards, err := client.Cards(ctx)
	if err != nil {
		return err
	}
	if len(cards) == 0 {
		log.Warn("no_cards_on_account", "email", account.Email)
		return nil
	}

	for _, card := range cards {
		if err := s.fetchCard(ctx, client, card, from, to, stats); err != nil {
			log.Error("card_failed", "card", card.Serial, "error", err.Error())
			stats.failures++
		}
	}
	return nil
}

func (s *Scheduler) fetchCard(ctx context.Context, client statementSource, card clipperweb.Card, from, to time.Time, stats *cycleStats) error {
	log := logger.FromContext(ctx)

	body, name, err := client.DownloadStatement(ctx, card, from, to)
	if errors.Is(err, clipperweb.ErrNoStatement) {
		log.Info("no_statement", "card", card.Serial)
		return nil
	}
	if err != nil {
		return err
	}
	stats.downloaded++

	stored, existing, err := s.archive.Save(name, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("archive %s: %w", name, err)
	}
	if existing {
		log.Info("statement_already_archived", "card", card.Serial, "file", stored)
		stats.duplicates++
		return nil
	}

	rider, ok := s.cfg.RiderForCard(card.Serial)
	if !ok {
		log.Warn("card_unassigned", "card", card.Serial, "file", stored)
		return nil
	}

	id, err := s.db.CreateJob(jobs.TypeIngestStatement, jobs.IngestStatementPayload{Rider: rider, File: stored})
	if err != nil {
		return fmt.Errorf("enqueue ingest: %w", err)
	}
	log.Info("ingest_enqueued", "job_id", id, "rider", rider, "card", card.Serial, "file", stored)
	stats.enqueued++
	return nil
}

// ping reports to healthchecks.io when a check URL is configured.
// The failure ping must go out even when the run's context is already
// dead, so pings run on their own timeout.
func (s *Scheduler) ping(ctx context.Context, endpoint, body string) {
	base := s.cfg.Schedule.HealthcheckURL
	if base == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	url := strings.TrimRight(base, "/") + endpoint
	var req *http.Request
	var err error
	if body != "" {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
	if err != nil {
		return
	}
	resp, err := s.http.Do(req)
	if err != nil {
		logger.FromContext(ctx).Warn("healthcheck_ping_failed", "endpoint", endpoint, "error", err.Error())
		return
	}
	resp.Body.Close()
}

// logTail returns up to n bytes from the end of the log file, for the
// failure report.
func logTail(path string, n int64) string {
	if path == "" {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ""
	}
	off := info.Size() - n
	if off < 0 {
		off = 0
	}
	buf := make([]byte, info.Size()-off)
	if _, err := f.ReadAt(buf, off); err != nil {
		return ""
	}
	return string(buf)
}
