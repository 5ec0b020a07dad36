package web

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kavwad/clippertv/internal/categorize"
	"github.com/kavwad/clippertv/internal/jobs"
	"github.com/kavwad/clippertv/internal/logger"
	"github.com/kavwad/clippertv/internal/models"
	"github.com/kavwad/clippertv/internal/normalize"
	"github.com/kavwad/clippertv/internal/stats"
	"github.com/kavwad/clippertv/internal/version"
)

// Dataset is one series of a chart payload.
type Dataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
	Color string    `json:"color"`
}

// ChartData is the chart payload served to the dashboard: one label
// per period, oldest first, and one dataset per series.
type ChartData struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// Health reports liveness.
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "version": version.Version})
}

// Riders lists the configured riders.
func (h *Handler) Riders(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"riders": h.cfg.Riders})
}

// rider validates the :rider path parameter against the configuration.
func (h *Handler) rider(c *fiber.Ctx) (string, error) {
	rider := c.Params("rider")
	if !h.cfg.HasRider(rider) {
		return "", fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("unknown rider %q", rider))
	}
	return rider, nil
}

// Trips serves the rider's trip counts per period and mode as a
// stacked-chart payload. ?period=month (default) or year.
func (h *Handler) Trips(c *fiber.Ctx) error {
	rider, err := h.rider(c)
	if err != nil {
		return err
	}
	txns, err := h.db.LoadTransactions(rider)
	if err != nil {
		return err
	}

	var pivot stats.TripPivot
	switch period := c.Query("period", "month"); period {
	case "month":
		pivot = stats.TripsByMonth(txns)
	case "year":
		pivot = stats.TripsByYear(txns)
	default:
		return fiber.NewError(fiber.StatusBadRequest,
			fmt.Sprintf("period must be month or year, not %q", period))
	}

	colors, err := h.modeColors()
	if err != nil {
		return err
	}

	chart := ChartData{Labels: []string{}, Datasets: []Dataset{}}
	for i := len(pivot.Rows) - 1; i >= 0; i-- {
		chart.Labels = append(chart.Labels, periodLabel(pivot.Rows[i].Period))
	}
	for col, mode := range pivot.Columns {
		ds := Dataset{Label: mode, Color: modeColor(colors, mode), Data: make([]float64, 0, len(pivot.Rows))}
		for i := len(pivot.Rows) - 1; i >= 0; i-- {
			ds.Data = append(ds.Data, float64(pivot.Rows[i].Counts[col]))
		}
		chart.Datasets = append(chart.Datasets, ds)
	}
	return c.JSON(chart)
}

// Costs serves the rider's net cost per period and mode, same shape
// and ordering as Trips.
func (h *Handler) Costs(c *fiber.Ctx) error {
	rider, err := h.rider(c)
	if err != nil {
		return err
	}
	txns, err := h.db.LoadTransactions(rider)
	if err != nil {
		return err
	}

	var pivot stats.CostPivot
	switch period := c.Query("period", "month"); period {
	case "month":
		pivot = stats.CostsByMonth(txns)
	case "year":
		pivot = stats.CostsByYear(txns)
	default:
		return fiber.NewError(fiber.StatusBadRequest,
			fmt.Sprintf("period must be month or year, not %q", period))
	}

	colors, err := h.modeColors()
	if err != nil {
		return err
	}

	chart := ChartData{Labels: []string{}, Datasets: []Dataset{}}
	for i := len(pivot.Rows) - 1; i >= 0; i-- {
		chart.Labels = append(chart.Labels, periodLabel(pivot.Rows[i].Period))
	}
	for col, mode := range pivot.Columns {
		ds := Dataset{Label: mode, Color: modeColor(colors, mode), Data: make([]float64, 0, len(pivot.Rows))}
		for i := len(pivot.Rows) - 1; i >= 0; i-- {
			ds.Data = append(ds.Data, math.Round(pivot.Rows[i].Costs[col]*100)/100)
		}
		chart.Datasets = append(chart.Datasets, ds)
	}
	return c.JSON(chart)
}

// Summary serves the rider's dashboard headline numbers.
func (h *Handler) Summary(c *fiber.Ctx) error {
	rider, err := h.rider(c)
	if err != nil {
		return err
	}
	txns, err := h.db.LoadTransactions(rider)
	if err != nil {
		return err
	}

	summary, err := stats.Summarize(stats.TripsByMonth(txns), stats.CostsByMonth(txns), txns)
	if errors.Is(err, stats.ErrNoData) {
		return fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("no transactions for rider %q", rider))
	}
	if err != nil {
		return err
	}
	return c.JSON(summary)
}

// riderPalette assigns comparison series colors, reusing the transit
// mode palette in a fixed order.
var riderPalette = []string{"AC Transit", "Muni Metro", "BART", "Muni Bus", "Cable Car", "Ferry"}

// Comparison serves every rider's monthly trip total on one shared
// month axis, oldest first. Months a rider sat out chart as zero.
func (h *Handler) Comparison(c *fiber.Ctx) error {
	var first, last time.Time
	totals := make(map[string]map[string]int, len(h.cfg.Riders))
	for _, rider := range h.cfg.Riders {
		txns, err := h.db.LoadTransactions(rider)
		if err != nil {
			return err
		}
		byMonth := make(map[string]int)
		for _, row := range stats.TripsByMonth(txns).Rows {
			month, err := time.Parse("2006-01", row.Period)
			if err != nil {
				continue
			}
			byMonth[row.Period] = row.Total()
			if first.IsZero() || month.Before(first) {
				first = month
			}
			if month.After(last) {
				last = month
			}
		}
		totals[rider] = byMonth
	}

	chart := ChartData{Labels: []string{}, Datasets: []Dataset{}}
	var months []string
	if !first.IsZero() {
		for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
			months = append(months, m.Format("2006-01"))
			chart.Labels = append(chart.Labels, m.Format("Jan 2006"))
		}
	}

	colors, err := h.modeColors()
	if err != nil {
		return err
	}
	for i, rider := range h.cfg.Riders {
		ds := Dataset{
			Label: rider,
			Color: modeColor(colors, riderPalette[i%len(riderPalette)]),
			Data:  make([]float64, 0, len(months)),
		}
		for _, m := range months {
			ds.Data = append(ds.Data, float64(totals[rider][m]))
		}
		chart.Datasets = append(chart.Datasets, ds)
	}
	return c.JSON(chart)
}

// UploadStatement archives an uploaded statement PDF and queues its
// ingestion, answering 202 with the job ID. ?sync=1 runs the pipeline
// inline instead and returns the ingest result directly.
func (h *Handler) UploadStatement(c *fiber.Ctx) error {
	rider, err := h.rider(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("statement")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, `multipart field "statement" is required`)
	}
	if !strings.EqualFold(filepath.Ext(fh.Filename), ".pdf") {
		return fiber.NewError(fiber.StatusBadRequest, "only PDF statements are supported")
	}

	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	name, existing, err := h.archive.Save(fh.Filename, f)
	if err != nil {
		return fmt.Errorf("archive statement: %w", err)
	}
	if existing {
		logger.FromContext(c.UserContext()).Info("statement_already_archived",
			"rider", rider, "file", name)
	}

	if c.QueryBool("sync") {
		result, err := h.pipe.IngestPDF(c.UserContext(), rider, h.archive.FullPath(name))
		var uncat *categorize.UncategorizedError
		if errors.As(err, &uncat) {
			// The batch was not persisted; the result carries what the
			// pipeline saw so the caller can fix the rows or the rules.
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error":  err.Error(),
				"result": result,
			})
		}
		if err != nil {
			return err
		}
		return c.JSON(result)
	}

	id, err := h.db.CreateJob(jobs.TypeIngestStatement, jobs.IngestStatementPayload{Rider: rider, File: name})
	if err != nil {
		return fmt.Errorf("queue ingestion: %w", err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"job_id": id, "file": name})
}

// manualEntryRequest is the POST body for hand-logged rides: a display
// mode or "Caltrain Pass", a date, and an optional repeat count.
type manualEntryRequest struct {
	Date  string `json:"date"`
	Mode  string `json:"mode"`
	Rides int    `json:"rides"`
}

// AddManualEntries records rides logged by hand. Regular modes store a
// categorized row with no amounts; "Caltrain Pass" stores the monthly
// pass purchase as a Reload. The merge result reports what was stored,
// so identical repeats dropped by content dedup are visible.
func (h *Handler) AddManualEntries(c *fiber.Ctx) error {
	rider, err := h.rider(c)
	if err != nil {
		return err
	}
	var req manualEntryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Rides <= 0 {
		req.Rides = 1
	}

	date := time.Now()
	if req.Date != "" {
		date, err = time.Parse("2006-01-02", req.Date)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest,
				fmt.Sprintf("date must be YYYY-MM-DD, not %q", req.Date))
		}
	}

	var txns []models.Transaction
	if req.Mode == "Caltrain Pass" {
		cost := models.MonthlyPassCost
		txns = append(txns, models.Transaction{
			Date:     date,
			Type:     models.ManualEntryType,
			Category: "Reload",
			Product:  models.MonthlyPassProduct,
			Credit:   &cost,
		})
	} else {
		category, ok := models.SubmitCategories[req.Mode]
		if !ok {
			return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("unknown mode %q", req.Mode))
		}
		for i := 0; i < req.Rides; i++ {
			txns = append(txns, models.Transaction{
				Date:     date,
				Type:     models.ManualEntryType,
				Category: category,
			})
		}
	}

	merge, err := h.db.AddTransactions(rider, txns)
	if err != nil {
		return fmt.Errorf("save manual entries: %w", err)
	}
	return c.Status(fiber.StatusCreated).JSON(merge)
}

// Jobs lists recent background jobs, newest first.
func (h *Handler) Jobs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	recent, err := h.db.ListRecentJobs(limit)
	if err != nil {
		return err
	}
	out := make([]fiber.Map, 0, len(recent))
	for _, j := range recent {
		out = append(out, jobJSON(j))
	}
	return c.JSON(fiber.Map{"jobs": out})
}

// JobStatus returns one job's progress for polling.
func (h *Handler) JobStatus(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid job ID")
	}
	job, err := h.db.GetJob(int64(id))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "job not found")
	}
	return c.JSON(jobJSON(*job))
}

func jobJSON(j models.Job) fiber.Map {
	return fiber.Map{
		"id":         j.ID,
		"type":       j.JobType,
		"status":     j.Status,
		"progress":   j.Progress,
		"result":     j.Result,
		"attempts":   j.Attempts,
		"created_at": j.CreatedAt,
	}
}

// ExportTransactions streams the rider's history as CSV in statement
// column order. The date format matches what ingestion parses, so an
// export re-imports cleanly.
func (h *Handler) ExportTransactions(c *fiber.Ctx) error {
	rider, err := h.rider(c)
	if err != nil {
		return err
	}
	txns, err := h.db.LoadTransactions(rider)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{
		normalize.ColDate, normalize.ColType, normalize.ColCategory,
		normalize.ColLocation, normalize.ColRoute, normalize.ColProduct,
		normalize.ColDebit, normalize.ColCredit, normalize.ColBalance,
	})
	for _, t := range txns {
		w.Write([]string{
			t.Date.Format(normalize.DateLayout),
			t.Type,
			t.Category,
			t.Location,
			t.Route,
			t.Product,
			money(t.Debit),
			money(t.Credit),
			money(t.Balance),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}

	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", "clippertv-"+rider+".csv"))
	return c.Send(buf.Bytes())
}

// modeColors maps transit mode names to their chart colors.
func (h *Handler) modeColors() (map[string]string, error) {
	modes, err := h.db.TransitModes()
	if err != nil {
		return nil, err
	}
	colors := make(map[string]string, len(modes))
	for _, m := range modes {
		colors[m.Name] = m.Color
	}
	return colors, nil
}

func modeColor(colors map[string]string, mode string) string {
	if c, ok := colors[mode]; ok {
		return c
	}
	return "#888888"
}

// periodLabel renders a pivot period key for chart axes: months as
// "Jan 2025", years as themselves.
func periodLabel(period string) string {
	if t, err := time.Parse("2006-01", period); err == nil {
		return t.Format("Jan 2006")
	}
	return period
}

func money(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', 2, 64)
}
