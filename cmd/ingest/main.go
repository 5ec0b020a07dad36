package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kavwad/clippertv/internal/config"
	"github.com/kavwad/clippertv/internal/ingest"
	"github.com/kavwad/clippertv/internal/logger"
	"github.com/kavwad/clippertv/internal/store"
)

func main() {
	configPath := flag.String("config", "", "config file (default $CLIPPERTV_CONFIG)")
	rider := flag.String("rider", "", "rider for every file (default: detect from the card serial)")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: ingest [flags] <statement.pdf|export.csv|directory> ...")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if *rider != "" && !cfg.HasRider(*rider) {
		fmt.Fprintf(os.Stderr, "unknown rider %q (configured: %s)\n",
			*rider, strings.Join(cfg.Riders, ", "))
		os.Exit(1)
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open database:", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "init database:", err)
		os.Exit(1)
	}

	pipe, err := ingest.New(cfg, db)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pipeline:", err)
		os.Exit(1)
	}

	files, err := collectFiles(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no statement files found")
		os.Exit(1)
	}

	ctx := context.Background()
	var failed, newRows, duplicates, updated, skipped int
	for _, path := range files {
		res, err := ingestFile(ctx, pipe, *rider, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", filepath.Base(path), err)
			failed++
			continue
		}
		fmt.Printf("%s: rider %s: %d extracted, %d new, %d duplicates, %d updated\n",
			filepath.Base(path), res.Rider, res.Extracted,
			res.Merge.New, res.Merge.Duplicates, res.Merge.Updated)
		for _, w := range res.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
		newRows += res.Merge.New
		duplicates += res.Merge.Duplicates
		updated += res.Merge.Updated
		skipped += res.Merge.Skipped
	}

	fmt.Printf("\n%d of %d files ingested: %d new, %d duplicates, %d updated, %d skipped\n",
		len(files)-failed, len(files), newRows, duplicates, updated, skipped)
	if failed > 0 {
		os.Exit(1)
	}
}

// collectFiles expands directory arguments into the statement files they
// contain. Explicit file arguments pass through untouched so a typo'd
// extension still produces a per-file error instead of silence.
func collectFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || !isStatement(e.Name()) {
				continue
			}
			files = append(files, filepath.Join(arg, e.Name()))
		}
	}
	return files, nil
}

func isStatement(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".csv":
		return true
	}
	return false
}

func ingestFile(ctx context.Context, pipe *ingest.Pipeline, rider, path string) (ingest.Result, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		if rider == "" {
			detected, err := pipe.DetectRider(path)
			if err != nil {
				return ingest.Result{}, err
			}
			rider = detected
		}
		return pipe.IngestPDF(ctx, rider, path)
	case ".csv":
		// Exports carry no card serial, so there is nothing to detect.
		if rider == "" {
			return ingest.Result{}, fmt.Errorf("csv files need -rider")
		}
		f, err := os.Open(path)
		if err != nil {
			return ingest.Result{}, err
		}
		defer f.Close()
		return pipe.IngestCSV(ctx, rider, f)
	default:
		return ingest.Result{}, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}
