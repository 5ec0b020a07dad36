package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kavwad/clippertv/internal/config"
	"github.com/kavwad/clippertv/internal/filestore"
	"github.com/kavwad/clippertv/internal/ingest"
	"github.com/kavwad/clippertv/internal/jobs"
	"github.com/kavwad/clippertv/internal/logger"
	"github.com/kavwad/clippertv/internal/scheduler"
	"github.com/kavwad/clippertv/internal/store"
	"github.com/kavwad/clippertv/internal/version"
	"github.com/kavwad/clippertv/internal/web"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Printf("clippertv %s (built %s, commit %s)\n",
			version.Version, version.BuildTime, version.GitCommit)
		os.Exit(0)
	}

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	log := logger.Default()

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Error("database_open_failed", "path", cfg.DBPath, "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Init(); err != nil {
		log.Error("database_init_failed", "error", err.Error())
		os.Exit(1)
	}

	archive, err := filestore.New(cfg.ArchiveDir())
	if err != nil {
		log.Error("archive_init_failed", "path", cfg.ArchiveDir(), "error", err.Error())
		os.Exit(1)
	}

	pipe, err := ingest.New(cfg, db)
	if err != nil {
		log.Error("pipeline_init_failed", "error", err.Error())
		os.Exit(1)
	}

	sched := scheduler.New(cfg, db, archive)

	worker := jobs.NewWorker(db, log)
	worker.Register(jobs.TypeIngestStatement, jobs.IngestStatementHandler(pipe, archive))
	worker.Register(jobs.TypeFetchStatements, jobs.FetchStatementsHandler(sched.RunOnce))
	worker.Start()
	defer worker.Stop()

	if cfg.Schedule.Enabled {
		if err := sched.Start(); err != nil {
			log.Error("scheduler_start_failed", "error", err.Error())
			os.Exit(1)
		}
		defer sched.Stop()
	}

	app := web.NewApp(web.New(cfg, db, archive, pipe))

	go func() {
		log.Info("server_starting", "port", cfg.Port,
			"address", "http://localhost:"+cfg.Port, "version", version.Version)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("server_failed", "error", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	// In-flight requests get a grace period; the worker and scheduler
	// stop via the defers once the listener is down.
	log.Info("server_stopping")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("server_shutdown_failed", "error", err.Error())
	}
}
