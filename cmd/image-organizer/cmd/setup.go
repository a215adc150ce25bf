package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"go-image-organizer/internal/analyzer"
	"go-image-organizer/internal/blob"
	"go-image-organizer/internal/database"
	"go-image-organizer/internal/helpers"
	"go-image-organizer/internal/index"
	"go-image-organizer/internal/jobs"
	"go-image-organizer/internal/models"
	"go-image-organizer/internal/pipeline"
	"go-image-organizer/internal/store"
)

// app is everything a command needs, opened from globalConfig.
type app struct {
	cfg      models.Config
	db       database.KV
	records  *store.RecordStore
	projects *store.ProjectStore
	taxonomy *store.Taxonomy
	tracker  *jobs.Tracker
	index    *index.Index
	blob     blob.Store
	service  *pipeline.Service
}

type appOptions struct {
	// withAnalyzer builds the Gemini client. Commands that never analyze
	// skip it so they run without an API key.
	withAnalyzer bool
	// withIndex opens the search index even when IndexEnabled is off.
	withIndex bool
	// noIndex skips the search index for commands that only read jobs
	// and projects.
	noIndex    bool
	jobCreated func(*models.Job)
}

// openApp opens the database, job tracker, blob store, analyzer and
// search index described by cfg.
func openApp(ctx context.Context, cfg models.Config, opts appOptions) (*app, error) {
	if !helpers.CheckAndMakeDir(cfg.DataDir) {
		return nil, fmt.Errorf("cannot create data directory %s", cfg.DataDir)
	}

	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", cfg.DatabaseBackend, err)
	}
	a := &app{
		cfg:      cfg,
		db:       db,
		records:  store.NewRecordStore(db),
		projects: store.NewProjectStore(db),
		taxonomy: store.NewTaxonomy(db),
	}
	a.tracker = jobs.NewTracker(jobs.WithPersister(store.NewJobStore(db)))
	if n, err := a.tracker.Load(); err != nil {
		log.WithError(err).Warn("Could not load persisted jobs")
	} else {
		log.Debugf("Loaded %d jobs", n)
	}

	a.blob, err = blob.New(cfg.Blob, globalHttpTransport)
	if err != nil {
		a.Close()
		return nil, err
	}

	deps := pipeline.Deps{
		Records:  a.records,
		Projects: a.projects,
		Taxonomy: a.taxonomy,
		Tracker:  a.tracker,
		Blob:     a.blob,
	}

	if (cfg.IndexEnabled || opts.withIndex) && !opts.noIndex {
		a.index, err = index.OpenOrCreateIndex(cfg.BleveIndexPath)
		if err != nil {
			a.Close()
			return nil, err
		}
		if cfg.IndexEnabled {
			deps.Index = a.index
		}
	}

	if opts.withAnalyzer {
		gemini, err := analyzer.NewGemini(ctx, cfg.Analyzer, globalHttpTransport)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("%w: %v", pipeline.ErrAnalyzerNotConfigured, err)
		}
		deps.Analyzer = gemini
	}

	a.service, err = pipeline.NewService(deps, pipeline.Options{
		Extensions:           cfg.Scan.Extensions,
		HashAlgorithm:        cfg.Scan.HashAlgorithm,
		BlobPathPattern:      cfg.Blob.PathPattern,
		RenameStrategy:       cfg.Rename.Strategy,
		MaxCollisionAttempts: cfg.Rename.MaxCollisionAttempts,
		AnalyzeTimeout:       time.Duration(cfg.Analyzer.TimeoutSec) * time.Second,
		JobCreated:           opts.jobCreated,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the index and database.
func (a *app) Close() {
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			log.WithError(err).Warn("Error closing search index")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil && !errors.Is(err, database.ErrClosed) {
			log.WithError(err).Warn("Error closing database")
		}
	}
}
