package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"gorm.io/gorm"

	"diary/internal/body"
	"diary/internal/config"
	"diary/internal/db"
	"diary/internal/diary"
	"diary/internal/jobs"
	"diary/internal/logger"
	"diary/internal/validation"
)

// app is everything a command needs, built from configuration.
type app struct {
	cfg       config.Config
	log       *slog.Logger
	db        *gorm.DB
	validator *validation.Validator
	// files holds note bodies: the write store for file storage, or the
	// read-only archive of earlier bodies under inline storage. Nil when
	// inline storage has no data path on disk.
	files     *body.FileStore
	reclaims  *jobs.Repo
	tags      *diary.TagStore
	notes     *diary.NoteStore
}

func newApp(opts *RootOptions, out io.Writer) (*app, error) {
	cfg, err := config.Load(opts.EnvFiles...)
	if err != nil {
		return nil, err
	}

	level := logger.ParseLevel(cfg.LogLevel)
	if opts.Verbose {
		level = slog.LevelDebug
	}
	log := logger.New(logger.Config{
		Writer:      out,
		Format:      cfg.LogFormat,
		Environment: cfg.Environment,
		Level:       level,
	})

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	a := &app{
		cfg:       cfg,
		log:       log,
		db:        gdb,
		validator: validation.New(cfg.MaxTitleLength),
		reclaims:  &jobs.Repo{DB: gdb},
	}
	inline := cfg.BodyStorage == config.BodyStorageInline
	if !inline || archiveExists(cfg.DataPath) {
		a.files, err = body.NewFileStore(cfg.DataPath)
		if err != nil {
			_ = a.close()
			return nil, err
		}
	}

	a.tags = &diary.TagStore{DB: gdb, Validator: a.validator}
	a.notes = &diary.NoteStore{DB: gdb, Tags: a.tags, Reclaims: a.reclaims, Log: log}
	switch {
	case a.files == nil:
	case inline:
		a.notes.Archive = a.files
	default:
		a.notes.Bodies = a.files
	}
	return a, nil
}

func archiveExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (a *app) close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
