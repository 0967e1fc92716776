package services

import (
	"errors"
	"os"
	"time"

	"manual-qa-backend/internal/config"
	"manual-qa-backend/internal/logger"
	"manual-qa-backend/models"

	"github.com/go-co-op/gocron"
)

// ReindexWatcher periodically compares the PDF's mtime against the
// served index and triggers a rebuild when the file changed on disk.
// Disabled when the configured interval is zero.
type ReindexWatcher struct {
	cfg         *config.Config
	coordinator *Coordinator
	scheduler   *gocron.Scheduler
}

func NewReindexWatcher(cfg *config.Config, coordinator *Coordinator) *ReindexWatcher {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	return &ReindexWatcher{
		cfg:         cfg,
		coordinator: coordinator,
		scheduler:   s,
	}
}

func (w *ReindexWatcher) Start() error {
	if w.cfg.ReindexIntervalMins <= 0 {
		return nil
	}
	interval := time.Duration(w.cfg.ReindexIntervalMins) * time.Minute
	if _, err := w.scheduler.Every(interval).Tag("reindex-watch").Do(w.check); err != nil {
		return err
	}
	w.scheduler.StartAsync()
	logger.Info("Reindex watcher started", "interval_mins", w.cfg.ReindexIntervalMins)
	return nil
}

func (w *ReindexWatcher) Stop() {
	w.scheduler.Stop()
}

func (w *ReindexWatcher) check() {
	pair := w.coordinator.Pair()
	if pair == nil {
		return
	}

	stat, err := os.Stat(w.cfg.PDFPath)
	if err != nil {
		logger.Warn("Reindex watch cannot stat pdf", "path", w.cfg.PDFPath, "error", err)
		return
	}

	indexed, err := time.Parse(time.RFC3339, pair.Meta.PDFModTime)
	if err != nil {
		return
	}
	if !stat.ModTime().UTC().Truncate(time.Second).After(indexed.Truncate(time.Second)) {
		return
	}

	logger.Info("PDF changed on disk, triggering rebuild", "path", w.cfg.PDFPath)
	if err := w.coordinator.Start(w.cfg.PDFPath); err != nil && !errors.Is(err, models.ErrBuildInProgress) {
		logger.Error("Scheduled rebuild failed to start", "error", err)
	}
}
