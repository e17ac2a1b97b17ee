package listener

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/malgorzata-bondini/offerings-app/internal/config"
	"github.com/malgorzata-bondini/offerings-app/internal/pipeline"
	"github.com/malgorzata-bondini/offerings-app/internal/storage"
)

const (
	StatusNew       = "new"
	StatusProcessed = "processed"
	StatusFailed    = "failed"

	settleDelay = 2 * time.Second
)

type generator interface {
	Generate(ctx context.Context, req pipeline.GenerateRequest) (pipeline.GenerateResult, error)
}

// Service watches the inbox directory and runs a generate pass for every
// new or changed workbook matching the input pattern.
type Service struct {
	db      *storage.DB
	cfg     config.Config
	profile config.Profile
	gen     generator
	log     *slog.Logger
}

func NewService(db *storage.DB, cfg config.Config, profile config.Profile) *Service {
	return &Service{
		db:      db,
		cfg:     cfg,
		profile: profile,
		gen:     pipeline.NewProcessingService(db, cfg),
		log:     slog.Default().With("component", "listener"),
	}
}

// Run sweeps the inbox once, then again after filesystem events settle and
// on every interval tick, until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.InputDir, 0o755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(s.cfg.InputDir); err != nil {
		return fmt.Errorf("watch %s: %w", s.cfg.InputDir, err)
	}

	interval := time.Duration(s.cfg.WatchIntervalSec) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	settle := time.NewTimer(0)
	defer settle.Stop()

	s.log.Info("listening", "dir", s.cfg.InputDir, "pattern", s.cfg.InputPattern, "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if s.relevant(ev) {
				settle.Reset(settleDelay)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("watch error", "err", err)
		case <-settle.C:
			s.sweepAndLog(ctx)
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *Service) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return false
	}
	return s.matches(filepath.Base(ev.Name))
}

func (s *Service) matches(base string) bool {
	if strings.HasPrefix(base, "~$") || strings.HasPrefix(base, ".") {
		return false
	}
	pattern := s.cfg.InputPattern
	if pattern == "" {
		pattern = "*.xlsx"
	}
	ok, err := filepath.Match(pattern, base)
	return err == nil && ok
}

func (s *Service) sweepAndLog(ctx context.Context) {
	n, err := s.Sweep(ctx)
	if err != nil {
		s.log.Error("sweep failed", "err", err)
		return
	}
	if n > 0 {
		s.log.Info("sweep done", "processed", n)
	}
}

// Sweep processes every matching file whose content has not been handled
// yet. Files are taken in name order. A failing file is marked failed and
// the sweep goes on.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.cfg.InputDir)
	if err != nil {
		return 0, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && s.matches(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	processed := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return processed, nil
		}
		ok, err := s.handle(ctx, filepath.Join(s.cfg.InputDir, name))
		if err != nil {
			return processed, err
		}
		if ok {
			processed++
		}
	}
	return processed, nil
}

func (s *Service) handle(ctx context.Context, path string) (bool, error) {
	hash, err := fileHash(path)
	if err != nil {
		s.log.Warn("hash failed", "file", path, "err", err)
		return false, nil
	}
	row, err := s.db.UpsertInput(path, hash)
	if err != nil {
		return false, err
	}
	if row.Status != StatusNew {
		return false, nil
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := filepath.Join(s.cfg.OutputDir, "listener", base+"_offerings.xlsx")
	res, err := s.gen.Generate(ctx, pipeline.GenerateRequest{
		Inputs:  []string{path},
		Profile: s.profile,
		Output:  out,
	})
	if err != nil {
		s.log.Error("generate failed", "file", path, "err", err)
		return false, s.db.UpdateInputStatus(row.ID, StatusFailed, nil)
	}

	runID := res.RunID
	if err := s.db.UpdateInputStatus(row.ID, StatusProcessed, &runID); err != nil {
		return false, err
	}
	s.log.Info("input processed", "file", path, "run", runID, "emitted", res.Summary.Counts.Emitted, "output", res.Output)
	return true, nil
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
