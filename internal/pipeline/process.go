package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/malgorzata-bondini/offerings-app/internal"
	"github.com/malgorzata-bondini/offerings-app/internal/config"
	"github.com/malgorzata-bondini/offerings-app/internal/engine"
	"github.com/malgorzata-bondini/offerings-app/internal/storage"
)

type ProcessingService struct {
	db  *storage.DB
	cfg config.Config
	log *slog.Logger
}

func NewProcessingService(db *storage.DB, cfg config.Config) *ProcessingService {
	return &ProcessingService{db: db, cfg: cfg, log: slog.Default().With("component", "pipeline")}
}

type GenerateRequest struct {
	Inputs        []string
	ExistingFiles []string
	Profile       config.Profile
	// Output is the workbook path; empty writes into cfg.OutputDir.
	Output string
	// SkipCache leaves the stored catalog names out of the duplicate seed.
	SkipCache bool
}

type GenerateResult struct {
	RunID   string
	Summary internal.RunSummary
	Review  []internal.ReviewItem
	Output  string
	Timings map[string]float64
}

// Generate reads the inputs, expands them into candidates, runs the engine
// against every known offering name, stores the run and writes the output
// workbook.
func (s *ProcessingService) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	start := time.Now()
	runID := uuid.NewString()
	timings := map[string]float64{}
	mark := func(stage string, since time.Time) {
		timings[stage] = float64(time.Since(since).Microseconds()) / 1000
	}
	log := s.log.With("run", runID, "profile", req.Profile.Name)

	if len(req.Inputs) == 0 {
		return GenerateResult{}, fmt.Errorf("no input files")
	}

	t := time.Now()
	opts := ReadOptions{IncludeLevel2: req.Profile.Expand.IncludeLevel2}
	var sources []internal.CandidateRecord
	var existing []string
	for _, path := range req.Inputs {
		if err := ctx.Err(); err != nil {
			return GenerateResult{}, err
		}
		in, err := ReadInput(path, opts)
		if err != nil {
			return GenerateResult{}, err
		}
		log.Debug("input read", "file", in.Name, "records", len(in.Records), "existing", len(in.Existing))
		sources = append(sources, in.Records...)
		existing = append(existing, in.Existing...)
	}
	for _, path := range req.ExistingFiles {
		names, err := ReadExistingFile(path)
		if err != nil {
			return GenerateResult{}, fmt.Errorf("existing catalog %s: %w", path, err)
		}
		existing = append(existing, names...)
	}
	if !req.SkipCache {
		cached, err := s.db.ListExistingOfferingNames()
		if err != nil {
			return GenerateResult{}, err
		}
		existing = append(existing, cached...)
	}
	mark("readMs", t)

	engineCfg, err := req.Profile.EngineConfig(existing)
	if err != nil {
		return GenerateResult{}, err
	}

	t = time.Now()
	candidates := Expand(sources, req.Profile.Expand)
	missing := MarkMissingSchedules(candidates, NewScheduleChecker(sources, IsCorpConvention(engineCfg.Convention)))
	if missing > 0 {
		log.Warn("schedules missing from existing offerings", "candidates", missing)
	}
	mark("expandMs", t)
	if err := ctx.Err(); err != nil {
		return GenerateResult{}, err
	}

	t = time.Now()
	summary, err := engine.NewBatch(engineCfg, engine.WithLogger(log)).RunContext(ctx, candidates)
	if err != nil {
		return GenerateResult{}, err
	}
	mark("engineMs", t)

	t = time.Now()
	review := NewReviewer(s.cfg.ReviewThreshold, existing).Review(summary.Emitted)
	mark("reviewMs", t)

	output := req.Output
	if output == "" {
		output = filepath.Join(s.cfg.OutputDir, fmt.Sprintf("offerings_%s.xlsx", runID[:8]))
	}
	meta := ExportMeta{RunID: runID, Convention: engineCfg.Convention.ID, Profile: req.Profile.Name, Inputs: req.Inputs}

	t = time.Now()
	if err := ExportSummaryToXLSX(summary, review, meta, output); err != nil {
		return GenerateResult{}, fmt.Errorf("export: %w", err)
	}
	mark("exportMs", t)
	mark("totalMs", start)

	run := internal.RunRow{
		RunID:      runID,
		Convention: meta.Convention,
		Profile:    meta.Profile,
		Inputs:     req.Inputs,
		Output:     output,
		Counts:     summary.Counts,
		TimingsMs:  timings,
	}
	if err := s.db.InsertRun(run, OfferingRows(summary)); err != nil {
		return GenerateResult{}, fmt.Errorf("store run: %w", err)
	}

	log.Info("run stored",
		"sources", len(sources),
		"candidates", len(candidates),
		"existing", len(existing),
		"emitted", summary.Counts.Emitted,
		"review", len(review),
		"output", output,
	)
	return GenerateResult{RunID: runID, Summary: summary, Review: review, Output: output, Timings: timings}, nil
}
