// Package engine turns candidate catalog rows into a deduplicated,
// SLA-annotated set of service offerings.
//
// A run is a pure batch transformation: records are filtered, named,
// assigned commitments and checked for duplicates strictly in input order.
// Configuration defects surface as ConfigError before any record is looked
// at, and a run returns either a complete summary or that error.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/malgorzata-bondini/offerings-app/internal"
	"github.com/malgorzata-bondini/offerings-app/internal/util"
)

const DefaultCategoryField = "category"

type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Config struct {
	Rule       Rule
	Convention Convention
	// Alternates override Convention for the records they match. The first
	// match wins.
	Alternates    []Alternate
	Profiles      ProfileTable
	CategoryField string
	Existing      []string
	Dedupe        DedupeOptions
	// Workers > 1 prepares records concurrently. Duplicate decisions are
	// always made serially in input order.
	Workers int
}

// Alternate renders the records When matches with its own convention.
type Alternate struct {
	When       Rule
	Convention Convention
}

type compiledAlternate struct {
	when       Rule
	convention *CompiledConvention
}

type Option func(*Batch)

func WithLogger(l *slog.Logger) Option {
	return func(b *Batch) {
		if l != nil {
			b.log = l
		}
	}
}

// Batch drives one run: Idle -> Running -> Completed, or Idle -> Failed
// when the configuration is rejected.
type Batch struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	started bool
	state   State
}

func NewBatch(cfg Config, opts ...Option) *Batch {
	b := &Batch{cfg: cfg, log: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Batch) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Batch) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

type plan struct {
	rule          Rule
	convention    *CompiledConvention
	alternates    []compiledAlternate
	profiles      ProfileTable
	lookup        profileIndex
	categoryField string
	seed          *Index
	workers       int
}

func compile(cfg Config) (*plan, error) {
	var errs []error
	if err := ValidateRule(cfg.Rule); err != nil {
		errs = append(errs, err)
	}
	conv, err := CompileConvention(cfg.Convention)
	if err != nil {
		errs = append(errs, err)
	}
	var alternates []compiledAlternate
	for i, alt := range cfg.Alternates {
		if err := validateRule(alt.When, fmt.Sprintf("alternates[%d]", i)); err != nil {
			errs = append(errs, err)
		}
		c, err := CompileConvention(alt.Convention)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		alternates = append(alternates, compiledAlternate{when: alt.When, convention: c})
	}
	if err := ValidateProfiles(cfg.Profiles); err != nil {
		errs = append(errs, err)
	}
	seed, err := NewIndex(cfg.Existing, cfg.Dedupe)
	if err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 1 {
		return nil, errs[0]
	}
	if len(errs) > 1 {
		return nil, errors.Join(errs...)
	}

	category := cfg.CategoryField
	if category == "" {
		category = DefaultCategoryField
	}
	return &plan{
		rule:          cfg.Rule,
		convention:    conv,
		alternates:    alternates,
		profiles:      cfg.Profiles,
		lookup:        indexProfiles(cfg.Profiles),
		categoryField: category,
		seed:          seed,
		workers:       cfg.Workers,
	}, nil
}

type draft struct {
	matched    bool
	name       string
	category   string
	commitment internal.Commitment
	profileKey string
}

func (p *plan) prepare(r internal.CandidateRecord) draft {
	if !Matches(r, p.rule) {
		return draft{}
	}
	commitment, key := assignWith(r, p.profiles, p.lookup)
	return draft{
		matched:    true,
		name:       p.conventionFor(r).Render(r),
		category:   r.Value(p.categoryField),
		commitment: commitment,
		profileKey: key,
	}
}

func (p *plan) conventionFor(r internal.CandidateRecord) *CompiledConvention {
	for _, alt := range p.alternates {
		if Matches(r, alt.when) {
			return alt.convention
		}
	}
	return p.convention
}

// Run processes records once. Calling Run again returns ErrBatchUsed.
func (b *Batch) Run(records []internal.CandidateRecord) (internal.RunSummary, error) {
	return b.RunContext(context.Background(), records)
}

// RunContext is Run with cancellation. A cancelled ctx fails the batch
// with ctx.Err() before any duplicate decision is made.
func (b *Batch) RunContext(ctx context.Context, records []internal.CandidateRecord) (internal.RunSummary, error) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return internal.RunSummary{}, ErrBatchUsed
	}
	b.started = true
	b.mu.Unlock()

	p, err := compile(b.cfg)
	if err != nil {
		b.setState(StateFailed)
		b.log.Error("batch rejected", "convention", b.cfg.Convention.ID, "err", err)
		return internal.RunSummary{}, err
	}

	b.setState(StateRunning)
	start := time.Now()
	drafts, err := p.prepareAll(ctx, records)
	if err != nil {
		b.setState(StateFailed)
		b.log.Error("batch failed", "convention", p.convention.ID, "err", err)
		return internal.RunSummary{}, err
	}

	summary := internal.RunSummary{
		Emitted:  make([]internal.ServiceOffering, 0),
		Outcomes: make([]internal.Outcome, 0, len(records)),
	}
	index := p.seed.Clone()
	for i, r := range records {
		d := drafts[i]
		summary.Counts.Input++

		// a name that normalizes to nothing can neither be emitted nor
		// deduplicated
		if !d.matched || util.NormalizeName(d.name) == "" {
			summary.Counts.FilteredOut++
			summary.Outcomes = append(summary.Outcomes, internal.Outcome{RecordID: r.ID, Disposition: internal.DispositionFiltered, Name: d.name})
			if d.matched {
				b.log.Warn("record rendered an empty name", "record", r.ID)
			}
			continue
		}

		if hit, dup := index.Lookup(d.name); dup {
			summary.Counts.DuplicateSuppressed++
			summary.Outcomes = append(summary.Outcomes, internal.Outcome{RecordID: r.ID, Disposition: internal.DispositionDuplicate, Name: d.name, DuplicateOf: hit})
			b.log.Debug("duplicate suppressed", "record", r.ID, "name", d.name, "duplicate_of", hit)
			continue
		}

		index = Register(d.name, index)
		summary.Counts.Emitted++
		summary.Emitted = append(summary.Emitted, internal.ServiceOffering{
			Name:       d.name,
			Category:   d.category,
			Commitment: d.commitment,
			ProfileKey: d.profileKey,
			Source:     r,
		})
		summary.Outcomes = append(summary.Outcomes, internal.Outcome{RecordID: r.ID, Disposition: internal.DispositionEmitted, Name: d.name})
	}

	b.setState(StateCompleted)
	b.log.Info("batch completed",
		"convention", p.convention.ID,
		"input", summary.Counts.Input,
		"filtered_out", summary.Counts.FilteredOut,
		"duplicate_suppressed", summary.Counts.DuplicateSuppressed,
		"emitted", summary.Counts.Emitted,
		"elapsed", time.Since(start),
	)
	return summary, nil
}

func (p *plan) prepareAll(ctx context.Context, records []internal.CandidateRecord) ([]draft, error) {
	drafts := make([]draft, len(records))
	if p.workers <= 1 || len(records) < 2 {
		for i, r := range records {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			drafts[i] = p.prepare(r)
		}
		return drafts, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range records {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			drafts[i] = p.prepare(records[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return drafts, nil
}

// Generate runs a fresh batch over records.
func Generate(cfg Config, records []internal.CandidateRecord, opts ...Option) (internal.RunSummary, error) {
	return NewBatch(cfg, opts...).Run(records)
}

// Validate reports configuration errors without running anything.
func Validate(cfg Config) error {
	_, err := compile(cfg)
	return err
}
