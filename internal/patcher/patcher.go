// Package patcher orchestrates migrations: it owns one document store
// handle and one patch source, and exposes the info, init, discover
// and upgrade operations the CLI maps onto.
//
// Upgrade is the core state machine: load manifest, build and validate
// the chain, acquire the advisory lock, then apply the unapplied
// suffix of the chain one patch at a time, checkpointing the manifest
// after every successful apply. A patch failure stops the run at the
// last recorded version; the lock is released on every exit path.
package patcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/docpatch/internal/docstore"
	"github.com/roach88/docpatch/internal/manifest"
	"github.com/roach88/docpatch/internal/patch"
)

// DefaultLockTTL is the default lease on the advisory upgrade lock.
// A crashed upgrader's lock can be reclaimed after this long.
const DefaultLockTTL = 5 * time.Minute

// Patcher applies a patch source to one document store.
type Patcher struct {
	store  *docstore.Store
	source patch.Source

	logger  *slog.Logger
	lockTTL time.Duration
	now     func() time.Time
	tokens  TokenGenerator
}

// Option configures a Patcher.
type Option func(*Patcher)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Patcher) { p.logger = logger }
}

// WithLockTTL sets the advisory lock lease duration.
func WithLockTTL(ttl time.Duration) Option {
	return func(p *Patcher) { p.lockTTL = ttl }
}

// WithClock sets the time source. For tests.
func WithClock(now func() time.Time) Option {
	return func(p *Patcher) { p.now = now }
}

// WithTokenGenerator sets the lock token generator. For tests.
func WithTokenGenerator(tokens TokenGenerator) Option {
	return func(p *Patcher) { p.tokens = tokens }
}

// New creates a Patcher over an open store and a patch source.
func New(store *docstore.Store, source patch.Source, opts ...Option) *Patcher {
	p := &Patcher{
		store:   store,
		source:  source,
		logger:  slog.Default(),
		lockTTL: DefaultLockTTL,
		now:     time.Now,
		tokens:  UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Info describes where a database stands relative to the patch chain.
type Info struct {
	Current  patch.Version           `json:"current"`
	Tip      patch.Version           `json:"tip"`
	UpToDate bool                    `json:"up_to_date"`
	Pending  int                     `json:"pending"`
	History  []manifest.HistoryEntry `json:"history,omitempty"`
}

// Info reports the current version, the chain tip, and how many
// patches remain. Read-only; does not take the lock.
func (p *Patcher) Info(ctx context.Context) (*Info, error) {
	m, err := manifest.Load(ctx, p.store)
	if err != nil {
		return nil, err
	}

	chain, err := p.Discover(ctx)
	if err != nil {
		return nil, err
	}

	pending, err := chain.PathFrom(m.Version)
	if err != nil {
		return nil, err
	}

	return &Info{
		Current:  m.Version,
		Tip:      chain.Tip(),
		UpToDate: len(pending) == 0,
		Pending:  len(pending),
		History:  m.History,
	}, nil
}

// Init creates the manifest at the initial version. Fails with
// manifest.ErrAlreadyInitialized if the database already has one.
func (p *Patcher) Init(ctx context.Context) error {
	if _, err := manifest.Init(ctx, p.store, p.now()); err != nil {
		return err
	}
	p.logger.Info("manifest initialized", "version", patch.Initial)
	return nil
}

// Discover loads the patch source and validates it into a chain.
// Read-only; used to sanity-check a patch source before upgrading.
func (p *Patcher) Discover(ctx context.Context) (*patch.Chain, error) {
	patches, err := p.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load patch source: %w", err)
	}
	return patch.Build(patches)
}

// Step is one applied (or pending) patch in a report.
type Step struct {
	Base   patch.Version `json:"base"`
	Target patch.Version `json:"target"`
	Note   string        `json:"note,omitempty"`
}

// Report summarizes an upgrade or a dry run.
type Report struct {
	From     patch.Version `json:"from"`
	To       patch.Version `json:"to"`
	Applied  []Step        `json:"applied"`
	Notices  []string      `json:"notices,omitempty"`
	UpToDate bool          `json:"up_to_date"`
	DryRun   bool          `json:"dry_run,omitempty"`
}

// Plan is a dry run: it computes what Upgrade would apply without
// taking the lock or touching anything.
func (p *Patcher) Plan(ctx context.Context) (*Report, error) {
	m, err := manifest.Load(ctx, p.store)
	if err != nil {
		return nil, err
	}

	chain, err := p.Discover(ctx)
	if err != nil {
		return nil, err
	}

	path, err := chain.PathFrom(m.Version)
	if err != nil {
		return nil, err
	}

	report := &Report{From: m.Version, To: m.Version, Applied: []Step{}, DryRun: true}
	for _, pt := range path {
		report.Applied = append(report.Applied, Step{Base: pt.Base, Target: pt.Target, Note: pt.Note})
		if pt.Notice != "" {
			report.Notices = append(report.Notices, fmt.Sprintf("patch %s: %s", pt.Target, pt.Notice))
		}
		report.To = pt.Target
	}
	report.UpToDate = len(path) == 0
	return report, nil
}

// Upgrade applies every unapplied patch in chain order, checkpointing
// the manifest after each success.
//
// On a patch failure the returned error is a *patch.ApplyError and the
// Report covers what was applied before the failure; the manifest
// stays at the last successfully recorded version, so a later Upgrade
// resumes exactly there. Nothing is applied if the chain itself is
// invalid. The lock is released on success and failure alike.
func (p *Patcher) Upgrade(ctx context.Context) (*Report, error) {
	m, err := manifest.Load(ctx, p.store)
	if err != nil {
		return nil, err
	}

	chain, err := p.Discover(ctx)
	if err != nil {
		return nil, err
	}

	token := p.tokens.Generate()
	if err := m.AcquireLock(ctx, p.store, token, p.lockTTL, p.now()); err != nil {
		return nil, err
	}
	p.logger.Debug("lock acquired", "token", token, "ttl", p.lockTTL)
	defer func() {
		if err := m.ReleaseLock(ctx, p.store, token); err != nil {
			p.logger.Warn("lock release failed", "token", token, "error", err)
		} else {
			p.logger.Debug("lock released", "token", token)
		}
	}()

	path, err := chain.PathFrom(m.Version)
	if err != nil {
		return nil, err
	}

	report := &Report{From: m.Version, To: m.Version, Applied: []Step{}}
	if len(path) == 0 {
		report.UpToDate = true
		return report, nil
	}

	for _, pt := range path {
		p.logger.Info("applying patch", "base", pt.Base, "target", pt.Target)

		if err := pt.Apply(ctx, p.store); err != nil {
			return report, &patch.ApplyError{Base: pt.Base, Target: pt.Target, Err: err}
		}

		reason := fmt.Sprintf("upgrade from %s", pt.Base)
		if err := m.RecordApplied(ctx, p.store, pt.Target, p.now(), reason); err != nil {
			return report, fmt.Errorf("patch %s -> %s applied but checkpoint failed: %w", pt.Base, pt.Target, err)
		}

		report.Applied = append(report.Applied, Step{Base: pt.Base, Target: pt.Target, Note: pt.Note})
		if pt.Notice != "" {
			report.Notices = append(report.Notices, fmt.Sprintf("patch %s: %s", pt.Target, pt.Notice))
		}
		report.To = pt.Target
	}

	p.logger.Info("upgrade complete", "from", report.From, "to", report.To, "applied", len(report.Applied))
	return report, nil
}
