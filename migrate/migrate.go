package migrate

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/input-output-hk/migrate-npm-registry/archive"
	"github.com/input-output-hk/migrate-npm-registry/errors"
	"github.com/input-output-hk/migrate-npm-registry/fs"
	"github.com/input-output-hk/migrate-npm-registry/fs/billy"
	"github.com/input-output-hk/migrate-npm-registry/publish"
	"github.com/input-output-hk/migrate-npm-registry/registry"
	"github.com/input-output-hk/migrate-npm-registry/report"
	"github.com/input-output-hk/migrate-npm-registry/selector"
)

// Job is the state of one package's migration.
type Job struct {
	Package string
	Source  string
	Target  string

	Selection selector.Selection
	Tarballs  []registry.Tarball
	Archives  []*archive.Archive

	// Versions holds one outcome per source version, in version order.
	Versions []report.VersionOutcome
}

// Result is the settled outcome of a job.
type Result struct {
	Package string
	Job     *Job
	Err     error
}

// Failed reports whether the job failed.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Failed reports whether any job failed.
func Failed(results []Result) bool {
	return slices.ContainsFunc(results, Result.Failed)
}

// Unique returns pkgs without repeated names, keeping first occurrences in
// order.
func Unique(pkgs []string) []string {
	seen := make(map[string]struct{}, len(pkgs))
	out := make([]string, 0, len(pkgs))
	for _, p := range pkgs {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Migrator runs jobs under one Config.
type Migrator struct {
	cfg        Config
	client     *registry.Client
	fs         fs.Filesystem
	transferer *archive.Transferer
	publisher  *publish.Publisher
	reporter   *report.Reporter
	logger     *slog.Logger
}

type migratorOptions struct {
	logger    *slog.Logger
	client    *registry.Client
	fs        fs.Filesystem
	publisher *publish.Publisher
	reporter  *report.Reporter
}

// Option configures a Migrator.
type Option func(*migratorOptions)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(o *migratorOptions) {
		o.logger = logger
	}
}

// WithClient sets the registry client.
func WithClient(c *registry.Client) Option {
	return func(o *migratorOptions) {
		o.client = c
	}
}

// WithFilesystem sets the filesystem archives are staged on. It defaults to
// the host filesystem rooted at Config.WorkDir.
func WithFilesystem(fsys fs.Filesystem) Option {
	return func(o *migratorOptions) {
		o.fs = fsys
	}
}

// WithPublisher sets the publisher. It must target Config.Target.
func WithPublisher(p *publish.Publisher) Option {
	return func(o *migratorOptions) {
		o.publisher = p
	}
}

// WithReporter sets where progress lines go. Without one nothing is printed.
func WithReporter(r *report.Reporter) Option {
	return func(o *migratorOptions) {
		o.reporter = r
	}
}

// New creates a Migrator after validating cfg.
func New(cfg Config, opts ...Option) (*Migrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &migratorOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.client == nil {
		o.client = registry.NewClient(registry.WithLogger(o.logger))
	}
	if o.fs == nil {
		if cfg.WorkDir == "" {
			return nil, errors.New(errors.CodeInvalidConfig, "work directory is required")
		}
		workDir, err := fs.GetAbs(cfg.WorkDir)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidConfig, "invalid work directory")
		}
		o.fs = billy.NewOSFS(workDir)
	}
	if o.publisher == nil {
		o.publisher = publish.New(cfg.Target, publish.WithLogger(o.logger))
	}
	if o.publisher.Target() != cfg.Target {
		return nil, errors.Newf(errors.CodeInvalidConfig,
			"publisher targets %q, not %q", o.publisher.Target(), cfg.Target)
	}
	if o.reporter == nil {
		o.reporter = report.New(io.Discard)
	}

	return &Migrator{
		cfg:    cfg,
		client: o.client,
		fs:     o.fs,
		transferer: archive.NewTransferer(o.client, o.fs,
			archive.WithLogger(o.logger),
			archive.WithOnEntry(o.reporter.Entry),
		),
		publisher: o.publisher,
		reporter:  o.reporter,
		logger:    o.logger,
	}, nil
}

// RunAll migrates every package, at most Config.Concurrency at a time, and
// returns the results in input order. A package named more than once runs
// once, at its first position, since its jobs would share archive paths.
// Packages not started before ctx ends get a cancelled result.
func (m *Migrator) RunAll(ctx context.Context, pkgs []string) []Result {
	pkgs = Unique(pkgs)
	results := make([]Result, len(pkgs))

	limit := m.cfg.Concurrency
	if limit <= 0 {
		limit = max(len(pkgs), 1)
	}
	semaphore := make(chan struct{}, limit)

	var wg sync.WaitGroup
	for i, pkg := range pkgs {
		select {
		case semaphore <- struct{}{}:
		case <-ctx.Done():
			for j := i; j < len(pkgs); j++ {
				results[j] = Result{
					Package: pkgs[j],
					Err:     errors.Wrap(ctx.Err(), errors.CodeCancelled, "migration not started"),
				}
				m.reporter.Failure(pkgs[j], results[j].Err)
			}
			wg.Wait()
			return results
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-semaphore }()
			results[i] = m.Run(ctx, pkg)
		}()
	}

	wg.Wait()
	return results
}

// Run migrates one package and reports the outcome. It never panics on
// registry or publish failures; they end up in Result.Err.
func (m *Migrator) Run(ctx context.Context, pkg string) Result {
	job := &Job{Package: pkg, Source: m.cfg.Source, Target: m.cfg.Target}
	logger := m.logger.With("package", pkg)
	logger.Info("migrating package", "source", job.Source, "target", job.Target)

	err := m.run(ctx, job, logger)
	if err != nil {
		logger.Error("migration failed", "error", err)
		m.reporter.Failure(pkg, err)
		if len(job.Tarballs) > 0 {
			m.reporter.Summary(pkg, job.Versions)
		}
	} else {
		logger.Info("migration finished", "published", len(job.Archives))
		m.reporter.Done(pkg)
	}

	return Result{Package: pkg, Job: job, Err: err}
}

func (m *Migrator) run(ctx context.Context, job *Job, logger *slog.Logger) error {
	source, target, err := m.fetch(ctx, job.Package)
	if err != nil {
		return err
	}
	if target == nil {
		logger.Debug("package absent on target")
	}

	job.Selection = selector.Select(source, target, m.cfg.Policy())
	track := newOutcomes(source.VersionKeys())
	for _, s := range job.Selection.Skipped {
		m.reporter.Skip(job.Package, s.Version, string(s.Reason))
		track.set(s.Version, report.StatusSkipped, string(s.Reason), nil)
	}
	defer func() { job.Versions = track.list() }()

	job.Tarballs, err = registry.Locate(job.Selection.Retained)
	if err != nil {
		return err
	}
	if err := checkLocated(source, job.Selection, job.Tarballs); err != nil {
		return err
	}
	if len(job.Tarballs) == 0 {
		logger.Info("nothing to migrate")
		return nil
	}

	transfers, transferErr := m.transferer.Transfer(ctx, job.Package, job.Tarballs)
	for _, t := range transfers {
		if t.Archive != nil {
			job.Archives = append(job.Archives, t.Archive)
		}
	}
	defer m.cleanup(job, logger)

	if transferErr != nil {
		for _, t := range transfers {
			track.fail(t.Tarball.Version, t.Err)
		}
		return transferErr
	}

	files := make([]string, len(job.Archives))
	for i, a := range job.Archives {
		files[i] = m.hostPath(a.Path)
	}

	published, publishErr := m.publisher.PublishAll(ctx, files)
	for i, p := range published {
		version := job.Archives[i].Version
		if p.Err != nil {
			track.fail(version, p.Err)
			continue
		}
		track.set(version, report.StatusPublished, "", nil)
		m.reporter.PublishOutput(job.Package, p.Output)
	}
	return publishErr
}

func (m *Migrator) fetch(ctx context.Context, pkg string) (source, target *registry.Metadata, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		source, err = m.client.FetchSource(gctx, m.cfg.Source, pkg)
		return err
	})
	g.Go(func() error {
		var err error
		target, err = m.client.FetchTarget(gctx, m.cfg.Target, pkg)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return source, target, nil
}

// checkLocated verifies that the located tarballs are exactly the source
// versions the selection did not skip, in migration order.
func checkLocated(source *registry.Metadata, sel selector.Selection, tarballs []registry.Tarball) error {
	skipped := make(map[string]bool, len(sel.Skipped))
	for _, s := range sel.Skipped {
		skipped[s.Version] = true
	}
	var want []string
	for _, v := range source.VersionKeys() {
		if !skipped[v] {
			want = append(want, v)
		}
	}

	located := make([]string, len(tarballs))
	for i, tb := range tarballs {
		located[i] = tb.Version
	}
	if !slices.Equal(want, located) {
		return errors.Newf(errors.CodeInternal,
			"located tarballs %v do not match the selected versions %v", located, want)
	}
	return nil
}

func (m *Migrator) hostPath(p string) string {
	return filepath.Join(m.fs.Root(), filepath.FromSlash(p))
}

// cleanup drops the package's staging directory. The directory belongs to
// the job; RunAll never runs two jobs for one package.
func (m *Migrator) cleanup(job *Job, logger *slog.Logger) {
	if m.cfg.KeepArchives {
		return
	}
	dir := archive.PackageDir(job.Package)
	if err := m.fs.RemoveAll(dir); err != nil {
		logger.Warn("failed to remove archives", "dir", dir, "error", err)
	}
}
