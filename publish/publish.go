// Package publish hands local tarballs to the npm client for publication on
// the target registry.
//
// Every file is published with one invocation of
//
//	<command> <base args> --registry <target> <file>
//
// which defaults to "npm publish --registry <target> <file>". An invocation
// succeeds only when it exits zero and writes nothing to stderr.
package publish

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/input-output-hk/migrate-npm-registry/errors"
	"github.com/input-output-hk/migrate-npm-registry/executor"
)

// DefaultProgram and DefaultArgs form the default publish command.
const DefaultProgram = "npm"

var DefaultArgs = []string{"publish"}

var errStderr = errors.New(errors.CodePublishFailed, "publish command wrote to stderr")

// Outcome is the result of publishing one file.
type Outcome struct {
	File   string
	Output string
	Err    error
}

// Publisher runs the publish command against one target registry.
type Publisher struct {
	exec        *executor.WrappedExecutor
	target      string
	logger      *slog.Logger
	workDir     string
	env         map[string]string
	concurrency int
}

type publishOptions struct {
	program     string
	args        []string
	logger      *slog.Logger
	workDir     string
	env         map[string]string
	concurrency int
}

// Option configures a Publisher.
type Option func(*publishOptions)

// WithCommand replaces the publish command. args are placed before the
// registry flag.
func WithCommand(program string, args ...string) Option {
	return func(o *publishOptions) {
		o.program = program
		o.args = args
	}
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(o *publishOptions) {
		o.logger = logger
	}
}

// WithWorkingDir runs the command in dir.
func WithWorkingDir(dir string) Option {
	return func(o *publishOptions) {
		o.workDir = dir
	}
}

// WithEnv adds environment variables to every invocation.
func WithEnv(env map[string]string) Option {
	return func(o *publishOptions) {
		o.env = env
	}
}

// WithConcurrency caps simultaneous invocations per PublishAll call. Zero or
// less starts all of them at once.
func WithConcurrency(n int) Option {
	return func(o *publishOptions) {
		o.concurrency = n
	}
}

// New creates a Publisher for the target registry URL.
func New(target string, opts ...Option) *Publisher {
	o := &publishOptions{
		program: DefaultProgram,
		args:    DefaultArgs,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	return &Publisher{
		exec:        executor.NewWrappedExecutor(o.program, o.args...),
		target:      target,
		logger:      o.logger,
		workDir:     o.workDir,
		env:         o.env,
		concurrency: o.concurrency,
	}
}

// Target returns the registry URL files are published to.
func (p *Publisher) Target() string {
	return p.target
}

// Args returns the per-file arguments appended to the base command.
func (p *Publisher) Args(file string) []string {
	return []string{"--registry", p.target, file}
}

// CommandLine renders the full invocation for file.
func (p *Publisher) CommandLine(file string) string {
	return p.exec.Command(p.Args(file)...).String()
}

// Publish publishes file and returns the command's stdout.
func (p *Publisher) Publish(ctx context.Context, file string) (string, error) {
	logger := p.logger.With("file", file, "registry", p.target)
	logger.Debug("publishing", "command", p.CommandLine(file))

	var opts []executor.Option
	if p.workDir != "" {
		opts = append(opts, executor.WithWorkingDir(p.workDir))
	}
	if len(p.env) > 0 {
		opts = append(opts, executor.WithEnv(p.env))
	}

	result, err := p.exec.Execute(ctx, p.Args(file), opts...)

	exitCode, stderr := -1, ""
	if result != nil {
		exitCode, stderr = result.ExitCode, result.Stderr
	}
	info := map[string]any{"file": file, "exit_code": exitCode}
	if stderr != "" {
		info["stderr"] = stderr
	}

	switch {
	case err != nil && ctx.Err() != nil:
		return "", errors.WrapWithContext(err, errors.CodeCancelled, "publish cancelled", info)
	case err != nil:
		logger.Warn("publish failed", "exit_code", exitCode, "stderr", stderr)
		return "", errors.WrapWithContext(err, errors.CodePublishFailed, "publish failed", info)
	case stderr != "":
		logger.Warn("publish wrote to stderr", "stderr", stderr)
		return "", errors.WrapWithContext(errStderr, errors.CodePublishFailed, "publish failed", info)
	}

	logger.Info("published")
	return result.Stdout, nil
}

// PublishAll publishes every file concurrently. The first failure cancels
// the remaining invocations, killing their processes, and is returned.
// Outcomes are in input order.
func (p *Publisher) PublishAll(ctx context.Context, files []string) ([]Outcome, error) {
	outcomes := make([]Outcome, len(files))

	g, gctx := errgroup.WithContext(ctx)
	if p.concurrency > 0 {
		g.SetLimit(p.concurrency)
	}

	for i, file := range files {
		outcomes[i].File = file
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				outcomes[i].Err = errors.WrapWithContext(err, errors.CodeCancelled,
					"publish cancelled", map[string]any{"file": file})
				return outcomes[i].Err
			}
			out, err := p.Publish(gctx, file)
			outcomes[i].Output = out
			outcomes[i].Err = err
			return err
		})
	}

	return outcomes, g.Wait()
}
