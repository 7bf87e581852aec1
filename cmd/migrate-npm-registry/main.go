// Command migrate-npm-registry copies package versions from one npm registry
// to another.
//
//	migrate-npm-registry [OPTIONS] [pkg_name ...] source_registry target_registry
//
// Versions already present on the target are skipped. Every other version is
// downloaded, repacked into the work directory and published to the target
// with "npm publish".
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	flags "github.com/jessevdk/go-flags"

	"github.com/input-output-hk/migrate-npm-registry/fs"
	"github.com/input-output-hk/migrate-npm-registry/fs/billy"
	"github.com/input-output-hk/migrate-npm-registry/migrate"
	"github.com/input-output-hk/migrate-npm-registry/publish"
	"github.com/input-output-hk/migrate-npm-registry/registry"
	"github.com/input-output-hk/migrate-npm-registry/report"
)

// overridden via linker flags
var Version = "0.0.0-dev"

const (
	usage        = "usage: migrate-npm-registry [pkg_name ...] source_registry target_registry"
	msgNoPackage = "Fetching list of all packages not implemented. Please specify package name(s)."
)

const (
	exitOK         = 0
	exitFailure    = 1
	exitNoPackages = 2
)

// Options are the command line flags.
type Options struct {
	WorkDir      string        `long:"work-dir"      env:"MIGRATE_NPM_WORK_DIR"    description:"Directory archives are staged in (default: a new temporary directory)"`
	NPM          string        `long:"npm"           env:"MIGRATE_NPM_COMMAND"     default:"npm" description:"npm client used to publish"`
	Concurrency  int           `long:"concurrency"   env:"MIGRATE_NPM_CONCURRENCY" default:"0"   description:"Packages migrated at once, 0 for all"`
	Retries      int           `long:"retries"       env:"MIGRATE_NPM_RETRIES"     default:"0"   description:"Retries for failed registry requests"`
	Timeout      time.Duration `long:"timeout"       env:"MIGRATE_NPM_TIMEOUT"     default:"0s"  description:"Abort the run after this long, 0 to never"`
	KeepArchives bool          `long:"keep-archives" description:"Leave staged archives in the work directory"`
	NoColor      bool          `long:"no-color"      description:"Disable coloured output"`
	Verbose      bool          `short:"v" long:"verbose" description:"Log debug details to stderr"`
	Version      bool          `long:"version"       description:"Print the version and exit"`
	Help         bool          `short:"h" long:"help"    description:"Print usage and exit"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var opts Options

	parser := flags.NewParser(&opts, flags.PassDoubleDash)
	parser.Name = "migrate-npm-registry"
	parser.Usage = "[OPTIONS] [pkg_name ...] source_registry target_registry"

	rest, err := parser.ParseArgs(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		fmt.Fprintln(stdout, usage)
		return exitFailure
	}

	if opts.Version {
		fmt.Fprintln(stdout, Version)
		return exitOK
	}
	if opts.Help || len(rest) < 2 {
		fmt.Fprintln(stdout, usage)
		return exitFailure
	}

	target := rest[len(rest)-1]
	source := rest[len(rest)-2]
	pkgs := rest[:len(rest)-2]
	if len(pkgs) == 0 {
		fmt.Fprintln(stdout, msgNoPackage)
		return exitNoPackages
	}

	logger := newLogger(stderr, opts.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	workFS, cleanup, err := prepareWorkDir(opts.WorkDir, opts.KeepArchives)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	defer cleanup()

	cfg := migrate.Config{
		Source:       source,
		Target:       target,
		WorkDir:      workFS.Root(),
		KeepArchives: opts.KeepArchives,
		Concurrency:  opts.Concurrency,
	}

	m, err := migrate.New(cfg,
		migrate.WithLogger(logger),
		migrate.WithFilesystem(workFS),
		migrate.WithClient(registry.NewClient(
			registry.WithLogger(logger),
			registry.WithRetryMax(opts.Retries),
			registry.WithUserAgent("migrate-npm-registry/"+Version),
		)),
		migrate.WithPublisher(publish.New(target,
			publish.WithCommand(opts.NPM, publish.DefaultArgs...),
			publish.WithLogger(logger),
		)),
		migrate.WithReporter(report.New(stdout,
			report.WithColor(useColor(opts.NoColor, stdout)),
			report.WithPackagePrefix(len(migrate.Unique(pkgs)) > 1),
		)),
	)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}

	results := m.RunAll(ctx, pkgs)
	if migrate.Failed(results) {
		return exitFailure
	}
	return exitOK
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// prepareWorkDir returns the staging filesystem and a func that removes the
// work directory when this run created it and archives are not kept. A
// directory that already existed is left in place.
func prepareWorkDir(dir string, keep bool) (*billy.FS, func(), error) {
	var (
		parent *billy.FS
		name   string
	)

	if dir == "" {
		parent = billy.NewOSFS(os.TempDir())
		tmp, err := parent.TempDir(".", "migrate-npm-registry-")
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create work directory: %w", err)
		}
		name = tmp
	} else {
		abs, err := fs.GetAbs(dir)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid work directory: %w", err)
		}
		parent = billy.NewOSFS(filepath.Dir(abs))
		name = filepath.Base(abs)

		existed, err := parent.Exists(name)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to inspect work directory: %w", err)
		}
		if err := parent.MkdirAll(name, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create work directory: %w", err)
		}
		keep = keep || existed
	}

	work := billy.NewOSFS(filepath.Join(parent.Root(), name))
	if keep {
		return work, func() {}, nil
	}
	return work, func() { _ = parent.RemoveAll(name) }, nil
}

func useColor(disabled bool, w io.Writer) bool {
	if disabled || color.NoColor {
		return false
	}
	f, ok := w.(*os.File)
	return ok && f == os.Stdout
}
