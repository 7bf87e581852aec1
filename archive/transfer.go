package archive

import (
	"archive/tar"
	"context"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/input-output-hk/migrate-npm-registry/errors"
	"github.com/input-output-hk/migrate-npm-registry/fs"
	"github.com/input-output-hk/migrate-npm-registry/registry"
)

// Downloader opens a tarball for streaming. *registry.Client satisfies it.
type Downloader interface {
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// OnEntryFunc is called for every archive entry as it is repacked.
type OnEntryFunc func(pkg, version, name string)

// Archive is a tarball written to the work filesystem. Path is relative to
// the filesystem root.
type Archive struct {
	Package string
	Version string
	URL     string
	Path    string
	Entries int
	Size    int64
}

// Outcome is the result of transferring one tarball.
type Outcome struct {
	Tarball registry.Tarball
	Archive *Archive
	Err     error
}

// Transferer downloads tarballs and writes repacked copies to a filesystem.
type Transferer struct {
	dl          Downloader
	fs          fs.Filesystem
	logger      *slog.Logger
	onEntry     OnEntryFunc
	verify      bool
	concurrency int
}

type transferOptions struct {
	logger      *slog.Logger
	onEntry     OnEntryFunc
	verify      bool
	concurrency int
}

// Option configures a Transferer.
type Option func(*transferOptions)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(o *transferOptions) {
		o.logger = logger
	}
}

// WithOnEntry registers the per-entry callback. It may be called from
// several goroutines at once.
func WithOnEntry(fn OnEntryFunc) Option {
	return func(o *transferOptions) {
		o.onEntry = fn
	}
}

// WithVerify toggles integrity verification. Enabled by default.
func WithVerify(verify bool) Option {
	return func(o *transferOptions) {
		o.verify = verify
	}
}

// WithConcurrency caps simultaneous downloads per Transfer call. Zero or less
// means one goroutine per tarball.
func WithConcurrency(n int) Option {
	return func(o *transferOptions) {
		o.concurrency = n
	}
}

// NewTransferer creates a Transferer writing into fsys.
func NewTransferer(dl Downloader, fsys fs.Filesystem, opts ...Option) *Transferer {
	o := &transferOptions{verify: true}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	return &Transferer{
		dl:          dl,
		fs:          fsys,
		logger:      o.logger,
		onEntry:     o.onEntry,
		verify:      o.verify,
		concurrency: o.concurrency,
	}
}

var packageDirReplacer = strings.NewReplacer("@", "", "/", "__")

// PackageDir maps a package name to the directory its archives are stored
// in. Scoped names are flattened: "@scope/name" becomes "scope__name".
func PackageDir(pkg string) string {
	return packageDirReplacer.Replace(pkg)
}

// FileName returns the last path segment of a tarball URL.
func FileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.WrapWithContext(err, errors.CodeMalformedMetadata,
			"invalid tarball URL", map[string]any{"url": rawURL})
	}

	name := path.Base(u.Path)
	if u.Path == "" || strings.HasSuffix(u.Path, "/") || name == "/" || name == "." || name == ".." {
		return "", errors.Newf(errors.CodeMalformedMetadata, "tarball URL %q has no file name", rawURL)
	}
	return name, nil
}

// TransferOne downloads tb, checks its digest and writes the repacked
// archive to <package-dir>/<file name>. On failure no file is left behind.
func (t *Transferer) TransferOne(ctx context.Context, pkg string, tb registry.Tarball) (*Archive, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeCancelled, "transfer cancelled")
	}

	name, err := FileName(tb.URL)
	if err != nil {
		return nil, err
	}

	var v *verifier
	if t.verify {
		if v, err = newVerifier(tb); err != nil {
			return nil, err
		}
	}

	dir := PackageDir(pkg)
	if err := t.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeArchiveTransfer,
			"failed to create package directory", map[string]any{"dir": dir})
	}
	dest := path.Join(dir, name)

	body, err := t.dl.Download(ctx, tb.URL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var src io.Reader = body
	if v != nil {
		src = io.TeeReader(body, v)
	}

	f, err := t.fs.Create(dest)
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeArchiveTransfer,
			"failed to create archive file", map[string]any{"file": dest})
	}

	logger := t.logger.With("package", pkg, "version", tb.Version, "file", dest)
	logger.Debug("transferring tarball", "url", tb.URL)

	archive, err := t.write(ctx, f, src, v, pkg, tb)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = errors.WrapWithContext(closeErr, errors.CodeArchiveTransfer,
			"failed to close archive file", map[string]any{"file": dest})
	}
	if err != nil {
		if rmErr := t.fs.Remove(dest); rmErr != nil {
			logger.Warn("failed to remove partial archive", "error", rmErr)
		}
		return nil, err
	}

	archive.Path = dest
	logger.Info("tarball transferred", "entries", archive.Entries, "bytes", archive.Size)
	return archive, nil
}

func (t *Transferer) write(
	ctx context.Context,
	f fs.File,
	src io.Reader,
	v *verifier,
	pkg string,
	tb registry.Tarball,
) (*Archive, error) {
	var onEntry EntryFunc
	if t.onEntry != nil {
		onEntry = func(hdr *tar.Header) {
			t.onEntry(pkg, tb.Version, hdr.Name)
		}
	}

	n, err := Repack(ctx, src, f, onEntry)
	if err != nil {
		if ctx.Err() != nil && !errors.HasCode(err, errors.CodeCancelled) {
			err = errors.Wrap(err, errors.CodeCancelled, "transfer cancelled")
		}
		return nil, err
	}

	if v != nil {
		// the digest covers every byte served, including anything after the
		// gzip member
		if _, err := io.Copy(io.Discard, src); err != nil {
			return nil, errors.Wrap(err, errors.CodeArchiveTransfer, "failed to read tarball")
		}
		if err := v.Verify(); err != nil {
			return nil, errors.WrapWithContext(err, errors.CodeArchiveTransfer,
				"tarball rejected", map[string]any{"url": tb.URL})
		}
	}

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeArchiveTransfer, "failed to stat archive file")
	}

	return &Archive{
		Package: pkg,
		Version: tb.Version,
		URL:     tb.URL,
		Entries: n,
		Size:    info.Size(),
	}, nil
}

// Transfer runs TransferOne for every tarball concurrently. The first
// failure cancels the others and is returned. Outcomes are in input order.
func (t *Transferer) Transfer(ctx context.Context, pkg string, tarballs []registry.Tarball) ([]Outcome, error) {
	outcomes := make([]Outcome, len(tarballs))

	g, gctx := errgroup.WithContext(ctx)
	if t.concurrency > 0 {
		g.SetLimit(t.concurrency)
	}

	for i, tb := range tarballs {
		outcomes[i].Tarball = tb
		g.Go(func() error {
			a, err := t.TransferOne(gctx, pkg, tb)
			outcomes[i].Archive = a
			outcomes[i].Err = err
			return err
		})
	}

	return outcomes, g.Wait()
}
