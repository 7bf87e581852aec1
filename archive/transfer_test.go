package archive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/migrate-npm-registry/errors"
	"github.com/input-output-hk/migrate-npm-registry/fs/billy"
	"github.com/input-output-hk/migrate-npm-registry/registry"
)

type tarballServer struct {
	*httptest.Server
	data []byte
}

// newTarballServer serves the fixture tarball under any path except the
// special ones: /missing.tgz answers 404 and /slow.tgz sends a few bytes and
// then stalls until the client goes away.
func newTarballServer(t *testing.T) *tarballServer {
	t.Helper()
	data := buildTarball(t, fixtureEntries())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing.tgz":
			http.NotFound(w, r)
		case "/slow.tgz":
			_, _ = w.Write(data[:10])
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
			<-r.Context().Done()
		default:
			_, _ = w.Write(data)
		}
	}))
	t.Cleanup(srv.Close)
	return &tarballServer{Server: srv, data: data}
}

type entryRecorder struct {
	mu      sync.Mutex
	entries []string
}

func (r *entryRecorder) record(pkg, version, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, pkg+"@"+version+":"+name)
}

func TestTransferOne(t *testing.T) {
	srv := newTarballServer(t)
	mem := memfs.New()
	fsys := billy.NewFS(mem)
	rec := &entryRecorder{}
	tr := NewTransferer(registry.NewClient(), fsys, WithOnEntry(rec.record))

	tb := registry.Tarball{
		Version:   "0.0.3",
		URL:       srv.URL + "/left-pad/-/left-pad-0.0.3.tgz",
		Integrity: sri(srv.data),
		Shasum:    shasum(srv.data),
	}
	a, err := tr.TransferOne(context.Background(), "left-pad", tb)
	require.NoError(t, err)

	assert.Equal(t, "left-pad/left-pad-0.0.3.tgz", a.Path)
	assert.Equal(t, "left-pad", a.Package)
	assert.Equal(t, "0.0.3", a.Version)
	assert.Equal(t, 3, a.Entries)
	assert.Equal(t, []string{
		"left-pad@0.0.3:package/",
		"left-pad@0.0.3:package/package.json",
		"left-pad@0.0.3:package/index.js",
	}, rec.entries)

	written, err := util.ReadFile(mem, a.Path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(written)), a.Size)

	got := readTarball(t, written)
	require.Len(t, got, 3)
	assert.Equal(t, "package/index.js", got[2].hdr.Name)
	assert.Equal(t, "module.exports = leftpad;\n", got[2].body)
}

func TestTransferOneScopedPackage(t *testing.T) {
	srv := newTarballServer(t)
	fsys := billy.NewInMemoryFS()
	tr := NewTransferer(registry.NewClient(), fsys)

	a, err := tr.TransferOne(context.Background(), "@scope/pkg",
		registry.Tarball{Version: "1.0.0", URL: srv.URL + "/@scope/pkg/-/pkg-1.0.0.tgz"})
	require.NoError(t, err)
	assert.Equal(t, "scope__pkg/pkg-1.0.0.tgz", a.Path)

	ok, err := fsys.Exists(a.Path)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTransferOneFailuresLeaveNoFile(t *testing.T) {
	srv := newTarballServer(t)

	tests := []struct {
		name     string
		tarball  registry.Tarball
		wantCode errors.ErrorCode
	}{
		{
			name:     "integrity mismatch",
			tarball:  registry.Tarball{Version: "1.0.0", URL: srv.URL + "/p-1.0.0.tgz", Integrity: sri([]byte("other"))},
			wantCode: errors.CodeArchiveTransfer,
		},
		{
			name:     "shasum mismatch",
			tarball:  registry.Tarball{Version: "1.0.0", URL: srv.URL + "/p-1.0.0.tgz", Shasum: shasum([]byte("other"))},
			wantCode: errors.CodeArchiveTransfer,
		},
		{
			name:     "not found",
			tarball:  registry.Tarball{Version: "1.0.0", URL: srv.URL + "/missing.tgz"},
			wantCode: errors.CodeArchiveTransfer,
		},
		{
			name:     "no file name",
			tarball:  registry.Tarball{Version: "1.0.0", URL: srv.URL + "/"},
			wantCode: errors.CodeMalformedMetadata,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := billy.NewInMemoryFS()
			tr := NewTransferer(registry.NewClient(), fsys)

			a, err := tr.TransferOne(context.Background(), "p", tt.tarball)
			require.Error(t, err)
			assert.Nil(t, a)
			assert.Equal(t, tt.wantCode, errors.GetCode(err))

			for _, name := range []string{"p/p-1.0.0.tgz", "p/missing.tgz"} {
				ok, err := fsys.Exists(name)
				require.NoError(t, err)
				assert.False(t, ok, "%s left behind", name)
			}
		})
	}
}

func TestTransferOneVerifyDisabled(t *testing.T) {
	srv := newTarballServer(t)
	tr := NewTransferer(registry.NewClient(), billy.NewInMemoryFS(), WithVerify(false))

	_, err := tr.TransferOne(context.Background(), "p",
		registry.Tarball{Version: "1.0.0", URL: srv.URL + "/p-1.0.0.tgz", Integrity: sri([]byte("other"))})
	assert.NoError(t, err)
}

func TestTransfer(t *testing.T) {
	srv := newTarballServer(t)
	fsys := billy.NewInMemoryFS()
	tr := NewTransferer(registry.NewClient(), fsys, WithConcurrency(2))

	tarballs := []registry.Tarball{
		{Version: "0.0.1", URL: srv.URL + "/left-pad-0.0.1.tgz"},
		{Version: "0.0.2", URL: srv.URL + "/left-pad-0.0.2.tgz"},
		{Version: "0.0.3", URL: srv.URL + "/left-pad-0.0.3.tgz"},
	}
	outcomes, err := tr.Transfer(context.Background(), "left-pad", tarballs)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	for i, o := range outcomes {
		require.NoError(t, o.Err)
		assert.Equal(t, tarballs[i], o.Tarball)
		assert.Equal(t, tarballs[i].Version, o.Archive.Version)
		ok, err := fsys.Exists(o.Archive.Path)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestTransferFirstFailureCancelsSiblings(t *testing.T) {
	srv := newTarballServer(t)
	fsys := billy.NewInMemoryFS()
	tr := NewTransferer(registry.NewClient(), fsys)

	tarballs := []registry.Tarball{
		{Version: "0.0.1", URL: srv.URL + "/slow.tgz"},
		{Version: "0.0.2", URL: srv.URL + "/missing.tgz"},
	}
	outcomes, err := tr.Transfer(context.Background(), "p", tarballs)
	require.Error(t, err)
	assert.Equal(t, errors.CodeArchiveTransfer, errors.GetCode(err))
	assert.False(t, errors.HasCode(err, errors.CodeCancelled), "aggregate error is the first real failure")

	require.Len(t, outcomes, 2)
	require.Error(t, outcomes[0].Err)
	assert.True(t, errors.HasCode(outcomes[0].Err, errors.CodeCancelled), "got %v", outcomes[0].Err)
	assert.Nil(t, outcomes[0].Archive)
	require.Error(t, outcomes[1].Err)

	ok, err := fsys.Exists("p/slow.tgz")
	require.NoError(t, err)
	assert.False(t, ok, "partial archive of the cancelled transfer was kept")
}

func TestTransferEmpty(t *testing.T) {
	tr := NewTransferer(registry.NewClient(), billy.NewInMemoryFS())
	outcomes, err := tr.Transfer(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}
