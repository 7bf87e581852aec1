package main

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestUsage(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
	}{
		{"no arguments", nil, 1, usage + "\n"},
		{"one argument", []string{"http://source"}, 1, usage + "\n"},
		{"help", []string{"left-pad", "http://s", "http://t", "--help"}, 1, usage + "\n"},
		{"short help", []string{"-h"}, 1, usage + "\n"},
		{"unknown flag", []string{"--bogus", "left-pad", "http://s", "http://t"}, 1, usage + "\n"},
		{"no package names", []string{"http://source", "http://target"}, 2, msgNoPackage + "\n"},
		{"version", []string{"--version"}, 0, Version + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out, _ := runCLI(t, tt.args...)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantOut, out)
		})
	}
}

func tarball(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	body := `{"name":"left-pad"}`
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "package/package.json", Mode: 0o644, Size: int64(len(body))}))
	_, err := io.WriteString(tw, body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// newSource serves left-pad 1.0.0 and nothing else.
func newSource(t *testing.T) *httptest.Server {
	t.Helper()
	data := tarball(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/left-pad":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"name": "left-pad",
				"versions": map[string]any{
					"1.0.0": map[string]any{"dist": map[string]any{
						"tarball": "http://" + r.Host + "/left-pad/-/left-pad-1.0.0.tgz",
					}},
				},
			})
		case "/left-pad/-/left-pad-1.0.0.tgz":
			_, _ = w.Write(data)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTarget(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	return srv
}

// fakeNPM writes an executable standing in for npm. It receives
// "publish --registry <target> <file>".
func fakeNPM(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "npm")
	script := "#!/bin/sh\n" +
		`[ "$1" = publish ] && [ "$2" = --registry ] && test -f "$4" || { echo "bad call: $*" >&2; exit 1; }` + "\n" +
		`echo "+ $(basename "$4")"` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestRunMigratesPackage(t *testing.T) {
	source, target := newSource(t), newTarget(t)
	workDir := t.TempDir()

	code, out, stderr := runCLI(t,
		"--npm", fakeNPM(t),
		"--work-dir", workDir,
		"--no-color",
		"left-pad", source.URL, target.URL,
	)
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Equal(t, "package/package.json\n+ left-pad-1.0.0.tgz\nDONE\n", out)

	_, err := os.Stat(filepath.Join(workDir, "left-pad", "left-pad-1.0.0.tgz"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunFlagsFromEnvironment(t *testing.T) {
	source, target := newSource(t), newTarget(t)
	workDir := t.TempDir()
	t.Setenv("MIGRATE_NPM_COMMAND", fakeNPM(t))
	t.Setenv("MIGRATE_NPM_WORK_DIR", workDir)

	code, out, stderr := runCLI(t, "--keep-archives", "left-pad", source.URL, target.URL)
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Contains(t, out, "DONE")

	_, err := os.Stat(filepath.Join(workDir, "left-pad", "left-pad-1.0.0.tgz"))
	assert.NoError(t, err, "archive kept in the configured work directory")
}

func TestRunAggregatesFailures(t *testing.T) {
	source, target := newSource(t), newTarget(t)

	code, out, _ := runCLI(t,
		"--npm", fakeNPM(t),
		"--work-dir", t.TempDir(),
		"left-pad", "no-such-package", source.URL, target.URL,
	)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "left-pad: DONE\n")
	assert.Contains(t, out, "no-such-package: Error fetching source metadata\n")
}

func TestRunInvalidRegistry(t *testing.T) {
	code, _, stderr := runCLI(t, "--work-dir", t.TempDir(), "left-pad", "registry.npmjs.org", "http://target")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "must be an http or https URL")
}

func TestPrepareWorkDir(t *testing.T) {
	t.Run("temporary directory is removed", func(t *testing.T) {
		work, cleanup, err := prepareWorkDir("", false)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(filepath.Base(work.Root()), "migrate-npm-registry-"))
		_, err = os.Stat(work.Root())
		require.NoError(t, err)

		cleanup()
		_, err = os.Stat(work.Root())
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("temporary directory is kept with archives", func(t *testing.T) {
		work, cleanup, err := prepareWorkDir("", true)
		require.NoError(t, err)
		t.Cleanup(func() { _ = os.RemoveAll(work.Root()) })

		cleanup()
		_, err = os.Stat(work.Root())
		assert.NoError(t, err)
	})

	t.Run("directory created by the run is removed", func(t *testing.T) {
		given := filepath.Join(t.TempDir(), "nested", "work")
		work, cleanup, err := prepareWorkDir(given, false)
		require.NoError(t, err)
		assert.Equal(t, given, work.Root())
		_, err = os.Stat(given)
		require.NoError(t, err)

		cleanup()
		_, err = os.Stat(given)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("existing directory is never removed", func(t *testing.T) {
		given := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(given, "notes.txt"), []byte("x"), 0o600))

		work, cleanup, err := prepareWorkDir(given, false)
		require.NoError(t, err)
		assert.Equal(t, given, work.Root())

		cleanup()
		_, err = os.Stat(filepath.Join(given, "notes.txt"))
		assert.NoError(t, err)
	})
}

func TestRunDuplicatePackageNames(t *testing.T) {
	source, target := newSource(t), newTarget(t)

	code, out, stderr := runCLI(t,
		"--npm", fakeNPM(t),
		"--work-dir", t.TempDir(),
		"--no-color",
		"left-pad", "left-pad", source.URL, target.URL,
	)
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Equal(t, "package/package.json\n+ left-pad-1.0.0.tgz\nDONE\n", out)
}
