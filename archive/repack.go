package archive

import (
	"archive/tar"
	"context"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/input-output-hk/migrate-npm-registry/errors"
)

// EntryFunc observes each tar header as it is repacked.
type EntryFunc func(hdr *tar.Header)

// Repack reads a gzip-compressed tar stream from src and writes an equivalent
// gzip-compressed tar stream to dst, calling onEntry for every entry in
// arrival order. It returns the number of entries copied. The gzip input is
// read to its end so that its trailer checksum is verified.
func Repack(ctx context.Context, src io.Reader, dst io.Writer, onEntry EntryFunc) (int, error) {
	zr, err := gzip.NewReader(src)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeArchiveTransfer, "failed to decompress tarball")
	}
	defer zr.Close()

	zw := gzip.NewWriter(dst)
	tw := tar.NewWriter(zw)
	tr := tar.NewReader(zr)

	count := 0
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return count, errors.Wrap(ctxErr, errors.CodeCancelled, "repack interrupted")
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, errors.Wrap(err, errors.CodeArchiveTransfer, "failed to read tarball entry")
		}

		if onEntry != nil {
			onEntry(hdr)
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return count, errors.WrapWithContext(err, errors.CodeArchiveTransfer,
				"failed to write archive header", map[string]any{"entry": hdr.Name})
		}
		if _, err := io.Copy(tw, tr); err != nil {
			return count, errors.WrapWithContext(err, errors.CodeArchiveTransfer,
				"failed to copy archive entry", map[string]any{"entry": hdr.Name})
		}
		count++
	}

	if err := tw.Close(); err != nil {
		return count, errors.Wrap(err, errors.CodeArchiveTransfer, "failed to finalize archive")
	}
	if err := zw.Close(); err != nil {
		return count, errors.Wrap(err, errors.CodeArchiveTransfer, "failed to finalize compression")
	}

	// Padding after the tar end marker and the gzip trailer are still unread.
	if _, err := io.Copy(io.Discard, zr); err != nil {
		return count, errors.Wrap(err, errors.CodeArchiveTransfer, "failed to decompress tarball")
	}

	return count, nil
}
