// Package archive moves package tarballs from a registry to local files.
//
// Every tarball is streamed: the HTTP body is hashed for integrity checking,
// gunzipped, read entry by entry, and each entry is re-emitted with its
// original header into a fresh tar stream that is gzipped again and written
// to the work filesystem. Entry order, header metadata and content bytes are
// preserved.
//
// Transfers of one package run concurrently. The first failure cancels the
// remaining transfers, whose partial files are removed, and is returned as
// the aggregate error while every tarball still gets its own Outcome.
package archive
