package registry

import (
	"github.com/input-output-hk/migrate-npm-registry/errors"
)

// Locate maps every version of meta to its tarball, in SortVersions order.
// It performs no I/O. A version without dist.tarball yields a
// CodeMalformedMetadata error naming it.
func Locate(meta *Metadata) ([]Tarball, error) {
	if meta == nil {
		return nil, errors.New(errors.CodeMalformedMetadata, "metadata is missing")
	}

	keys := meta.VersionKeys()
	tarballs := make([]Tarball, 0, len(keys))
	for _, v := range keys {
		entry := meta.Versions[v]
		if entry.Dist == nil || entry.Dist.Tarball == "" {
			return nil, errors.Newf(errors.CodeMalformedMetadata,
				"malformed registry metadata: version %s of %q has no dist.tarball", v, meta.Name)
		}
		tarballs = append(tarballs, Tarball{
			Version:   v,
			URL:       entry.Dist.Tarball,
			Shasum:    entry.Dist.Shasum,
			Integrity: entry.Dist.Integrity,
		})
	}
	return tarballs, nil
}

// TarballURLs returns only the download URLs of Locate(meta).
func TarballURLs(meta *Metadata) ([]string, error) {
	tarballs, err := Locate(meta)
	if err != nil {
		return nil, err
	}
	urls := make([]string, len(tarballs))
	for i, t := range tarballs {
		urls[i] = t.URL
	}
	return urls, nil
}
