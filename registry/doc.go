// Package registry talks to npm-compatible package registries.
//
// It covers the read side of a migration:
//   - fetching the metadata document ("packument") of a package from the
//     source and target registries, with the asymmetric failure rules of a
//     migration (the source must answer, the target may not know the package),
//   - locating the tarball URL of every retained version,
//   - streaming tarball downloads.
//
// Requests go through go-retryablehttp. Retries are disabled unless
// WithRetryMax is given, and non-2xx responses are always handed back to the
// caller so that status-based decisions stay here rather than in the client.
//
// # Thread safety
//
// A Client is safe for concurrent use; jobs for different packages share one.
package registry
