// Package errors provides the error codes and structured error type shared by
// every stage of a registry migration. It extends Go's standard error handling
// with string codes, key/value context, and classification helpers that the
// reporter uses to pick an operator-facing message.
package errors

// ErrorCode represents a specific failure condition of a migration job.
// Error codes are string-based for debuggability and natural JSON serialization.
type ErrorCode string

const (
	// Registry errors.

	// CodeSourceFetch indicates the source registry answered the metadata
	// request with a non-200 status.
	CodeSourceFetch ErrorCode = "SOURCE_FETCH_FAILED"

	// CodeMetadataParse indicates the source registry metadata document is not valid JSON.
	CodeMetadataParse ErrorCode = "METADATA_PARSE_FAILED"

	// CodeMalformedMetadata indicates the metadata parsed but lacks a field the
	// migration needs, such as dist.tarball.
	CodeMalformedMetadata ErrorCode = "MALFORMED_METADATA"

	// Network errors.

	// CodeNetworkUnreachable indicates a DNS or connect failure.
	CodeNetworkUnreachable ErrorCode = "NETWORK_UNREACHABLE"

	// Transfer errors.

	// CodeArchiveTransfer indicates a tarball could not be downloaded,
	// decompressed, verified, repacked or written.
	CodeArchiveTransfer ErrorCode = "ARCHIVE_TRANSFER_FAILED"

	// CodePublishFailed indicates the publish command exited non-zero or wrote
	// to its error stream.
	CodePublishFailed ErrorCode = "PUBLISH_FAILED"

	// Validation errors.

	// CodeInvalidInput indicates the provided input is invalid or malformed.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeInvalidConfig indicates a configuration error prevents the operation.
	CodeInvalidConfig ErrorCode = "INVALID_CONFIGURATION"

	// System errors.

	// CodeCancelled indicates the operation was abandoned because its context
	// was cancelled, usually after a sibling failed.
	CodeCancelled ErrorCode = "CANCELLED"

	// CodeInternal indicates an internal invariant was violated.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeNotImplemented indicates the requested functionality is not implemented.
	CodeNotImplemented ErrorCode = "NOT_IMPLEMENTED"

	// Generic errors.

	// CodeUnknown indicates an unknown or unclassified error occurred.
	CodeUnknown ErrorCode = "UNKNOWN"
)

// String implements fmt.Stringer.
func (c ErrorCode) String() string {
	return string(c)
}
