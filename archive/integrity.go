package archive

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // npm shasum is sha1 by definition
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/input-output-hk/migrate-npm-registry/errors"
	"github.com/input-output-hk/migrate-npm-registry/registry"
)

// algorithms in decreasing strength, as ranked for Subresource Integrity.
var algorithms = []struct {
	name string
	new  func() hash.Hash
}{
	{"sha512", sha512.New},
	{"sha384", sha512.New384},
	{"sha256", sha256.New},
	{"sha1", sha1.New},
}

// verifier hashes a downloaded tarball and compares it to the registry's
// dist.integrity or, failing that, dist.shasum.
type verifier struct {
	h        hash.Hash
	algo     string
	expected [][]byte
}

// newVerifier returns nil when tb carries no usable digest.
func newVerifier(tb registry.Tarball) (*verifier, error) {
	if v := parseIntegrity(tb.Integrity); v != nil {
		return v, nil
	}

	if tb.Shasum == "" {
		return nil, nil
	}
	sum, err := hex.DecodeString(tb.Shasum)
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeMalformedMetadata,
			"invalid dist.shasum", map[string]any{"version": tb.Version})
	}
	return &verifier{h: sha1.New(), algo: "sha1", expected: [][]byte{sum}}, nil //nolint:gosec // see import
}

// parseIntegrity picks the strongest supported algorithm from an SRI string
// such as "sha512-<base64> sha1-<base64>".
func parseIntegrity(sri string) *verifier {
	byAlgo := map[string][][]byte{}
	for _, field := range strings.Fields(sri) {
		algo, digest, ok := strings.Cut(field, "-")
		if !ok {
			continue
		}
		// SRI allows options after a "?"
		digest, _, _ = strings.Cut(digest, "?")
		sum, err := base64.StdEncoding.DecodeString(digest)
		if err != nil {
			continue
		}
		byAlgo[algo] = append(byAlgo[algo], sum)
	}

	for _, a := range algorithms {
		if sums, ok := byAlgo[a.name]; ok {
			return &verifier{h: a.new(), algo: a.name, expected: sums}
		}
	}
	return nil
}

func (v *verifier) Write(p []byte) (int, error) {
	return v.h.Write(p)
}

func (v *verifier) Verify() error {
	got := v.h.Sum(nil)
	for _, want := range v.expected {
		if bytes.Equal(got, want) {
			return nil
		}
	}
	return errors.New(errors.CodeArchiveTransfer,
		fmt.Sprintf("integrity check failed: %s digest %s does not match registry metadata",
			v.algo, base64.StdEncoding.EncodeToString(got)))
}
