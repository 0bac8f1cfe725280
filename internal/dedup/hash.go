// Package dedup implements the duplicate detection pipeline: content
// hashing, title and metadata similarity, score fusion, and the
// detection run that persists bounded evidence per submission.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/rootandstem/curriculum-cli/internal/model"
	"github.com/rootandstem/curriculum-cli/internal/normalize"
)

// MetadataDigestPrefix marks digests derived from metadata instead of
// full content text, so consumers can tell the two apart.
const MetadataDigestPrefix = "meta:"

// ContentHash returns the SHA-256 digest of the normalized content text.
// When content is empty it falls back to hashing a pipe-joined, sorted
// concatenation of title, summary, and grade levels, prefixed with
// MetadataDigestPrefix.
func ContentHash(title, summary, content string, meta model.Metadata) string {
	normalized := normalize.String(content)
	if normalized != "" {
		sum := sha256.Sum256([]byte(normalized))
		return hex.EncodeToString(sum[:])
	}

	grades := append([]string(nil), meta.Get(model.FieldGradeLevels)...)
	for i, g := range grades {
		grades[i] = strings.ToLower(strings.TrimSpace(g))
	}
	sort.Strings(grades)

	parts := []string{
		normalize.String(title),
		normalize.String(summary),
		strings.Join(grades, ","),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return MetadataDigestPrefix + hex.EncodeToString(sum[:])
}

// IsMetadataDigest reports whether a digest was derived from metadata
// rather than full content text.
func IsMetadataDigest(digest string) bool {
	return strings.HasPrefix(digest, MetadataDigestPrefix)
}
