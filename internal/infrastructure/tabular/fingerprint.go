package tabular

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Fingerprint returns the hex-encoded SHA-256 of the file bytes. The
// fingerprint uniquely identifies a file across uploads.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NormalizeKeyValue canonicalizes a value for uniqueness hashing: Unicode
// NFC, trimmed, case-folded.
func NormalizeKeyValue(v string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(v)))
}

// RowKey hashes the uniqueness-key tuple of a row: the normalized values of
// the given columns, in sorted column order, NUL-separated. Two rows with
// the same key are duplicates of each other.
func RowKey(values map[string]string, columns []string) string {
	sorted := make([]string, len(columns))
	copy(sorted, columns)
	sort.Strings(sorted)

	h := sha256.New()
	for i, col := range sorted {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(NormalizeKeyValue(values[col])))
	}
	return hex.EncodeToString(h.Sum(nil))
}
