// Package content implements canonicalization and digesting of a document's
// body. Frontmatter is never part of the canonical form or the digest;
// only the body matters for change detection.
package content

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Canonicalize normalizes body to the canonical form: CRLF and CR line
// endings become LF, trailing whitespace is trimmed from every line, and
// the result ends in exactly one newline unless the body is empty.
func Canonicalize(body []byte) []byte {
	s := string(body)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\v\f")
	}

	joined := strings.Join(lines, "\n")
	joined = strings.TrimRight(joined, "\n")

	if joined == "" {
		return nil
	}

	return []byte(joined + "\n")
}

// Digest returns the "sha256:"-prefixed hex digest of the canonical UTF-8
// bytes of body. Canonicalize is applied first, so two bodies differing
// only in line endings or trailing whitespace digest identically.
func Digest(body []byte) string {
	canonical := Canonicalize(body)
	sum := sha256.Sum256(canonical)

	return "sha256:" + hex.EncodeToString(sum[:])
}

// Equal reports whether two bodies are identical after canonicalization.
func Equal(a, b []byte) bool {
	return bytes.Equal(Canonicalize(a), Canonicalize(b))
}
