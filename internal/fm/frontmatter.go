// Package fm implements the frontmatter codec: detecting, parsing, and
// re-serializing the YAML frontmatter block of a markdown document.
//
// Parsing is deliberately lenient. A file is only rejected (MalformedFrontmatter)
// when it has a well-formed "---" delimiter pair whose content cannot be
// parsed as a YAML mapping. A file with no leading delimiter or an
// unterminated delimiter degrades to "no frontmatter, body is the whole
// file"; an empty block yields an empty (non-nil) frontmatter.
//
// The in-memory representation keeps the sync-managed keys (cast-id,
// cast-type, cast-version, cast-vaults, cast-codebases) as typed fields and
// everything else as an ordered list of local entries, so re-serialization
// can promote cast-id first, the remaining sync-managed keys in a fixed
// order, and then local keys in their original order.
package fm

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMalformed indicates a "---" delimited block was found but its content
// could not be parsed as a YAML mapping.
var ErrMalformed = errors.New("malformed frontmatter")

const delimiter = "---"

// syncManagedOrder is the fixed serialization order for sync-managed keys
// after cast-id, which always comes first.
var syncManagedOrder = []string{"cast-type", "cast-version", "cast-vaults", "cast-codebases"}

// LocalEntry is a single non-sync-managed frontmatter key, preserving its
// original value as a YAML node so re-serialization keeps its value and
// node style (the encoder may still change indentation).
type LocalEntry struct {
	Key   string
	Value *yaml.Node
}

// Frontmatter is the parsed representation of a document's frontmatter
// block. A nil *Frontmatter (Document.Frontmatter as returned by Parse)
// means the document has no recognized frontmatter at all.
type Frontmatter struct {
	hasCastID  bool
	CastID     string

	hasCastType bool
	CastType    string

	hasCastVersion bool
	CastVersion    string

	hasCastVaults bool
	CastVaults    []string

	hasCastCodebases bool
	CastCodebases    []string

	// Local holds every key that isn't sync-managed, in the order it first
	// appeared in the source document.
	Local []LocalEntry

	// OriginalKeyOrder records every key (including sync-managed ones) in
	// the order it appeared on disk, so callers can detect whether a
	// rewrite is needed to restore canonical ordering without re-reading
	// the raw bytes.
	OriginalKeyOrder []string
}

// IsCanonicallyOrdered reports whether OriginalKeyOrder already matches the
// order Format would produce: cast-id first (if present), then the present
// subset of cast-type/cast-version/cast-vaults/cast-codebases in that
// relative order, then local keys (whose relative order Format always
// preserves, so they never affect this check).
func (f *Frontmatter) IsCanonicallyOrdered() bool {
	if f == nil {
		return true
	}

	var wantSyncOrder []string
	if f.hasCastID {
		wantSyncOrder = append(wantSyncOrder, "cast-id")
	}

	for _, key := range syncManagedOrder {
		switch key {
		case "cast-type":
			if f.hasCastType {
				wantSyncOrder = append(wantSyncOrder, key)
			}
		case "cast-version":
			if f.hasCastVersion {
				wantSyncOrder = append(wantSyncOrder, key)
			}
		case "cast-vaults":
			if f.hasCastVaults {
				wantSyncOrder = append(wantSyncOrder, key)
			}
		case "cast-codebases":
			if f.hasCastCodebases {
				wantSyncOrder = append(wantSyncOrder, key)
			}
		}
	}

	var gotSyncOrder []string

	for _, key := range f.OriginalKeyOrder {
		if isSyncManagedKey(key) {
			gotSyncOrder = append(gotSyncOrder, key)
		}
	}

	if len(gotSyncOrder) != len(wantSyncOrder) {
		return false
	}

	for i := range wantSyncOrder {
		if gotSyncOrder[i] != wantSyncOrder[i] {
			return false
		}
	}

	return true
}

func isSyncManagedKey(key string) bool {
	switch key {
	case "cast-id", "cast-type", "cast-version", "cast-vaults", "cast-codebases":
		return true
	default:
		return false
	}
}

// HasCastID reports whether the cast-id key was present.
func (f *Frontmatter) HasCastID() bool { return f != nil && f.hasCastID }

// HasCastVaults reports whether the cast-vaults key was present.
func (f *Frontmatter) HasCastVaults() bool { return f != nil && f.hasCastVaults }

// HasAnySyncManagedKey reports whether any cast-* key is present. Identity
// service uses this to decide whether an absent cast-id should still be
// assigned (the "absent + any sync-managed key present + auto_fix" branch).
func (f *Frontmatter) HasAnySyncManagedKey() bool {
	if f == nil {
		return false
	}

	return f.hasCastID || f.hasCastType || f.hasCastVersion || f.hasCastVaults || f.hasCastCodebases
}

// SetCastID sets the cast-id field, marking it present.
func (f *Frontmatter) SetCastID(id string) {
	f.hasCastID = true
	f.CastID = id
}

// SetCastVaults replaces the membership list, marking it present.
func (f *Frontmatter) SetCastVaults(vaults []string) {
	f.hasCastVaults = true
	f.CastVaults = vaults
}

// Document is a parsed markdown file: optional frontmatter plus a body.
type Document struct {
	Frontmatter *Frontmatter // nil if no frontmatter was recognized
	Body        []byte
}

// Parse splits raw into frontmatter and body. CRLF and CR line endings are
// normalized to LF before detection.
//
// Returns ErrMalformed only when a "---" delimited block is present but its
// content fails to parse as a YAML mapping. Any file lacking a recognizable
// delimited block returns a Document with Frontmatter == nil and Body equal
// to the normalized input.
func Parse(raw []byte) (*Document, error) {
	normalized := normalizeNewlines(raw)

	if !bytes.HasPrefix(normalized, []byte(delimiter+"\n")) {
		return &Document{Body: normalized}, nil
	}

	rest := normalized[len(delimiter)+1:]

	end := findClosingDelimiter(rest)
	if end < 0 {
		return &Document{Body: normalized}, nil
	}

	block := rest[:end]
	body := rest[end+len(delimiter)+1:]
	// Skip a single trailing newline directly after the closing delimiter.
	body = bytes.TrimPrefix(body, []byte("\n"))

	fm, err := parseBlock(block)
	if err != nil {
		return nil, err
	}

	return &Document{Frontmatter: fm, Body: body}, nil
}

// findClosingDelimiter finds the byte offset, within rest, of a line that is
// exactly "---", returning -1 if none exists.
func findClosingDelimiter(rest []byte) int {
	offset := 0

	for {
		idx := bytes.IndexByte(rest[offset:], '\n')

		var line []byte
		if idx < 0 {
			line = rest[offset:]
		} else {
			line = rest[offset : offset+idx]
		}

		if string(line) == delimiter {
			return offset
		}

		if idx < 0 {
			return -1
		}

		offset += idx + 1
	}
}

func parseBlock(block []byte) (*Frontmatter, error) {
	var node yaml.Node

	if err := yaml.Unmarshal(block, &node); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if len(node.Content) == 0 {
		// An empty or comment-only block parses to an empty document.
		return &Frontmatter{}, nil
	}

	mapping := node.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: frontmatter is not a YAML mapping", ErrMalformed)
	}

	fm := &Frontmatter{}

	for i := 0; i+1 < len(mapping.Content); i += 2 {
		keyNode := mapping.Content[i]
		valueNode := mapping.Content[i+1]
		key := keyNode.Value

		fm.OriginalKeyOrder = append(fm.OriginalKeyOrder, key)

		switch key {
		case "cast-id":
			fm.hasCastID = true
			_ = valueNode.Decode(&fm.CastID)
		case "cast-type":
			fm.hasCastType = true
			_ = valueNode.Decode(&fm.CastType)
		case "cast-version":
			fm.hasCastVersion = true
			_ = valueNode.Decode(&fm.CastVersion)
		case "cast-vaults":
			fm.hasCastVaults = true
			_ = valueNode.Decode(&fm.CastVaults)
		case "cast-codebases":
			fm.hasCastCodebases = true
			_ = valueNode.Decode(&fm.CastCodebases)
		default:
			fm.Local = append(fm.Local, LocalEntry{Key: key, Value: valueNode})
		}
	}

	return fm, nil
}

// Format serializes doc back into "---\n<frontmatter>---\n<body>" form, or
// just the body if doc.Frontmatter is nil. Sync-managed keys are written in
// the fixed order cast-id, cast-type, cast-version, cast-vaults,
// cast-codebases (only those present); local keys follow in their original
// order.
func Format(doc *Document) ([]byte, error) {
	if doc.Frontmatter == nil {
		return doc.Body, nil
	}

	var buf bytes.Buffer

	buf.WriteString(delimiter)
	buf.WriteString("\n")

	if err := writeOrderedYAML(&buf, doc.Frontmatter); err != nil {
		return nil, err
	}

	buf.WriteString(delimiter)
	buf.WriteString("\n")
	buf.Write(doc.Body)

	return buf.Bytes(), nil
}

func writeOrderedYAML(buf *bytes.Buffer, fm *Frontmatter) error {
	enc := yaml.NewEncoder(buf)
	defer enc.Close()

	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}

	add := func(key string, value any) error {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}

		valueNode := &yaml.Node{}
		if err := valueNode.Encode(value); err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}

		node.Content = append(node.Content, keyNode, valueNode)

		return nil
	}

	if fm.hasCastID {
		if err := add("cast-id", fm.CastID); err != nil {
			return err
		}
	}

	for _, key := range syncManagedOrder {
		switch key {
		case "cast-type":
			if fm.hasCastType {
				if err := add(key, fm.CastType); err != nil {
					return err
				}
			}
		case "cast-version":
			if fm.hasCastVersion {
				if err := add(key, fm.CastVersion); err != nil {
					return err
				}
			}
		case "cast-vaults":
			if fm.hasCastVaults {
				if err := add(key, fm.CastVaults); err != nil {
					return err
				}
			}
		case "cast-codebases":
			if fm.hasCastCodebases {
				if err := add(key, fm.CastCodebases); err != nil {
					return err
				}
			}
		}
	}

	for _, entry := range fm.Local {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: entry.Key}
		node.Content = append(node.Content, keyNode, entry.Value)
	}

	if len(node.Content) == 0 {
		return nil
	}

	return enc.Encode(node)
}

func normalizeNewlines(raw []byte) []byte {
	s := string(raw)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	return []byte(s)
}
