// Package node implements the CAS engine's node model: the tagged union of
// chunk, file, collection, and inline-file nodes, and the canonical JSON
// encoding used to derive a node's key deterministically (§3, §4.D of the
// specification this engine implements).
//
// The encoding here is hand-rolled rather than routed through encoding/json,
// mirroring pkg/codec/cborcanon's approach to canonical CBOR: a key's bytes
// must be byte-for-byte reproducible by any independent implementation, and
// stdlib JSON's incidental behaviors (HTML escaping, map key sorting by a
// specific collation) are not a contract we want to depend on.
package node

import (
	"fmt"
	"sort"
	"strings"

	"github.com/brinevault/brine/pkg/digest"
)

// Kind identifies a node's shape, as conveyed by the stored content-type label
// once a node is admitted (§4.D).
type Kind string

const (
	KindChunk      Kind = "chunk"
	KindFile       Kind = "file"
	KindCollection Kind = "collection"
	KindInlineFile Kind = "inline-file"
)

// Content-type labels disambiguating stored node kinds at read time.
const (
	ContentTypeCollection = "application/vnd.cas.collection"
	ContentTypeFile       = "application/vnd.cas.file"
	ContentTypeInlineFile = "application/vnd.cas.inline-file"
	ContentTypeOctet      = "application/octet-stream"
)

// File is an ordered, non-empty list of chunk keys forming one logical blob.
type File struct {
	Chunks      []string `json:"chunks"`
	ContentType string   `json:"contentType"`
	Size        int64    `json:"size"`
}

// EncodeCanonical returns the canonical JSON encoding used to derive the
// file's key: {"kind":"file","chunks":[...],"contentType":"...","size":N}.
func (f *File) EncodeCanonical() []byte {
	var b strings.Builder
	b.WriteString(`{"kind":"file","chunks":[`)
	for i, c := range f.Chunks {
		if i > 0 {
			b.WriteByte(',')
		}
		writeJSONString(&b, c)
	}
	b.WriteString(`],"contentType":`)
	writeJSONString(&b, f.ContentType)
	b.WriteString(`,"size":`)
	fmt.Fprintf(&b, "%d", f.Size)
	b.WriteByte('}')
	return []byte(b.String())
}

// Key computes the file's content-address from its canonical encoding.
func (f *File) Key() string {
	return digest.ComputeKey(f.EncodeCanonical())
}

// Collection is a map from UTF-8 child names to child node keys.
type Collection struct {
	Children map[string]string `json:"children"`
}

// EncodeCanonical returns the canonical JSON encoding used to derive the
// collection's key: {"children":{<sorted name>:<key>,...}}. Size is
// deliberately not folded into the hashed bytes (see SPEC_FULL.md §9's
// resolution of the source's collection-encoding open question); it travels
// only in ownership records and wire nodeInfo.
func (c *Collection) EncodeCanonical() []byte {
	names := make([]string, 0, len(c.Children))
	for name := range c.Children {
		names = append(names, name)
	}
	sort.Strings(names) // lexicographic by UTF-8 byte order, matching Go's native string ordering

	var b strings.Builder
	b.WriteString(`{"children":{`)
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		writeJSONString(&b, name)
		b.WriteByte(':')
		writeJSONString(&b, c.Children[name])
	}
	b.WriteString(`}}`)
	return []byte(b.String())
}

// Key computes the collection's content-address from its canonical encoding.
func (c *Collection) Key() string {
	return digest.ComputeKey(c.EncodeCanonical())
}

// EmptyCollectionKey is the fixed, universally known key of the empty
// collection (§3): materialized lazily the first time a realm needs it.
func EmptyCollectionKey() string {
	empty := &Collection{Children: map[string]string{}}
	return empty.Key()
}

// writeJSONString appends the canonical JSON string encoding of s to b.
// Only the escapes mandated by the JSON grammar are applied; no HTML
// escaping, matching what an independent implementation following the
// spec's canonical-JSON rule would naturally produce.
func writeJSONString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}

// NodeInfo is the read-side summary of a node, as returned by a tree walk
// (§4.E) and the wire GET /tree endpoint (§6).
type NodeInfo struct {
	Kind        Kind              `json:"kind"`
	Size        int64             `json:"size"`
	ContentType string            `json:"contentType,omitempty"`
	Chunks      int               `json:"chunks,omitempty"`
	Children    map[string]string `json:"children,omitempty"`
}

// ClassifyContentType maps a stored content-type label back to a node Kind,
// defaulting to KindChunk for anything else (§4.D, §4.E).
func ClassifyContentType(contentType string) Kind {
	switch contentType {
	case ContentTypeCollection:
		return KindCollection
	case ContentTypeFile:
		return KindFile
	case ContentTypeInlineFile:
		return KindInlineFile
	default:
		return KindChunk
	}
}
