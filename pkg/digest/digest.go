// Package digest implements the content-address primitives of the CAS engine:
// computing a node's key from its bytes, and splitting oversized payloads into
// fixed-size chunks at the node-limit boundary.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// Algo identifies a supported digest algorithm.
type Algo string

const (
	SHA256 Algo = "sha256"
	BLAKE3 Algo = "blake3"
)

// EmptyChunkKey is the canonical key of a zero-length chunk under SHA-256.
// It is the key every zero-byte file resolves to (§3 of the specification).
const EmptyChunkKey = "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// ComputeKey returns the default (SHA-256) content address for data.
func ComputeKey(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// ComputeKeyWithAlgo returns the content address for data under the requested
// algorithm. SHA-256 is the default and only mandatory algorithm; blake3 is
// recognized as an optional secondary algorithm for callers that request it
// explicitly (the buffered writer and HTTP surface never negotiate it).
func ComputeKeyWithAlgo(data []byte, algo Algo) (string, error) {
	switch algo {
	case SHA256, "":
		return ComputeKey(data), nil
	case BLAKE3:
		sum := blake3.Sum256(data)
		return "blake3:" + hex.EncodeToString(sum[:]), nil
	default:
		return "", fmt.Errorf("digest: unsupported algorithm %q", algo)
	}
}

// NeedsChunking reports whether a payload of the given size must be split
// before it can be stored as chunks under nodeLimit.
func NeedsChunking(size, nodeLimit int64) bool {
	return size > nodeLimit
}

// SplitIntoChunks splits data into fixed-size slices of at most nodeLimit
// bytes, the last possibly shorter. A zero-length input yields a single
// empty chunk so that zero-byte files remain representable as ordinary
// single-chunk files (§3).
func SplitIntoChunks(data []byte, nodeLimit int64) [][]byte {
	if nodeLimit <= 0 {
		panic("digest: nodeLimit must be positive")
	}
	if len(data) == 0 {
		return [][]byte{{}}
	}

	limit := int(nodeLimit)
	chunks := make([][]byte, 0, (len(data)+limit-1)/limit)
	for offset := 0; offset < len(data); offset += limit {
		end := offset + limit
		if end > len(data) {
			end = len(data)
		}
		chunk := make([]byte, end-offset)
		copy(chunk, data[offset:end])
		chunks = append(chunks, chunk)
	}
	return chunks
}
