// Package blobstore defines the blob-storage capability (§4.B) required by the
// CAS engine and ships an in-memory reference implementation. The engine's
// business logic is written only against the Store interface so a durable
// backend (object store, KV database) can be substituted without touching any
// other package.
package blobstore

import (
	"fmt"
	"sync"

	"github.com/brinevault/brine/pkg/digest"
)

// Blob is a stored object: its bytes, declared content type, and any
// node-reconstruction metadata (§4.B — casContentType/casSize for inline files).
type Blob struct {
	Bytes       []byte
	ContentType string
	Metadata    map[string]string
}

// PutResult reports the outcome of a successful PutWithKey.
type PutResult struct {
	Size  int64
	IsNew bool
}

// Store is the capability every CAS backend must provide for blob storage.
type Store interface {
	// Exists reports whether key is present in the store.
	Exists(key string) (bool, error)
	// Get retrieves the blob stored at key, or ok=false if absent.
	Get(key string) (blob Blob, ok bool, err error)
	// PutWithKey stores bytes under expectedKey after recomputing its digest.
	// Idempotent on key: writing an existing key is a no-op except for
	// reporting IsNew=false. Returns a *HashMismatchError when the
	// recomputed digest disagrees with expectedKey.
	PutWithKey(expectedKey string, bytes []byte, contentType string, metadata map[string]string) (PutResult, error)
	// Reclassify relabels an already-stored blob's content type and metadata
	// without touching its bytes, used when the commit admitter recognizes an
	// uploaded chunk as an inline file (§3, §4.B "casContentType/casSize").
	Reclassify(key, contentType string, metadata map[string]string) error
}

// Memory is an in-process, mutex-guarded blob store, grounded on the
// teacher's DHT storage-map pattern (a single guarded map keyed by string,
// generalized here from a TTL-keyed record store to a permanent,
// content-addressed one).
type Memory struct {
	mu    sync.RWMutex
	blobs map[string]Blob
}

// NewMemory creates an empty in-memory blob store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string]Blob)}
}

func (m *Memory) Exists(key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[key]
	return ok, nil
}

func (m *Memory) Get(key string) (Blob, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, ok := m.blobs[key]
	if !ok {
		return Blob{}, false, nil
	}
	// Return a defensive copy so callers cannot mutate stored bytes.
	out := Blob{
		Bytes:       append([]byte(nil), blob.Bytes...),
		ContentType: blob.ContentType,
	}
	if blob.Metadata != nil {
		out.Metadata = make(map[string]string, len(blob.Metadata))
		for k, v := range blob.Metadata {
			out.Metadata[k] = v
		}
	}
	return out, true, nil
}

func (m *Memory) PutWithKey(expectedKey string, bytes []byte, contentType string, metadata map[string]string) (PutResult, error) {
	actual := digest.ComputeKey(bytes)
	if actual != expectedKey {
		return PutResult{}, hashMismatch(expectedKey, actual)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.blobs[expectedKey]; ok {
		return PutResult{Size: int64(len(existing.Bytes)), IsNew: false}, nil
	}

	stored := Blob{
		Bytes:       append([]byte(nil), bytes...),
		ContentType: contentType,
	}
	if metadata != nil {
		stored.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			stored.Metadata[k] = v
		}
	}
	m.blobs[expectedKey] = stored

	return PutResult{Size: int64(len(bytes)), IsNew: true}, nil
}

func (m *Memory) Reclassify(key, contentType string, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	blob, ok := m.blobs[key]
	if !ok {
		return fmt.Errorf("blobstore: reclassify: key not found: %s", key)
	}

	blob.ContentType = contentType
	if metadata != nil {
		meta := make(map[string]string, len(metadata))
		for k, v := range metadata {
			meta[k] = v
		}
		blob.Metadata = meta
	}
	m.blobs[key] = blob
	return nil
}

// HashMismatchError reports that uploaded bytes did not hash to the expected key.
type HashMismatchError struct {
	Expected string
	Actual   string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("blobstore: hash mismatch: expected %s, got %s", e.Expected, e.Actual)
}

func hashMismatch(expected, actual string) error {
	return &HashMismatchError{Expected: expected, Actual: actual}
}
