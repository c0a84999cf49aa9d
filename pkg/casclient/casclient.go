// Package casclient implements the buffered client writer of §4.F: in-memory
// DAG staging, deterministic root-key computation before any network call,
// and an atomic commit with a bounded missing_nodes retry loop. Grounded on
// the teacher's pkg/content/fetcher.go parallel-fetch shape (here modernized
// from a semaphore+WaitGroup fan-out to golang.org/x/sync/errgroup) and
// pkg/agent/agent.go's stage-then-flush buffering convention.
package casclient

import (
	"context"
	"fmt"

	"github.com/brinevault/brine/pkg/digest"
	"github.com/brinevault/brine/pkg/node"
)

// FileManifest and CollectionManifest are the wire-shaped node declarations a
// commit carries (§6 "files?: {<key>: {chunks,contentType,size}}").
type FileManifest struct {
	Chunks      []string
	ContentType string
	Size        int64
}

type CollectionManifest struct {
	Children map[string]string
	Size     int64
}

// CommitRequest is what the buffered writer sends on commit.
type CommitRequest struct {
	Root        string
	Files       map[string]FileManifest
	Collections map[string]CollectionManifest
}

// CommitResponse is the server's reply to a commit attempt (§4.G "Operation").
type CommitResponse struct {
	Success   bool
	Root      string
	Committed []string
	Missing   []string
	Err       error
}

// Transport is everything the buffered writer needs from a server connection.
// A same-process implementation can wire this directly to pkg/cas and
// pkg/treewalk; an out-of-process implementation would speak the §6 HTTP API.
type Transport interface {
	UploadChunk(ctx context.Context, realm, key string, data []byte) error
	Commit(ctx context.Context, realm string, req CommitRequest) (CommitResponse, error)
	GetTree(ctx context.Context, realm, root string, nodeBudget int) (map[string]node.NodeInfo, string, error)
	GetRaw(ctx context.Context, realm, key string) ([]byte, string, error)
}

// CommitError is a terminal failure of the commit retry loop: either a
// missing-nodes response named a key the writer never staged, or the retry
// budget was exhausted (§5 "bounded retry count (3)").
type CommitError struct {
	Reason string
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("casclient: commit failed: %s", e.Reason)
}

// maxRetries is the buffered writer's commit retry budget (§4.F).
const maxRetries = 3

// defaultConcurrency bounds parallel chunk upload fan-out, matching the
// reference implementation's content-fetch fan-out width (§4.F).
const defaultConcurrency = 8

// PathEntryKind discriminates the three shapes a path resolver may return for
// a given path (§4.F "putCollection").
type PathEntryKind string

const (
	PathEntryFile       PathEntryKind = "file"
	PathEntryLink       PathEntryKind = "link"
	PathEntryCollection PathEntryKind = "collection"
)

// PathEntry is what a PathResolver returns for one path.
type PathEntry struct {
	Kind        PathEntryKind
	Bytes       []byte // for PathEntryFile
	ContentType string // for PathEntryFile
	LinkKey     string // for PathEntryLink: an existing, already-admitted key
	Children    []string // for PathEntryCollection: child names under this path
}

// PathResolver supplies the contents of a staged collection tree, one path at
// a time, starting from "/" (§4.F "putCollection").
type PathResolver interface {
	Resolve(path string) (PathEntry, error)
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

// digestChunks splits data per nodeLimit and returns the ordered chunk keys,
// staging each chunk's bytes as a side effect.
func (w *Writer) digestChunks(data []byte) []string {
	chunks := digest.SplitIntoChunks(data, w.nodeLimit)
	keys := make([]string, len(chunks))
	for i, c := range chunks {
		key := digest.ComputeKey(c)
		keys[i] = key
		w.stagedChunks[key] = c
	}
	return keys
}
