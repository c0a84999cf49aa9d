package casclient

import (
	"context"
	"fmt"

	"github.com/brinevault/brine/pkg/node"
	"golang.org/x/sync/errgroup"
)

// Writer is the buffered client writer of §4.F: every put accumulates into
// in-memory staged state, root keys are computed locally before any network
// round-trip, and nothing reaches the server until Commit.
type Writer struct {
	realm        string
	transport    Transport
	nodeLimit    int64
	maxNameBytes int

	concurrency int

	stagedChunks      map[string][]byte
	stagedFiles       map[string]FileManifest
	stagedCollections map[string]CollectionManifest

	rootKey string
	hasRoot bool
}

// Option configures a Writer at construction.
type Option func(*Writer)

// WithConcurrency bounds how many chunks the writer uploads in parallel
// during Commit (§4.F). The default matches defaultConcurrency.
func WithConcurrency(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// NewWriter builds a buffered writer against transport for realm, chunking
// payloads at nodeLimit bytes and rejecting collection child names longer
// than maxNameBytes (§3).
func NewWriter(transport Transport, realm string, nodeLimit int64, maxNameBytes int, opts ...Option) *Writer {
	w := &Writer{
		realm:             realm,
		transport:         transport,
		nodeLimit:         nodeLimit,
		maxNameBytes:      maxNameBytes,
		concurrency:       defaultConcurrency,
		stagedChunks:      make(map[string][]byte),
		stagedFiles:       make(map[string]FileManifest),
		stagedCollections: make(map[string]CollectionManifest),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// PutFile stages data as a file node and returns its computed key. The key is
// deterministic and requires no network call (§4.F "putFile"). A payload that
// chunks to exactly one piece within nodeLimit is staged using the §3
// inline-file optimization: the chunk's own key doubles as the file key.
func (w *Writer) PutFile(data []byte, contentType string) string {
	chunkKeys := w.digestChunks(data)
	size := int64(len(data))

	key := w.fileKey(chunkKeys, contentType, size)
	w.stagedFiles[key] = FileManifest{Chunks: chunkKeys, ContentType: contentType, Size: size}
	w.rootKey = key
	w.hasRoot = true
	return key
}

// fileKey computes the declared key for a staged file: the sole chunk's own
// key when it is eligible for the inline-file optimization, otherwise the
// canonical file-node encoding's key (§3).
func (w *Writer) fileKey(chunkKeys []string, contentType string, size int64) string {
	if len(chunkKeys) == 1 && size <= w.nodeLimit {
		return chunkKeys[0]
	}
	file := &node.File{Chunks: chunkKeys, ContentType: contentType, Size: size}
	return file.Key()
}

// PutCollection recursively stages a collection tree starting at "/",
// resolving each path via resolver, and returns the root collection's
// computed key (§4.F "putCollection").
func (w *Writer) PutCollection(resolver PathResolver) (string, error) {
	key, err := w.putCollectionPath(resolver, "/")
	if err != nil {
		return "", err
	}
	w.rootKey = key
	w.hasRoot = true
	return key, nil
}

func (w *Writer) putCollectionPath(resolver PathResolver, path string) (string, error) {
	entry, err := resolver.Resolve(path)
	if err != nil {
		return "", fmt.Errorf("casclient: resolving %s: %w", path, err)
	}

	switch entry.Kind {
	case PathEntryFile:
		chunkKeys := w.digestChunks(entry.Bytes)
		size := int64(len(entry.Bytes))
		key := w.fileKey(chunkKeys, entry.ContentType, size)
		w.stagedFiles[key] = FileManifest{Chunks: chunkKeys, ContentType: entry.ContentType, Size: size}
		return key, nil

	case PathEntryLink:
		return entry.LinkKey, nil

	case PathEntryCollection:
		children := make(map[string]string, len(entry.Children))
		var size int64
		for _, name := range entry.Children {
			if len(name) > w.maxNameBytes {
				return "", fmt.Errorf("casclient: child name %q is %d bytes, exceeding maxNameBytes (%d)", name, len(name), w.maxNameBytes)
			}
			childKey, err := w.putCollectionPath(resolver, joinPath(path, name))
			if err != nil {
				return "", err
			}
			children[name] = childKey
			size += int64(len(childKey))
		}
		coll := &node.Collection{Children: children}
		key := coll.Key()
		w.stagedCollections[key] = CollectionManifest{Children: children, Size: size}
		return key, nil

	default:
		return "", fmt.Errorf("casclient: unknown path entry kind %q at %s", entry.Kind, path)
	}
}

// HasPendingWrites reports whether any staged node has not yet been
// committed.
func (w *Writer) HasPendingWrites() bool {
	return w.hasRoot
}

// GetPendingKeys returns every staged node key (chunks, files, collections).
func (w *Writer) GetPendingKeys() []string {
	keys := make([]string, 0, len(w.stagedChunks)+len(w.stagedFiles)+len(w.stagedCollections))
	for k := range w.stagedChunks {
		keys = append(keys, k)
	}
	for k := range w.stagedFiles {
		keys = append(keys, k)
	}
	for k := range w.stagedCollections {
		keys = append(keys, k)
	}
	return keys
}

// GetRootKey returns the key the next Commit will declare as root.
func (w *Writer) GetRootKey() (string, bool) {
	return w.rootKey, w.hasRoot
}

// Discard drops every staged node without committing (§4.F "discard").
func (w *Writer) Discard() {
	w.stagedChunks = make(map[string][]byte)
	w.stagedFiles = make(map[string]FileManifest)
	w.stagedCollections = make(map[string]CollectionManifest)
	w.rootKey = ""
	w.hasRoot = false
}

// Commit uploads staged chunks and submits the staged DAG, making up to
// maxRetries attempts in total while the server answers missing_nodes, then
// failing with a CommitError; any other commit error is returned as is
// (§4.F "Commit protocol", §5).
func (w *Writer) Commit(ctx context.Context) ([]string, error) {
	if !w.hasRoot {
		return nil, &CommitError{Reason: "nothing staged"}
	}

	pending := make(map[string]bool, len(w.stagedChunks))
	for key := range w.stagedChunks {
		pending[key] = true
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := w.uploadPending(ctx, pending); err != nil {
			return nil, err
		}

		req := CommitRequest{
			Root:        w.rootKey,
			Files:       w.stagedFiles,
			Collections: w.stagedCollections,
		}
		resp, err := w.transport.Commit(ctx, w.realm, req)
		if err != nil {
			return nil, err
		}
		if resp.Success {
			committed := resp.Committed
			w.Discard()
			return committed, nil
		}

		pending = make(map[string]bool, len(resp.Missing))
		for _, key := range resp.Missing {
			if _, staged := w.stagedChunks[key]; !staged {
				return nil, &CommitError{Reason: fmt.Sprintf("server reports %q missing but the writer never staged it", key)}
			}
			pending[key] = true
		}
	}

	return nil, &CommitError{Reason: "exceeded retry budget against repeated missing_nodes responses"}
}

// uploadPending fans out chunk uploads bounded by w.concurrency, collecting
// the first hard failure while letting in-flight uploads drain — the same
// shape as the reference implementation's semaphore-bounded fetch fan-out,
// expressed with golang.org/x/sync/errgroup instead of a manual
// semaphore+WaitGroup.
func (w *Writer) uploadPending(ctx context.Context, pending map[string]bool) error {
	if len(pending) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	for key := range pending {
		key := key
		data := w.stagedChunks[key]
		g.Go(func() error {
			return w.transport.UploadChunk(gctx, w.realm, key, data)
		})
	}

	return g.Wait()
}

// OpenFile reads a file's bytes, preferring staged content over the server
// (§4.F "openFile").
func (w *Writer) OpenFile(ctx context.Context, key string) ([]byte, string, error) {
	if file, ok := w.stagedFiles[key]; ok {
		return w.assembleStagedFile(file)
	}
	return w.transport.GetRaw(ctx, w.realm, key)
}

func (w *Writer) assembleStagedFile(file FileManifest) ([]byte, string, error) {
	out := make([]byte, 0, file.Size)
	for _, chunkKey := range file.Chunks {
		chunk, ok := w.stagedChunks[chunkKey]
		if !ok {
			return nil, "", fmt.Errorf("casclient: staged file references unstaged chunk %s", chunkKey)
		}
		out = append(out, chunk...)
	}
	return out, file.ContentType, nil
}

// GetTree returns the node summaries under root, preferring the writer's own
// staged state when root has not yet been committed.
func (w *Writer) GetTree(ctx context.Context, key string) (map[string]node.NodeInfo, string, error) {
	if coll, ok := w.stagedCollections[key]; ok {
		info := map[string]node.NodeInfo{
			key: {Kind: node.KindCollection, Size: coll.Size, Children: coll.Children},
		}
		return info, "", nil
	}
	if file, ok := w.stagedFiles[key]; ok {
		kind := node.KindFile
		if len(file.Chunks) == 1 && file.Chunks[0] == key {
			kind = node.KindInlineFile
		}
		info := map[string]node.NodeInfo{
			key: {Kind: kind, Size: file.Size, ContentType: file.ContentType, Chunks: len(file.Chunks)},
		}
		return info, "", nil
	}
	return w.transport.GetTree(ctx, w.realm, key, 0)
}

// GetRaw returns a node's raw stored bytes, preferring staged chunks.
func (w *Writer) GetRaw(ctx context.Context, key string) ([]byte, string, error) {
	if data, ok := w.stagedChunks[key]; ok {
		return data, "application/octet-stream", nil
	}
	return w.transport.GetRaw(ctx, w.realm, key)
}
