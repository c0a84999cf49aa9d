package casclient

import (
	"context"

	"github.com/brinevault/brine/pkg/auth"
	"github.com/brinevault/brine/pkg/blobstore"
	"github.com/brinevault/brine/pkg/cas"
	"github.com/brinevault/brine/pkg/node"
	"github.com/brinevault/brine/pkg/treewalk"
)

// defaultTreeBudget bounds an unsized GetTree call against the in-process
// transport; server-side HTTP callers should pass an explicit budget.
const defaultTreeBudget = 4096

// LocalTransport wires a Writer directly to an in-process commit admitter and
// blob store, skipping the wire entirely. It is the transport a same-process
// caller (tests, an embedding CLI) uses in place of an HTTP client.
type LocalTransport struct {
	blobs   blobstore.Store
	owned   ownerIndex
	admitter *cas.Admitter
	authCtx auth.Context
}

// ownerIndex is the narrow slice of ownership.Index that treewalk needs;
// declared locally so this file only imports what it uses.
type ownerIndex interface {
	HasOwnership(realm, key string) (bool, error)
}

// NewLocalTransport builds a Transport that commits and reads against blobs
// directly, authorizing every call as authCtx.
func NewLocalTransport(blobs blobstore.Store, owned ownerIndex, admitter *cas.Admitter, authCtx auth.Context) *LocalTransport {
	return &LocalTransport{blobs: blobs, owned: owned, admitter: admitter, authCtx: authCtx}
}

func (t *LocalTransport) UploadChunk(_ context.Context, _ string, key string, data []byte) error {
	_, err := t.blobs.PutWithKey(key, data, "application/octet-stream", nil)
	return err
}

func (t *LocalTransport) Commit(_ context.Context, realm string, req CommitRequest) (CommitResponse, error) {
	casReq := cas.Request{
		Root:        req.Root,
		Files:       make(map[string]cas.FileSpec, len(req.Files)),
		Collections: make(map[string]cas.CollectionSpec, len(req.Collections)),
	}
	for key, f := range req.Files {
		casReq.Files[key] = cas.FileSpec{Chunks: f.Chunks, ContentType: f.ContentType, Size: f.Size}
	}
	for key, c := range req.Collections {
		casReq.Collections[key] = cas.CollectionSpec{Children: c.Children, Size: c.Size}
	}

	outcome, err := t.admitter.Commit(t.authCtx, realm, casReq)
	if err != nil {
		return CommitResponse{}, err
	}
	return CommitResponse{
		Success:   outcome.Success,
		Root:      outcome.Root,
		Committed: outcome.Committed,
		Missing:   outcome.Missing,
	}, nil
}

func (t *LocalTransport) GetTree(_ context.Context, realm, root string, nodeBudget int) (map[string]node.NodeInfo, string, error) {
	if nodeBudget <= 0 {
		nodeBudget = defaultTreeBudget
	}
	result, err := treewalk.Walk(t.blobs, t.owned, realm, root, nodeBudget)
	if err != nil {
		return nil, "", err
	}
	return result.Nodes, result.NextFrontier, nil
}

func (t *LocalTransport) GetRaw(_ context.Context, realm, key string) ([]byte, string, error) {
	has, err := t.owned.HasOwnership(realm, key)
	if err != nil {
		return nil, "", err
	}
	if !has {
		return nil, "", nil
	}
	blob, ok, err := t.blobs.Get(key)
	if err != nil || !ok {
		return nil, "", err
	}
	return blob.Bytes, blob.ContentType, nil
}
