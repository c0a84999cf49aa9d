// Package cas implements the server-side commit admitter (§4.G): the single
// operation that turns a client's declared file/collection manifests into
// realm ownership, atomically. Grounded on the teacher's
// pkg/control/api.go request-validate-then-dispatch structure (pre-checks
// before any mutation) and pkg/content/errors.go's typed, classifiable error
// convention (adapted into the caserr taxonomy).
package cas

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/brinevault/brine/pkg/auth"
	"github.com/brinevault/brine/pkg/blobstore"
	"github.com/brinevault/brine/pkg/caserr"
	"github.com/brinevault/brine/pkg/node"
	"github.com/brinevault/brine/pkg/ownership"
)

// FileSpec is a client-declared file node, keyed by its claimed key in a
// CommitRequest (§6 "files?: {<key>: {chunks,contentType,size}}").
type FileSpec struct {
	Chunks      []string
	ContentType string
	Size        int64
}

// CollectionSpec is a client-declared collection node, keyed by its claimed
// key in a CommitRequest. Size is declared for bookkeeping only — it is never
// folded into the hashed bytes (§4.D).
type CollectionSpec struct {
	Children map[string]string
	Size     int64
}

// Request is the full commit payload (§4.G "Operation").
type Request struct {
	Root        string
	Files       map[string]FileSpec
	Collections map[string]CollectionSpec
}

// Outcome is the result of a commit attempt. A non-nil Missing slice signals
// the missing_nodes case, which is not an error — it is a distinct
// success-shaped rejection the client is expected to retry after uploading
// the named chunks (§4.F "Commit protocol").
type Outcome struct {
	Success   bool
	Root      string
	Committed []string
	Missing   []string
}

// Admitter is the commit admitter. One Admitter instance serves every realm;
// atomicity within a realm comes from a per-realm mutex, never a process-wide
// one (§4.G "Atomicity").
type Admitter struct {
	blobs        blobstore.Store
	owned        ownership.Index
	nodeLimit    int64
	maxNameBytes int

	realmLocksMu sync.Mutex
	realmLocks   map[string]*sync.Mutex
}

// NewAdmitter builds a commit admitter over a blob store and ownership index.
// nodeLimit bounds which single-chunk files are eligible for the inline-file
// optimization (§3); maxNameBytes bounds collection child-name length (§3).
func NewAdmitter(blobs blobstore.Store, owned ownership.Index, nodeLimit int64, maxNameBytes int) *Admitter {
	return &Admitter{
		blobs:        blobs,
		owned:        owned,
		nodeLimit:    nodeLimit,
		maxNameBytes: maxNameBytes,
		realmLocks:   make(map[string]*sync.Mutex),
	}
}

func (a *Admitter) lockFor(realm string) *sync.Mutex {
	a.realmLocksMu.Lock()
	defer a.realmLocksMu.Unlock()

	mu, ok := a.realmLocks[realm]
	if !ok {
		mu = &sync.Mutex{}
		a.realmLocks[realm] = mu
	}
	return mu
}

// Commit admits req under realm on behalf of authCtx (§4.G).
func (a *Admitter) Commit(authCtx auth.Context, realm string, req Request) (Outcome, error) {
	if !authCtx.CanWrite {
		return Outcome{}, caserr.Forbidden("caller does not hold write authorization")
	}

	var ticketCommit *ticketCommitView
	if authCtx.Ticket != nil && authCtx.Ticket.Commit != nil {
		ticketCommit = &ticketCommitView{
			accept: authCtx.Ticket.Commit.Accept,
			quota:  authCtx.Ticket.Commit.Quota,
			root:   authCtx.Ticket.Commit.Root,
		}
	}

	// commit.root pin: enforced before any reference resolution (§9, S7).
	if ticketCommit != nil && ticketCommit.root != "" && ticketCommit.root != req.Root {
		return Outcome{}, caserr.Forbidden("commit root does not match the ticket's pinned root")
	}

	if ticketCommit != nil && len(ticketCommit.accept) > 0 {
		for _, f := range req.Files {
			if !matchesAnyPrefix(f.ContentType, ticketCommit.accept) {
				return Outcome{}, caserr.Forbidden("file content type not in ticket's accept list")
			}
		}
	}

	if ticketCommit != nil && ticketCommit.quota > 0 {
		var total int64
		for _, f := range req.Files {
			total += f.Size
		}
		if total > ticketCommit.quota {
			return Outcome{}, caserr.QuotaExceeded("commit would exceed the ticket's byte quota")
		}
	}

	if _, isFile := req.Files[req.Root]; !isFile {
		if _, isColl := req.Collections[req.Root]; !isColl {
			has, err := a.owned.HasOwnership(realm, req.Root)
			if err != nil {
				return Outcome{}, err
			}
			if !has {
				return Outcome{}, caserr.InvalidRequest("root must be declared in this commit or already owned")
			}
		}
	}

	// No-op fast path: a DAG whose root is already owned is a no-op (§8).
	if rootAlreadyOwned, err := a.owned.HasOwnership(realm, req.Root); err != nil {
		return Outcome{}, err
	} else if rootAlreadyOwned {
		return Outcome{Success: true, Root: req.Root, Committed: []string{}}, nil
	}

	mu := a.lockFor(realm)
	mu.Lock()
	defer mu.Unlock()

	if missing := a.resolveReferences(realm, req); len(missing) > 0 {
		return Outcome{Missing: missing}, nil
	}

	committed, err := a.admit(realm, authCtx.TokenID, req)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{Success: true, Root: req.Root, Committed: committed}, nil
}

type ticketCommitView struct {
	accept []string
	quota  int64
	root   string
}

func matchesAnyPrefix(contentType string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}

// resolveReferences implements §4.G's reference-resolution pass, returning
// the set of referenced keys that are unmet under any of the permitted
// sources (prior ownership, or presence earlier in this same commit).
func (a *Admitter) resolveReferences(realm string, req Request) []string {
	missingSet := map[string]bool{}

	for _, f := range req.Files {
		for _, chunkKey := range f.Chunks {
			if missingSet[chunkKey] {
				continue
			}
			owned, _ := a.owned.HasOwnership(realm, chunkKey)
			if owned {
				continue
			}
			exists, _ := a.blobs.Exists(chunkKey)
			if exists {
				continue
			}
			missingSet[chunkKey] = true
		}
	}

	for _, c := range req.Collections {
		for _, childKey := range c.Children {
			if missingSet[childKey] {
				continue
			}
			if _, ok := req.Files[childKey]; ok {
				continue
			}
			if _, ok := req.Collections[childKey]; ok {
				continue
			}
			owned, _ := a.owned.HasOwnership(realm, childKey)
			if owned {
				continue
			}
			missingSet[childKey] = true
		}
	}

	if len(missingSet) == 0 {
		return nil
	}
	missing := make([]string, 0, len(missingSet))
	for key := range missingSet {
		missing = append(missing, key)
	}
	return missing
}

// admit performs the topological admission pass: files first, then
// collections in an order where every child collection is admitted before
// its parent (bottom-up), verifying each declared key against its canonical
// encoding before writing the node blob and adding ownership (§4.G
// "Admission").
func (a *Admitter) admit(realm, tokenID string, req Request) ([]string, error) {
	var committed []string

	for _, c := range req.Collections {
		for name := range c.Children {
			if len(name) > a.maxNameBytes {
				return nil, caserr.InvalidRequest(fmt.Sprintf("child name %q is %d bytes, exceeding maxNameBytes (%d)", name, len(name), a.maxNameBytes))
			}
		}
	}

	// Verify every declared key and inline size before the first write, so a
	// rejected commit adds no ownership at all.
	for declaredKey, f := range req.Files {
		if a.isInlineFile(declaredKey, f) {
			if blob, ok, err := a.blobs.Get(declaredKey); err == nil && ok && int64(len(blob.Bytes)) != f.Size {
				return nil, caserr.InvalidNode("declared inline file size does not match its chunk's stored size")
			}
		} else if (&node.File{Chunks: f.Chunks, ContentType: f.ContentType, Size: f.Size}).Key() != declaredKey {
			return nil, caserr.InvalidNode("declared file key does not match its canonical encoding")
		}
	}
	for declaredKey, c := range req.Collections {
		if (&node.Collection{Children: c.Children}).Key() != declaredKey {
			return nil, caserr.InvalidNode("declared collection key does not match its canonical encoding")
		}
	}

	for declaredKey, f := range req.Files {
		if a.isInlineFile(declaredKey, f) {
			blob, ok, err := a.blobs.Get(declaredKey)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, caserr.Internal("referenced chunk vanished mid-admission", nil)
			}
			if int64(len(blob.Bytes)) != f.Size {
				return nil, caserr.InvalidNode("declared inline file size does not match its chunk's stored size")
			}
			if err := a.blobs.Reclassify(declaredKey, node.ContentTypeInlineFile, map[string]string{
				"casContentType": f.ContentType,
				"casSize":        strconv.FormatInt(f.Size, 10),
			}); err != nil {
				return nil, err
			}
			if _, err := a.owned.AddOwnership(realm, declaredKey, tokenID, node.ContentTypeInlineFile, f.Size); err != nil {
				return nil, err
			}
			committed = append(committed, declaredKey)
			continue
		}

		file := &node.File{Chunks: f.Chunks, ContentType: f.ContentType, Size: f.Size}
		if file.Key() != declaredKey {
			return nil, caserr.InvalidNode("declared file key does not match its canonical encoding")
		}
		if _, err := a.blobs.PutWithKey(declaredKey, file.EncodeCanonical(), node.ContentTypeFile, nil); err != nil {
			return nil, err
		}
		if _, err := a.owned.AddOwnership(realm, declaredKey, tokenID, node.ContentTypeFile, f.Size); err != nil {
			return nil, err
		}
		committed = append(committed, declaredKey)

		for _, chunkKey := range f.Chunks {
			already, err := a.owned.HasOwnership(realm, chunkKey)
			if err != nil {
				return nil, err
			}
			if already {
				continue
			}
			blob, ok, err := a.blobs.Get(chunkKey)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, caserr.Internal("referenced chunk vanished mid-admission", nil)
			}
			if _, err := a.owned.AddOwnership(realm, chunkKey, tokenID, blob.ContentType, int64(len(blob.Bytes))); err != nil {
				return nil, err
			}
			committed = append(committed, chunkKey)
		}
	}

	remaining := make(map[string]CollectionSpec, len(req.Collections))
	for key, c := range req.Collections {
		remaining[key] = c
	}
	for len(remaining) > 0 {
		progressed := false
		for declaredKey, c := range remaining {
			if !childrenReady(c, remaining) {
				continue
			}
			coll := &node.Collection{Children: c.Children}
			if coll.Key() != declaredKey {
				return nil, caserr.InvalidNode("declared collection key does not match its canonical encoding")
			}
			if _, err := a.blobs.PutWithKey(declaredKey, coll.EncodeCanonical(), node.ContentTypeCollection, nil); err != nil {
				return nil, err
			}
			if _, err := a.owned.AddOwnership(realm, declaredKey, tokenID, node.ContentTypeCollection, c.Size); err != nil {
				return nil, err
			}
			committed = append(committed, declaredKey)
			delete(remaining, declaredKey)
			progressed = true
		}
		if !progressed {
			return nil, caserr.InvalidNode("collection manifests contain a cycle")
		}
	}

	return committed, nil
}

// isInlineFile reports whether a declared file is eligible for the §3
// inline-file optimization: exactly one chunk, declared under that chunk's
// own key, within nodeLimit. Such a file has no separate file-node blob — the
// chunk itself is reclassified as the file.
func (a *Admitter) isInlineFile(declaredKey string, f FileSpec) bool {
	return len(f.Chunks) == 1 && f.Chunks[0] == declaredKey && f.Size <= a.nodeLimit
}

// childrenReady reports whether every child of c that is itself part of this
// commit's collection set has already been admitted (i.e. is no longer in
// pending). Children referenced outside this commit (already-owned or file
// keys) never block readiness here.
func childrenReady(c CollectionSpec, pending map[string]CollectionSpec) bool {
	for _, childKey := range c.Children {
		if _, stillPending := pending[childKey]; stillPending {
			return false
		}
	}
	return true
}
