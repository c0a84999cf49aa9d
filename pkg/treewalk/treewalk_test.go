package treewalk

import (
	"testing"

	"github.com/brinevault/brine/pkg/blobstore"
	"github.com/brinevault/brine/pkg/digest"
	"github.com/brinevault/brine/pkg/node"
	"github.com/brinevault/brine/pkg/ownership"
)

const realm = "usr_u1"

func putFile(t *testing.T, blobs blobstore.Store, owned ownership.Index, chunks []string, contentType string, size int64) string {
	t.Helper()
	f := &node.File{Chunks: chunks, ContentType: contentType, Size: size}
	key := f.Key()
	if _, err := blobs.PutWithKey(key, f.EncodeCanonical(), node.ContentTypeFile, nil); err != nil {
		t.Fatalf("put file failed: %v", err)
	}
	if _, err := owned.AddOwnership(realm, key, "usr_u1", node.ContentTypeFile, size); err != nil {
		t.Fatalf("add ownership failed: %v", err)
	}
	return key
}

func putCollection(t *testing.T, blobs blobstore.Store, owned ownership.Index, children map[string]string) string {
	t.Helper()
	c := &node.Collection{Children: children}
	key := c.Key()
	if _, err := blobs.PutWithKey(key, c.EncodeCanonical(), node.ContentTypeCollection, nil); err != nil {
		t.Fatalf("put collection failed: %v", err)
	}
	if _, err := owned.AddOwnership(realm, key, "usr_u1", node.ContentTypeCollection, 0); err != nil {
		t.Fatalf("add ownership failed: %v", err)
	}
	return key
}

func putChunk(t *testing.T, blobs blobstore.Store, owned ownership.Index, data []byte) string {
	t.Helper()
	key := digest.ComputeKey(data)
	if _, err := blobs.PutWithKey(key, data, "application/octet-stream", nil); err != nil {
		t.Fatalf("put chunk failed: %v", err)
	}
	if _, err := owned.AddOwnership(realm, key, "usr_u1", "application/octet-stream", int64(len(data))); err != nil {
		t.Fatalf("add ownership failed: %v", err)
	}
	return key
}

func TestWalkSingleFile(t *testing.T) {
	blobs := blobstore.NewMemory()
	owned := ownership.NewMemory()

	chunkKey := putChunk(t, blobs, owned, []byte("hello"))
	fileKey := putFile(t, blobs, owned, []string{chunkKey}, "text/plain", 5)

	result, err := Walk(blobs, owned, realm, fileKey, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Nodes) != 1 {
		t.Fatalf("expected only the file node to be emitted, got %d", len(result.Nodes))
	}
	info, ok := result.Nodes[fileKey]
	if !ok {
		t.Fatal("expected file node present")
	}
	if info.Kind != node.KindFile || info.Chunks != 1 || info.Size != 5 {
		t.Fatalf("unexpected file node info: %+v", info)
	}
	if result.NextFrontier != "" {
		t.Fatal("expected no continuation cursor")
	}
}

func TestWalkCollectionTraversal(t *testing.T) {
	blobs := blobstore.NewMemory()
	owned := ownership.NewMemory()

	chunkKey := putChunk(t, blobs, owned, []byte("data"))
	fileKey := putFile(t, blobs, owned, []string{chunkKey}, "text/plain", 4)
	collKey := putCollection(t, blobs, owned, map[string]string{"a.txt": fileKey})

	result, err := Walk(blobs, owned, realm, collKey, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Nodes) != 2 {
		t.Fatalf("expected collection + file nodes, got %d: %v", len(result.Nodes), result.Nodes)
	}
	if _, ok := result.Nodes[collKey]; !ok {
		t.Fatal("expected collection node present")
	}
	if _, ok := result.Nodes[fileKey]; !ok {
		t.Fatal("expected file node present")
	}
}

func TestWalkOmitsUnownedChild(t *testing.T) {
	blobs := blobstore.NewMemory()
	owned := ownership.NewMemory()

	otherOwned := ownership.NewMemory()
	chunkKey := putChunk(t, blobs, otherOwned, []byte("secret"))
	foreignFileKey := putFile(t, blobs, otherOwned, []string{chunkKey}, "text/plain", 6)

	collKey := putCollection(t, blobs, owned, map[string]string{"secret.txt": foreignFileKey})

	result, err := Walk(blobs, owned, realm, collKey, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Nodes) != 1 {
		t.Fatalf("expected only the collection node, unowned child should be omitted, got %d", len(result.Nodes))
	}
	if _, ok := result.Nodes[foreignFileKey]; ok {
		t.Fatal("unowned child must not appear in the walk result")
	}
}

func TestWalkNodeBudgetCutoff(t *testing.T) {
	blobs := blobstore.NewMemory()
	owned := ownership.NewMemory()

	var fileKeys []string
	for _, data := range [][]byte{[]byte("one"), []byte("two"), []byte("three")} {
		chunkKey := putChunk(t, blobs, owned, data)
		fileKeys = append(fileKeys, putFile(t, blobs, owned, []string{chunkKey}, "text/plain", int64(len(data))))
	}
	children := map[string]string{}
	for i, key := range fileKeys {
		children[string(rune('a'+i))] = key
	}
	collKey := putCollection(t, blobs, owned, children)

	result, err := Walk(blobs, owned, realm, collKey, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Nodes) != 2 {
		t.Fatalf("expected exactly 2 nodes under budget, got %d", len(result.Nodes))
	}
	if result.NextFrontier == "" {
		t.Fatal("expected a continuation cursor when budget is exhausted")
	}
}

func TestWalkMissingRootIsEmpty(t *testing.T) {
	blobs := blobstore.NewMemory()
	owned := ownership.NewMemory()

	result, err := Walk(blobs, owned, realm, "sha256:doesnotexist", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Nodes) != 0 {
		t.Fatalf("expected empty result for unowned root, got %d", len(result.Nodes))
	}
}
