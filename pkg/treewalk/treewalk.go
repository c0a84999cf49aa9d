// Package treewalk implements the bounded breadth-first traversal of a CAS
// DAG (§4.E), grounded on the teacher's content fetcher's visited-set
// termination pattern (pkg/content/fetcher.go), adapted from a multi-provider
// network fetch loop to a single-backend, ownership-checked local walk.
package treewalk

import (
	"encoding/json"

	"github.com/brinevault/brine/pkg/blobstore"
	"github.com/brinevault/brine/pkg/node"
	"github.com/brinevault/brine/pkg/ownership"
)

// Result is the bounded node map and optional continuation cursor (§4.E).
type Result struct {
	Nodes        map[string]node.NodeInfo
	NextFrontier string
}

// Walk performs a breadth-first traversal from root, bounded by nodeBudget.
// A child reference to a key the realm does not own is silently omitted
// (§4.E edge policy); chunk keys referenced by file nodes are never expanded
// into the output map.
func Walk(blobs blobstore.Store, owned ownership.Index, realm, root string, nodeBudget int) (Result, error) {
	result := Result{Nodes: make(map[string]node.NodeInfo)}

	visited := make(map[string]bool)
	queue := []string{root}

	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]

		if visited[key] {
			continue
		}
		visited[key] = true

		has, err := owned.HasOwnership(realm, key)
		if err != nil {
			return Result{}, err
		}
		if !has {
			// Not present for this caller; silently omitted, not an error.
			continue
		}

		if len(result.Nodes) >= nodeBudget {
			result.NextFrontier = key
			break
		}

		blob, ok, err := blobs.Get(key)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			// Owned but not retrievable: the key is skipped, with no node
			// entry and no error.
			continue
		}

		switch node.ClassifyContentType(blob.ContentType) {
		case node.KindCollection:
			coll := decodeCollectionChildren(blob.Bytes)
			result.Nodes[key] = node.NodeInfo{
				Kind:     node.KindCollection,
				Size:     int64(len(blob.Bytes)),
				Children: coll,
			}
			for _, childKey := range coll {
				if !visited[childKey] {
					queue = append(queue, childKey)
				}
			}
		case node.KindFile:
			chunkCount, contentType, size := decodeFileSummary(blob)
			result.Nodes[key] = node.NodeInfo{
				Kind:        node.KindFile,
				Size:        size,
				ContentType: contentType,
				Chunks:      chunkCount,
			}
		case node.KindInlineFile:
			result.Nodes[key] = node.NodeInfo{
				Kind:        node.KindInlineFile,
				Size:        int64(len(blob.Bytes)),
				ContentType: blob.Metadata["casContentType"],
			}
		default:
			// Raw chunks are never emitted into the node map directly.
		}
	}

	return result, nil
}

// decodeCollectionChildren parses a stored collection's canonical bytes back
// into a name->key map. Decoding is not the place canonicality matters (only
// the encoder that derives a key must be deterministic), so stdlib JSON
// decoding is used here rather than a hand-rolled parser.
func decodeCollectionChildren(raw []byte) map[string]string {
	var decoded struct {
		Children map[string]string `json:"children"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}
	return decoded.Children
}

// decodeFileSummary parses a stored file node's canonical bytes into the
// chunk count, content type, and size fields the walk reports (§4.E).
func decodeFileSummary(blob blobstore.Blob) (chunks int, contentType string, size int64) {
	var decoded node.File
	if err := json.Unmarshal(blob.Bytes, &decoded); err != nil {
		return 0, "", int64(len(blob.Bytes))
	}
	return len(decoded.Chunks), decoded.ContentType, decoded.Size
}
