package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/brinevault/brine/pkg/cas"
	"github.com/brinevault/brine/pkg/caserr"
	"github.com/brinevault/brine/pkg/digest"
	"github.com/brinevault/brine/pkg/node"
	"github.com/brinevault/brine/pkg/treewalk"
)

func (s *Server) handleChunkUpload(w http.ResponseWriter, r *http.Request) {
	realmParam := r.PathValue("realm")
	key := r.PathValue("key")

	body, err := readBody(r, s.cfg.NodeLimit+1)
	if err != nil {
		s.writeError(w, r, caserr.InvalidRequest("failed to read request body"))
		return
	}

	ctx, err := s.resolveRealmScoped(r, body, realmParam)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ctx.CanWrite {
		s.writeError(w, r, caserr.Forbidden("caller does not hold write authorization"))
		return
	}
	if s.limiter != nil && !s.limiter.Allow(ctx.TokenID) {
		writeRateLimited(w)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = node.ContentTypeOctet
	}

	result, err := s.blobs.PutWithKey(key, body, contentType, nil)
	if err != nil {
		s.writeError(w, r, caserr.AsHashMismatch(key, digest.ComputeKey(body)))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"key": key, "size": result.Size})
}

type fileSpecWire struct {
	Chunks      []string `json:"chunks"`
	ContentType string   `json:"contentType"`
	Size        int64    `json:"size"`
}

type collectionSpecWire struct {
	Children map[string]string `json:"children"`
	Size     int64             `json:"size"`
}

type commitRequestWire struct {
	Root        string                        `json:"root"`
	Files       map[string]fileSpecWire       `json:"files,omitempty"`
	Collections map[string]collectionSpecWire `json:"collections,omitempty"`
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	realmParam := r.PathValue("realm")

	body, err := readBody(r, 16<<20)
	if err != nil {
		s.writeError(w, r, caserr.InvalidRequest("failed to read request body"))
		return
	}

	ctx, err := s.resolveRealmScoped(r, body, realmParam)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.limiter != nil && !s.limiter.Allow(ctx.TokenID) {
		writeRateLimited(w)
		return
	}

	var wire commitRequestWire
	if err := json.Unmarshal(body, &wire); err != nil {
		s.writeError(w, r, caserr.InvalidRequest("malformed commit request body"))
		return
	}

	req := cas.Request{
		Root:        wire.Root,
		Files:       make(map[string]cas.FileSpec, len(wire.Files)),
		Collections: make(map[string]cas.CollectionSpec, len(wire.Collections)),
	}
	for key, f := range wire.Files {
		req.Files[key] = cas.FileSpec{Chunks: f.Chunks, ContentType: f.ContentType, Size: f.Size}
	}
	for key, c := range wire.Collections {
		req.Collections[key] = cas.CollectionSpec{Children: c.Children, Size: c.Size}
	}

	outcome, err := s.admitter.Commit(ctx, ctx.Realm, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !outcome.Success {
		writeJSON(w, http.StatusConflict, map[string]any{"error": "missing_nodes", "missing": outcome.Missing})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "root": outcome.Root, "committed": outcome.Committed})
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	realmParam := r.PathValue("realm")
	root := r.PathValue("root")

	ctx, err := s.resolveRealmScoped(r, nil, realmParam)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ctx.CanRead {
		s.writeError(w, r, caserr.Forbidden("caller does not hold read authorization"))
		return
	}

	budget := s.cfg.TreeWalkBudget
	if raw := r.URL.Query().Get("budget"); raw != "" {
		if n, parseErr := strconv.Atoi(raw); parseErr == nil && n > 0 {
			budget = n
		}
	}

	result, err := treewalk.Walk(s.blobs, s.owned, ctx.Realm, root, budget)
	if err != nil {
		s.writeError(w, r, caserr.Internal("tree walk failed", err))
		return
	}

	resp := map[string]any{"nodes": result.Nodes}
	if result.NextFrontier != "" {
		resp["next"] = result.NextFrontier
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	realmParam := r.PathValue("realm")
	key := r.PathValue("key")

	ctx, err := s.resolveRealmScoped(r, nil, realmParam)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ctx.CanRead {
		s.writeError(w, r, caserr.Forbidden("caller does not hold read authorization"))
		return
	}
	if ctx.Ticket != nil && ctx.Ticket.Scope != nil && !ctx.Ticket.Scope[key] {
		s.writeError(w, r, caserr.Forbidden("key is outside this ticket's scope"))
		return
	}

	has, err := s.owned.HasOwnership(ctx.Realm, key)
	if err != nil {
		s.writeError(w, r, caserr.Internal("ownership lookup failed", err))
		return
	}
	if !has {
		s.writeError(w, r, caserr.NotFound("key not found in this realm"))
		return
	}

	blob, ok, err := s.blobs.Get(key)
	if err != nil {
		s.writeError(w, r, caserr.Internal("blob lookup failed", err))
		return
	}
	if !ok {
		s.writeError(w, r, caserr.NotFound("key not found"))
		return
	}

	// An inline file (§3) stores its logical content type in blob metadata,
	// since the content-type label itself is reserved for node-kind
	// classification (node.ContentTypeInlineFile) rather than the caller's
	// declared type.
	contentType := blob.ContentType
	if contentType == node.ContentTypeInlineFile {
		if logical, ok := blob.Metadata["casContentType"]; ok {
			contentType = logical
		}
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-CAS-Content-Type", contentType)
	w.Header().Set("X-CAS-Size", strconv.Itoa(len(blob.Bytes)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob.Bytes)
}
