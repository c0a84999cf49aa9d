package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/brinevault/brine/pkg/caserr"
	"github.com/brinevault/brine/pkg/node"
)

func (s *Server) resolveWriteRealm(w http.ResponseWriter, r *http.Request, body []byte) (string, bool) {
	realmParam := r.PathValue("realm")
	ctx, err := s.resolveRealmScoped(r, body, realmParam)
	if err != nil {
		s.writeError(w, r, err)
		return "", false
	}
	if !ctx.CanWrite {
		s.writeError(w, r, caserr.Forbidden("caller does not hold write authorization"))
		return "", false
	}
	return ctx.Realm, true
}

func (s *Server) resolveReadRealm(w http.ResponseWriter, r *http.Request) (string, bool) {
	realmParam := r.PathValue("realm")
	ctx, err := s.resolveRealmScoped(r, nil, realmParam)
	if err != nil {
		s.writeError(w, r, err)
		return "", false
	}
	if !ctx.CanRead {
		s.writeError(w, r, caserr.Forbidden("caller does not hold read authorization"))
		return "", false
	}
	return ctx.Realm, true
}

func (s *Server) handleDepotList(w http.ResponseWriter, r *http.Request) {
	realm, ok := s.resolveReadRealm(w, r)
	if !ok {
		return
	}

	if _, err := s.depots.EnsureMainDepot(realm, node.EmptyCollectionKey()); err != nil {
		s.writeError(w, r, caserr.Internal("failed to bootstrap main depot", err))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	result, err := s.depots.List(realm, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		s.writeError(w, r, caserr.Internal("failed to list depots", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"depots": result.Depots, "nextCursor": result.NextCursor})
}

type depotCreateRequest struct {
	Name        string `json:"name"`
	Root        string `json:"root,omitempty"`
	Description string `json:"description,omitempty"`
}

func (s *Server) handleDepotCreate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, 1<<16)
	if err != nil {
		s.writeError(w, r, caserr.InvalidRequest("failed to read request body"))
		return
	}
	realm, ok := s.resolveWriteRealm(w, r, body)
	if !ok {
		return
	}

	var req depotCreateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, caserr.InvalidRequest("malformed request body"))
		return
	}
	if req.Root == "" {
		req.Root = node.EmptyCollectionKey()
	}

	d, err := s.depots.Create(realm, req.Name, req.Root, req.Description)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleDepotGet(w http.ResponseWriter, r *http.Request) {
	realm, ok := s.resolveReadRealm(w, r)
	if !ok {
		return
	}
	d, found, err := s.depots.Get(realm, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, caserr.Internal("failed to look up depot", err))
		return
	}
	if !found {
		s.writeError(w, r, caserr.NotFound("depot not found"))
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type depotUpdateRootRequest struct {
	Root    string `json:"root"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleDepotUpdateRoot(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, 1<<16)
	if err != nil {
		s.writeError(w, r, caserr.InvalidRequest("failed to read request body"))
		return
	}
	realm, ok := s.resolveWriteRealm(w, r, body)
	if !ok {
		return
	}

	var req depotUpdateRootRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, caserr.InvalidRequest("malformed request body"))
		return
	}

	d, err := s.depots.UpdateRoot(realm, r.PathValue("id"), req.Root, req.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDepotDelete(w http.ResponseWriter, r *http.Request) {
	realm, ok := s.resolveWriteRealm(w, r, nil)
	if !ok {
		return
	}
	if err := s.depots.Delete(realm, r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDepotHistory(w http.ResponseWriter, r *http.Request) {
	realm, ok := s.resolveReadRealm(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	history, err := s.depots.ListHistory(realm, r.PathValue("id"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

type depotRollbackRequest struct {
	Version int `json:"version"`
}

func (s *Server) handleDepotRollback(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, 1<<16)
	if err != nil {
		s.writeError(w, r, caserr.InvalidRequest("failed to read request body"))
		return
	}
	realm, ok := s.resolveWriteRealm(w, r, body)
	if !ok {
		return
	}

	var req depotRollbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, caserr.InvalidRequest("malformed request body"))
		return
	}

	d, err := s.depots.Rollback(realm, r.PathValue("id"), req.Version)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleCommitList(w http.ResponseWriter, r *http.Request) {
	realm, ok := s.resolveReadRealm(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	commits, err := s.depots.ListCommits(realm, limit)
	if err != nil {
		s.writeError(w, r, caserr.Internal("failed to list commits", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commits": commits})
}

func (s *Server) handleCommitGet(w http.ResponseWriter, r *http.Request) {
	realm, ok := s.resolveReadRealm(w, r)
	if !ok {
		return
	}
	rec, found, err := s.depots.GetCommit(realm, r.PathValue("root"))
	if err != nil {
		s.writeError(w, r, caserr.Internal("failed to look up commit", err))
		return
	}
	if !found {
		s.writeError(w, r, caserr.NotFound("commit record not found"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type commitUpdateTitleRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleCommitUpdateTitle(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, 1<<16)
	if err != nil {
		s.writeError(w, r, caserr.InvalidRequest("failed to read request body"))
		return
	}
	realm, ok := s.resolveWriteRealm(w, r, body)
	if !ok {
		return
	}

	var req commitUpdateTitleRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, caserr.InvalidRequest("malformed request body"))
		return
	}
	if err := s.depots.UpdateCommitTitle(realm, r.PathValue("root"), req.Title); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleCommitDelete(w http.ResponseWriter, r *http.Request) {
	realm, ok := s.resolveWriteRealm(w, r, nil)
	if !ok {
		return
	}
	if err := s.depots.DeleteCommit(realm, r.PathValue("root")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type commitCreateRequest struct {
	Tree  string `json:"tree"`
	Root  string `json:"root"`
	Title string `json:"title,omitempty"`
}

func (s *Server) handleCommitCreate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, 1<<16)
	if err != nil {
		s.writeError(w, r, caserr.InvalidRequest("failed to read request body"))
		return
	}
	realmParam := r.PathValue("realm")
	ctx, err := s.resolveRealmScoped(r, body, realmParam)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ctx.CanWrite {
		s.writeError(w, r, caserr.Forbidden("caller does not hold write authorization"))
		return
	}

	var req commitCreateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, caserr.InvalidRequest("malformed request body"))
		return
	}
	root := req.Root
	if root == "" {
		root = req.Tree
	}
	if root == "" {
		s.writeError(w, r, caserr.InvalidRequest("root or tree must be supplied"))
		return
	}

	rec, err := s.depots.CreateCommit(ctx.Realm, root, ctx.TokenID, req.Title)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}
