package httpapi

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/brinevault/brine/pkg/caserr"
	"github.com/brinevault/brine/pkg/tokens"
)

type clientInitRequest struct {
	Pubkey     string `json:"pubkey"`
	ClientName string `json:"client_name"`
}

func (s *Server) handleClientInit(w http.ResponseWriter, r *http.Request) {
	var req clientInitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, caserr.InvalidRequest("malformed request body"))
		return
	}
	pub, err := hex.DecodeString(req.Pubkey)
	if err != nil {
		s.writeError(w, r, caserr.InvalidRequest("pubkey must be hex-encoded"))
		return
	}

	result, err := s.delegated.Init(pub, req.ClientName)
	if err != nil {
		s.writeError(w, r, caserr.Internal("failed to start delegated auth", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"auth_url":          result.AuthURL,
		"verification_code": result.VerificationCode,
		"expires_in":        result.ExpiresIn,
		"poll_interval":     result.PollInterval,
	})
}

func (s *Server) handleClientStatus(w http.ResponseWriter, r *http.Request) {
	pub, err := hex.DecodeString(r.URL.Query().Get("pubkey"))
	if err != nil {
		s.writeError(w, r, caserr.InvalidRequest("pubkey must be hex-encoded"))
		return
	}

	status := s.delegated.Status(pub)
	resp := map[string]any{"authorized": status.Authorized}
	if status.Authorized {
		resp["expires_at"] = status.ExpiresAt
	}
	writeJSON(w, http.StatusOK, resp)
}

type clientCompleteRequest struct {
	Pubkey           string `json:"pubkey"`
	VerificationCode string `json:"verification_code"`
}

func (s *Server) handleClientComplete(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, 1<<16)
	if err != nil {
		s.writeError(w, r, caserr.InvalidRequest("failed to read request body"))
		return
	}
	caller, err := s.resolveCaller(r, body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if caller.UserID == "" {
		s.writeError(w, r, caserr.Unauthorized("a logged-in user is required to complete delegated auth"))
		return
	}

	var req clientCompleteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, caserr.InvalidRequest("malformed request body"))
		return
	}
	pub, err := hex.DecodeString(req.Pubkey)
	if err != nil {
		s.writeError(w, r, caserr.InvalidRequest("pubkey must be hex-encoded"))
		return
	}

	if err := s.delegated.Complete(pub, req.VerificationCode, caller.UserID); err != nil {
		s.writeError(w, r, err)
		return
	}
	status := s.delegated.Status(pub)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "expires_at": status.ExpiresAt})
}

func (s *Server) handleClientList(w http.ResponseWriter, r *http.Request) {
	caller, err := s.resolveCaller(r, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if caller.UserID == "" {
		s.writeError(w, r, caserr.Unauthorized("a logged-in user is required"))
		return
	}

	clients := s.delegated.ListAuthorized(caller.UserID)
	out := make([]map[string]any, len(clients))
	for i, c := range clients {
		out[i] = map[string]any{
			"pubkey":      hex.EncodeToString(c.Pubkey),
			"client_name": c.ClientName,
			"created_at":  c.CreatedAt,
			"expires_at":  c.ExpiresAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": out})
}

func (s *Server) handleClientRevoke(w http.ResponseWriter, r *http.Request) {
	caller, err := s.resolveCaller(r, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if caller.UserID == "" {
		s.writeError(w, r, caserr.Unauthorized("a logged-in user is required"))
		return
	}

	pub, err := hex.DecodeString(r.PathValue("pubkey"))
	if err != nil {
		s.writeError(w, r, caserr.InvalidRequest("pubkey must be hex-encoded"))
		return
	}
	if !s.delegated.Revoke(pub, caller.UserID) {
		s.writeError(w, r, caserr.NotFound("no such authorized client for this user"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type ticketCreateRequest struct {
	Scope  []string `json:"scope,omitempty"`
	Commit *struct {
		Quota  int64    `json:"quota,omitempty"`
		Accept []string `json:"accept,omitempty"`
		Root   string   `json:"root,omitempty"`
	} `json:"commit,omitempty"`
	ExpiresIn int `json:"expiresIn,omitempty"`
}

func (s *Server) handleTicketCreate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, 1<<16)
	if err != nil {
		s.writeError(w, r, caserr.InvalidRequest("failed to read request body"))
		return
	}
	caller, err := s.resolveCaller(r, body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !caller.CanIssueTicket {
		s.writeError(w, r, caserr.Forbidden("caller is not authorized to issue tickets"))
		return
	}

	var req ticketCreateRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(w, r, caserr.InvalidRequest("malformed request body"))
			return
		}
	}

	ttl := s.cfg.TicketTTL
	var commit *tokens.CommitConfig
	if req.Commit != nil {
		commit = &tokens.CommitConfig{Quota: req.Commit.Quota, Accept: req.Commit.Accept, Root: req.Commit.Root}
		ttl = s.cfg.CommitTicketTTL
	}
	if req.ExpiresIn > 0 {
		ttl = time.Duration(req.ExpiresIn) * time.Second
	}

	tok, err := s.tokenSt.CreateTicket(caller.Realm, caller.TokenID, req.Scope, commit,
		tokens.TicketConfig{NodeLimit: s.cfg.NodeLimit, MaxNameBytes: s.cfg.MaxNameBytes}, ttl)
	if err != nil {
		s.writeError(w, r, caserr.Internal("failed to issue ticket", err))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":        tok.ID,
		"endpoint":  "/cas/" + tok.ID,
		"expiresAt": tok.ExpiresAt,
		"realm":     tok.Ticket.Realm,
		"scope":     req.Scope,
		"commit":    req.Commit,
		"config":    tok.Ticket.Config,
	})
}

func (s *Server) handleTicketDelete(w http.ResponseWriter, r *http.Request) {
	caller, err := s.resolveCaller(r, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	id := r.PathValue("id")
	tok, ok, err := s.tokenSt.GetToken(id)
	if err != nil {
		s.writeError(w, r, caserr.Internal("failed to look up ticket", err))
		return
	}
	if !ok || tok.Kind != tokens.KindTicket {
		s.writeError(w, r, caserr.NotFound("ticket not found"))
		return
	}
	if tok.Ticket.IssuerTokenID != caller.TokenID {
		s.writeError(w, r, caserr.Forbidden("only the issuing caller may delete this ticket"))
		return
	}
	if err := s.tokenSt.DeleteToken(id); err != nil {
		s.writeError(w, r, caserr.Internal("failed to delete ticket", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
