// Package httpapi is the thin net/http adapter of §4.L: it owns no business
// logic, only credential resolution, route dispatch to the core packages,
// and JSON encoding of results and errors. Grounded on the teacher's
// pkg/control/api.go request-dispatch-then-encode convention, adapted from a
// single-method JSON-RPC-over-TCP dispatch table to a REST route table over
// net/http's pattern-matching ServeMux (method + path pattern, stdlib since
// Go 1.22 — no router library needed here).
package httpapi

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/brinevault/brine/pkg/auth"
	"github.com/brinevault/brine/pkg/cas"
	"github.com/brinevault/brine/pkg/caserr"
	"github.com/brinevault/brine/pkg/config"
	"github.com/brinevault/brine/pkg/depot"
	"github.com/brinevault/brine/pkg/logging"
	"github.com/brinevault/brine/internal/ratelimit"
	"github.com/brinevault/brine/pkg/blobstore"
	"github.com/brinevault/brine/pkg/ownership"
	"github.com/brinevault/brine/pkg/tokens"
)

// Server wires every core package into a runnable HTTP surface (§6).
type Server struct {
	authn     *auth.Authenticator
	delegated *auth.Delegated
	admitter  *cas.Admitter
	blobs     blobstore.Store
	owned     ownership.Index
	depots    *depot.Registry
	tokenSt   tokens.Store
	limiter   *ratelimit.Limiter
	logger    *slog.Logger
	cfg       config.Config
}

// Deps bundles every collaborator Server needs, matching the shape
// cmd/casd's bootstrap constructs.
type Deps struct {
	Authn     *auth.Authenticator
	Delegated *auth.Delegated
	Admitter  *cas.Admitter
	Blobs     blobstore.Store
	Owned     ownership.Index
	Depots    *depot.Registry
	Tokens    tokens.Store
	Limiter   *ratelimit.Limiter
	Logger    *slog.Logger
	Config    config.Config
}

// NewServer builds a Server from its dependencies.
func NewServer(d Deps) *Server {
	return &Server{
		authn:     d.Authn,
		delegated: d.Delegated,
		admitter:  d.Admitter,
		blobs:     d.Blobs,
		owned:     d.Owned,
		depots:    d.Depots,
		tokenSt:   d.Tokens,
		limiter:   d.Limiter,
		logger:    d.Logger,
		cfg:       d.Config,
	}
}

// Routes builds the route table of §6, a single http.ServeMux using Go
// 1.22's method+pattern matching directly (the teacher's own control API
// dispatches by method name in a switch; this is that same shape expressed
// through the stdlib mux's pattern syntax instead of a hand-rolled switch,
// since net/http grew native support for it).
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/clients/init", s.handleClientInit)
	mux.HandleFunc("GET /auth/clients/status", s.handleClientStatus)
	mux.HandleFunc("POST /auth/clients/complete", s.handleClientComplete)
	mux.HandleFunc("GET /auth/clients", s.handleClientList)
	mux.HandleFunc("DELETE /auth/clients/{pubkey}", s.handleClientRevoke)
	mux.HandleFunc("POST /auth/ticket", s.handleTicketCreate)
	mux.HandleFunc("DELETE /auth/ticket/{id}", s.handleTicketDelete)

	mux.HandleFunc("PUT /cas/{realm}/chunk/{key}", s.handleChunkUpload)
	mux.HandleFunc("POST /cas/{realm}/commit", s.handleCommit)
	mux.HandleFunc("GET /cas/{realm}/tree/{root}", s.handleTree)
	mux.HandleFunc("GET /cas/{realm}/raw/{key}", s.handleRaw)

	mux.HandleFunc("GET /realm/{realm}/depots", s.handleDepotList)
	mux.HandleFunc("POST /realm/{realm}/depots", s.handleDepotCreate)
	mux.HandleFunc("GET /realm/{realm}/depots/{id}", s.handleDepotGet)
	mux.HandleFunc("PUT /realm/{realm}/depots/{id}", s.handleDepotUpdateRoot)
	mux.HandleFunc("DELETE /realm/{realm}/depots/{id}", s.handleDepotDelete)
	mux.HandleFunc("GET /realm/{realm}/depots/{id}/history", s.handleDepotHistory)
	mux.HandleFunc("POST /realm/{realm}/depots/{id}/rollback", s.handleDepotRollback)

	mux.HandleFunc("GET /realm/{realm}/commits", s.handleCommitList)
	mux.HandleFunc("GET /realm/{realm}/commits/{root}", s.handleCommitGet)
	mux.HandleFunc("PATCH /realm/{realm}/commits/{root}", s.handleCommitUpdateTitle)
	mux.HandleFunc("DELETE /realm/{realm}/commits/{root}", s.handleCommitDelete)
	mux.HandleFunc("POST /realm/{realm}/commit", s.handleCommitCreate)

	return mux
}

// credentialsFromRequest extracts whichever of the three credential shapes
// (§4.J "Inputs") the request carries. body is the already-drained request
// body, reused here only to compute the signed-request hash.
func credentialsFromRequest(r *http.Request, body []byte) (auth.Credentials, bool) {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return auth.Credentials{BearerToken: strings.TrimPrefix(h, "Bearer ")}, true
	}

	if pubHex := r.Header.Get("X-Cas-Pubkey"); pubHex != "" {
		pub, pubErr := hex.DecodeString(pubHex)
		sig, sigErr := hex.DecodeString(r.Header.Get("X-Cas-Signature"))
		ts, tsErr := strconv.ParseInt(r.Header.Get("X-Cas-Timestamp"), 10, 64)
		if pubErr == nil && sigErr == nil && tsErr == nil {
			return auth.Credentials{
				SignedPubkey:    ed25519.PublicKey(pub),
				SignedTimestamp: ts,
				SignedSignature: sig,
				Method:          r.Method,
				PathAndQuery:    r.URL.RequestURI(),
				Body:            body,
			}, true
		}
	}

	if ticket := r.URL.Query().Get("ticket"); ticket != "" {
		return auth.Credentials{TicketID: ticket}, true
	}

	return auth.Credentials{}, false
}

// resolveCaller resolves whatever credentials the request carries, without
// reference to any particular realm.
func (s *Server) resolveCaller(r *http.Request, body []byte) (auth.Context, error) {
	creds, ok := credentialsFromRequest(r, body)
	if !ok {
		return auth.Context{}, caserr.Unauthorized("no credentials supplied")
	}
	return s.authn.Resolve(creds)
}

// resolveRealmScoped resolves the authorization context to use for a request
// targeting realmParam (§4.J "Realm aliasing"). A path-embedded ticket
// (`tkt_<id>`) authenticates the request on its own, independent of any
// Authorization header — mirroring S4/S7 of the testable-properties section,
// where a ticket holder calls `/cas/tkt_T/raw/K1` with no bearer credential
// at all.
func (s *Server) resolveRealmScoped(r *http.Request, body []byte, realmParam string) (auth.Context, error) {
	if strings.HasPrefix(realmParam, "tkt_") {
		return s.authn.ResolveRealm(auth.Context{}, realmParam)
	}
	caller, err := s.resolveCaller(r, body)
	if err != nil {
		return auth.Context{}, err
	}
	return s.authn.ResolveRealm(caller, realmParam)
}

// writeJSON encodes v as the response body at the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err per §7's wire taxonomy, logging it at a level
// derived from its Kind (§7 "Logging").
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logging.LogError(r.Context(), s.logger, "request failed", err)

	casErr, ok := err.(*caserr.Error)
	if !ok {
		casErr = caserr.Internal("unexpected error", err)
	}
	writeJSON(w, casErr.HTTPStatus(), map[string]string{
		"error":   string(casErr.Kind),
		"message": casErr.Message,
	})
}

// writeRateLimited renders the adapter-level 429 of §8 S8 — a gate that
// trips before the request ever reaches a core package, so it is not part of
// the stable caserr taxonomy of §7.
func writeRateLimited(w http.ResponseWriter) {
	writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate_limited"})
}

func readBody(r *http.Request, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = 64 << 20
	}
	return io.ReadAll(io.LimitReader(r.Body, limit+1))
}
