package httpapi

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brinevault/brine/internal/ratelimit"
	"github.com/brinevault/brine/pkg/auth"
	"github.com/brinevault/brine/pkg/blobstore"
	"github.com/brinevault/brine/pkg/cas"
	"github.com/brinevault/brine/pkg/config"
	"github.com/brinevault/brine/pkg/depot"
	"github.com/brinevault/brine/pkg/digest"
	"github.com/brinevault/brine/pkg/logging"
	"github.com/brinevault/brine/pkg/node"
	"github.com/brinevault/brine/pkg/ownership"
	"github.com/brinevault/brine/pkg/tokens"
)

// testHarness bundles a running httptest.Server with the in-memory stores
// behind it, so tests can both make HTTP calls and reach in directly (e.g. to
// mint a bearer token without going through the wire).
type testHarness struct {
	srv       *Server
	http      *httptest.Server
	tokenSt   *tokens.Memory
	blobs     *blobstore.Memory
	owned     *ownership.Memory
	depots    *depot.Registry
	delegated *auth.Delegated
	limiter   *ratelimit.Limiter
}

func newHarness(t *testing.T, cfg config.Config) *testHarness {
	t.Helper()

	tokenSt := tokens.NewMemory()
	blobs := blobstore.NewMemory()
	owned := ownership.NewMemory()
	depots := depot.NewRegistry()
	delegated := auth.NewDelegated("https://auth.example/complete", 5)
	authn := auth.NewAuthenticator(tokenSt, delegated)
	admitter := cas.NewAdmitter(blobs, owned, cfg.NodeLimit, cfg.MaxNameBytes)
	limiter := ratelimit.New(ratelimit.Config{Capacity: cfg.RateLimitCapacity, Refill: cfg.RateLimitRefill})
	logger := logging.New(logging.Options{})

	srv := NewServer(Deps{
		Authn:     authn,
		Delegated: delegated,
		Admitter:  admitter,
		Blobs:     blobs,
		Owned:     owned,
		Depots:    depots,
		Tokens:    tokenSt,
		Limiter:   limiter,
		Logger:    logger,
		Config:    cfg,
	})

	h := &testHarness{
		srv:       srv,
		http:      httptest.NewServer(srv.Routes()),
		tokenSt:   tokenSt,
		blobs:     blobs,
		owned:     owned,
		depots:    depots,
		delegated: delegated,
		limiter:   limiter,
	}
	t.Cleanup(h.http.Close)
	return h
}

func defaultTestConfig() config.Config {
	return config.Config{
		NodeLimit:         config.DefaultNodeLimit,
		MaxNameBytes:      config.DefaultMaxNameBytes,
		TicketTTL:         config.DefaultTicketTTL,
		CommitTicketTTL:   config.DefaultCommitTicketTTL,
		TreeWalkBudget:    config.DefaultTreeWalkBudget,
		RateLimitCapacity: config.DefaultRateLimitCapacity,
		RateLimitRefill:   config.DefaultRateLimitRefill,
	}
}

type apiResponse struct {
	status  int
	body    []byte
	headers http.Header
}

func (r apiResponse) decode(t *testing.T, v any) {
	t.Helper()
	if err := json.Unmarshal(r.body, v); err != nil {
		t.Fatalf("failed to decode response body %q: %v", r.body, err)
	}
}

func (h *testHarness) do(t *testing.T, method, path string, body []byte, headers map[string]string) apiResponse {
	t.Helper()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, h.http.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return apiResponse{status: resp.StatusCode, body: out, headers: resp.Header}
}

func bearerHeader(tokenID string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tokenID}
}

// mintUser creates a user token and returns it alongside the realm it grants.
func (h *testHarness) mintUser(t *testing.T, userID string) tokens.Token {
	t.Helper()
	tok, err := h.tokenSt.CreateUserToken(userID, "refresh-"+userID, time.Hour)
	if err != nil {
		t.Fatalf("failed to mint user token: %v", err)
	}
	return tok
}

// uploadChunk PUTs raw bytes as a chunk under realm using the given bearer
// token, returning the content-addressed key the server computed.
func (h *testHarness) uploadChunk(t *testing.T, realm, bearerToken string, data []byte) string {
	t.Helper()
	key := digest.ComputeKey(data)
	resp := h.do(t, http.MethodPut, fmt.Sprintf("/cas/%s/chunk/%s", realm, key), data, bearerHeader(bearerToken))
	if resp.status != http.StatusOK {
		t.Fatalf("chunk upload failed: status=%d body=%s", resp.status, resp.body)
	}
	return key
}

// TestChunkUploadCommitAndRawRoundTrip exercises §8 S1 exactly: a small file
// admits via the §3 inline-file optimization, so its committed root key IS
// the chunk key, and reading it back returns the logical content bytes and
// content type — not the canonical file-node JSON.
func TestChunkUploadCommitAndRawRoundTrip(t *testing.T) {
	h := newHarness(t, defaultTestConfig())
	user := h.mintUser(t, "alice")
	realm := "usr_alice"

	payload := []byte{0x48, 0x65, 0x6C, 0x6C, 0x6F} // "Hello"
	chunkKey := h.uploadChunk(t, realm, user.ID, payload)
	fileKey := chunkKey

	commitBody, _ := json.Marshal(map[string]any{
		"root": fileKey,
		"files": map[string]any{
			fileKey: map[string]any{
				"chunks":      []string{chunkKey},
				"contentType": "text/plain",
				"size":        len(payload),
			},
		},
	})
	resp := h.do(t, http.MethodPost, "/cas/"+realm+"/commit", commitBody, bearerHeader(user.ID))
	if resp.status != http.StatusOK {
		t.Fatalf("commit failed: status=%d body=%s", resp.status, resp.body)
	}
	var commitOut map[string]any
	resp.decode(t, &commitOut)
	if commitOut["success"] != true {
		t.Fatalf("expected commit success, got %v", commitOut)
	}

	readResp := h.do(t, http.MethodGet, "/cas/"+realm+"/raw/"+fileKey, nil, bearerHeader(user.ID))
	if readResp.status != http.StatusOK {
		t.Fatalf("raw read of file key failed: status=%d body=%s", readResp.status, readResp.body)
	}
	if !bytes.Equal(readResp.body, payload) {
		t.Fatalf("expected inline-file read to return %q, got %q", payload, readResp.body)
	}
	if ct := readResp.headers.Get("X-CAS-Content-Type"); ct != "text/plain" {
		t.Fatalf("expected X-CAS-Content-Type: text/plain, got %q", ct)
	}
	if sz := readResp.headers.Get("X-CAS-Size"); sz != "5" {
		t.Fatalf("expected X-CAS-Size: 5, got %q", sz)
	}
}

func TestCommitMissingNodesRetry(t *testing.T) {
	h := newHarness(t, defaultTestConfig())
	user := h.mintUser(t, "bob")
	realm := "usr_bob"

	payload := []byte("a chunk nobody has uploaded yet")
	chunkKey := digest.ComputeKey(payload)
	file := &node.File{Chunks: []string{chunkKey}, ContentType: "text/plain", Size: int64(len(payload))}
	fileKey := file.Key()

	commitBody, _ := json.Marshal(map[string]any{
		"root": fileKey,
		"files": map[string]any{
			fileKey: map[string]any{
				"chunks":      []string{chunkKey},
				"contentType": "text/plain",
				"size":        len(payload),
			},
		},
	})

	first := h.do(t, http.MethodPost, "/cas/"+realm+"/commit", commitBody, bearerHeader(user.ID))
	if first.status != http.StatusConflict {
		t.Fatalf("expected missing_nodes conflict on first attempt, got status=%d body=%s", first.status, first.body)
	}
	var missingOut map[string]any
	first.decode(t, &missingOut)
	if missingOut["error"] != "missing_nodes" {
		t.Fatalf("expected missing_nodes error, got %v", missingOut)
	}

	h.uploadChunk(t, realm, user.ID, payload)

	second := h.do(t, http.MethodPost, "/cas/"+realm+"/commit", commitBody, bearerHeader(user.ID))
	if second.status != http.StatusOK {
		t.Fatalf("expected commit to succeed after uploading the missing chunk, got status=%d body=%s", second.status, second.body)
	}
}

func TestTicketScopeEnforcement(t *testing.T) {
	h := newHarness(t, defaultTestConfig())
	user := h.mintUser(t, "carol")
	realm := "usr_carol"

	payloadA := []byte("node A contents")
	keyA := h.uploadChunk(t, realm, user.ID, payloadA)
	payloadB := []byte("node B contents")
	keyB := h.uploadChunk(t, realm, user.ID, payloadB)

	// An upload only stores bytes; the realm owns a key once a commit admits
	// it, so each payload is committed as an inline file before reading.
	for key, payload := range map[string][]byte{keyA: payloadA, keyB: payloadB} {
		commitBody, _ := json.Marshal(map[string]any{
			"root":  key,
			"files": map[string]any{key: map[string]any{"chunks": []string{key}, "contentType": "text/plain", "size": len(payload)}},
		})
		if resp := h.do(t, http.MethodPost, "/cas/"+realm+"/commit", commitBody, bearerHeader(user.ID)); resp.status != http.StatusOK {
			t.Fatalf("commit of %s failed: status=%d body=%s", key, resp.status, resp.body)
		}
	}

	ticketBody, _ := json.Marshal(map[string]any{"scope": []string{keyA}})
	ticketResp := h.do(t, http.MethodPost, "/auth/ticket", ticketBody, bearerHeader(user.ID))
	if ticketResp.status != http.StatusCreated {
		t.Fatalf("ticket creation failed: status=%d body=%s", ticketResp.status, ticketResp.body)
	}
	var ticketOut map[string]any
	ticketResp.decode(t, &ticketOut)
	ticketID, _ := ticketOut["id"].(string)
	if ticketID == "" {
		t.Fatalf("expected a ticket id, got %v", ticketOut)
	}

	inScope := h.do(t, http.MethodGet, "/cas/"+ticketID+"/raw/"+keyA, nil, nil)
	if inScope.status != http.StatusOK {
		t.Fatalf("expected in-scope key to be readable via the ticket alone, got status=%d body=%s", inScope.status, inScope.body)
	}

	outOfScope := h.do(t, http.MethodGet, "/cas/"+ticketID+"/raw/"+keyB, nil, nil)
	if outOfScope.status != http.StatusForbidden {
		t.Fatalf("expected out-of-scope key to be rejected, got status=%d body=%s", outOfScope.status, outOfScope.body)
	}
}

func TestTicketCommitRootPinRejectsOtherRoots(t *testing.T) {
	h := newHarness(t, defaultTestConfig())
	user := h.mintUser(t, "dave")
	realm := "usr_dave"

	pinnedRoot := node.EmptyCollectionKey()
	ticketBody, _ := json.Marshal(map[string]any{
		"commit": map[string]any{"root": pinnedRoot},
	})
	ticketResp := h.do(t, http.MethodPost, "/auth/ticket", ticketBody, bearerHeader(user.ID))
	if ticketResp.status != http.StatusCreated {
		t.Fatalf("ticket creation failed: status=%d body=%s", ticketResp.status, ticketResp.body)
	}
	var ticketOut map[string]any
	ticketResp.decode(t, &ticketOut)
	ticketID := ticketOut["id"].(string)

	payload := []byte("an unrelated file")
	chunkKey := h.uploadChunk(t, realm, user.ID, payload)
	file := &node.File{Chunks: []string{chunkKey}, ContentType: "text/plain", Size: int64(len(payload))}
	fileKey := file.Key()

	commitBody, _ := json.Marshal(map[string]any{
		"root": fileKey,
		"files": map[string]any{
			fileKey: map[string]any{
				"chunks":      []string{chunkKey},
				"contentType": "text/plain",
				"size":        len(payload),
			},
		},
	})
	resp := h.do(t, http.MethodPost, "/cas/"+ticketID+"/commit", commitBody, nil)
	if resp.status != http.StatusForbidden {
		t.Fatalf("expected commit root pin to reject a mismatched root, got status=%d body=%s", resp.status, resp.body)
	}

	pinnedCommitBody, _ := json.Marshal(map[string]any{
		"root": pinnedRoot,
		"collections": map[string]any{
			pinnedRoot: map[string]any{"children": map[string]string{}, "size": 0},
		},
	})
	pinnedResp := h.do(t, http.MethodPost, "/cas/"+ticketID+"/commit", pinnedCommitBody, nil)
	if pinnedResp.status != http.StatusOK {
		t.Fatalf("expected commit of the pinned root to succeed, got status=%d body=%s", pinnedResp.status, pinnedResp.body)
	}
}

func TestDelegatedAuthSignedRequestResolvesToUserRealm(t *testing.T) {
	h := newHarness(t, defaultTestConfig())
	user := h.mintUser(t, "erin")

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("failed to generate client keypair: %v", err)
	}
	pubHex := hex.EncodeToString(pub)

	initBody, _ := json.Marshal(map[string]any{"pubkey": pubHex, "client_name": "cli-test"})
	initResp := h.do(t, http.MethodPost, "/auth/clients/init", initBody, nil)
	if initResp.status != http.StatusOK {
		t.Fatalf("client init failed: status=%d body=%s", initResp.status, initResp.body)
	}
	var initOut map[string]any
	initResp.decode(t, &initOut)
	code, _ := initOut["verification_code"].(string)
	if code == "" {
		t.Fatalf("expected a verification code, got %v", initOut)
	}

	completeBody, _ := json.Marshal(map[string]any{"pubkey": pubHex, "verification_code": code})
	completeResp := h.do(t, http.MethodPost, "/auth/clients/complete", completeBody, bearerHeader(user.ID))
	if completeResp.status != http.StatusOK {
		t.Fatalf("client complete failed: status=%d body=%s", completeResp.status, completeResp.body)
	}

	statusResp := h.do(t, http.MethodGet, "/auth/clients/status?pubkey="+pubHex, nil, nil)
	var statusOut map[string]any
	statusResp.decode(t, &statusOut)
	if statusOut["authorized"] != true {
		t.Fatalf("expected the client to be authorized after completion, got %v", statusOut)
	}

	method := http.MethodGet
	pathAndQuery := "/realm/@me/depots"
	var emptyBody []byte
	bodyHash := sha256.Sum256(emptyBody)
	ts := time.Now().Unix()
	payload := fmt.Sprintf("%d.%s.%s.%s", ts, method, pathAndQuery, hex.EncodeToString(bodyHash[:]))
	sig := ed25519.Sign(priv, []byte(payload))

	signedResp := h.do(t, method, pathAndQuery, nil, map[string]string{
		"X-Cas-Pubkey":    pubHex,
		"X-Cas-Timestamp": fmt.Sprintf("%d", ts),
		"X-Cas-Signature": hex.EncodeToString(sig),
	})
	if signedResp.status != http.StatusOK {
		t.Fatalf("expected a signed request to resolve to the delegating user's realm, got status=%d body=%s", signedResp.status, signedResp.body)
	}
	var depotsOut map[string]any
	signedResp.decode(t, &depotsOut)
	if _, ok := depotsOut["depots"]; !ok {
		t.Fatalf("expected a depots listing, got %v", depotsOut)
	}
}

func TestRateLimiterTripsThenRecoversAfterReset(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.RateLimitCapacity = 1
	cfg.RateLimitRefill = time.Hour
	h := newHarness(t, cfg)
	user := h.mintUser(t, "frank")
	realm := "usr_frank"

	first := h.do(t, http.MethodPut, "/cas/"+realm+"/chunk/"+digest.ComputeKey([]byte("one")), []byte("one"), bearerHeader(user.ID))
	if first.status != http.StatusOK {
		t.Fatalf("expected the first upload under the limiter's capacity to succeed, got status=%d body=%s", first.status, first.body)
	}

	second := h.do(t, http.MethodPut, "/cas/"+realm+"/chunk/"+digest.ComputeKey([]byte("two")), []byte("two"), bearerHeader(user.ID))
	if second.status != http.StatusTooManyRequests {
		t.Fatalf("expected the second upload to be rate-limited, got status=%d body=%s", second.status, second.body)
	}

	h.limiter.Reset(user.ID)

	third := h.do(t, http.MethodPut, "/cas/"+realm+"/chunk/"+digest.ComputeKey([]byte("three")), []byte("three"), bearerHeader(user.ID))
	if third.status != http.StatusOK {
		t.Fatalf("expected the upload to succeed again after the limiter reset, got status=%d body=%s", third.status, third.body)
	}
}
