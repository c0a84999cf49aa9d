// Package tokens implements the capability model's token store (§4.H): user
// tokens, tickets, and agent tokens, each carrying a TTL and lazily deleted on
// lookup past expiry. Grounded on the teacher's tagged-union record shape
// (pkg/content/types.go's CID/Chunk/Manifest structs, each carrying a Type
// discriminator alongside kind-specific fields) and on pkg/honeytag/cache.go's
// TTL-expiry-checked lookup convention.
package tokens

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Kind discriminates the three token shapes a Token may carry.
type Kind string

const (
	KindUser   Kind = "user"
	KindTicket Kind = "ticket"
	KindAgent  Kind = "agent"
)

// UserData is the kind-specific payload of a user token.
type UserData struct {
	UserID       string
	RefreshToken string
	CreatedAt    time.Time
}

// CommitConfig is a ticket's write authorization. A nil *CommitConfig on a
// TicketData means the ticket is read-only; a non-nil, zero-valued
// CommitConfig means writable and unlimited (§3 Token ticket semantics).
type CommitConfig struct {
	Quota  int64    // 0 means no quota
	Accept []string // empty means no content-type allow-list
	Root   string   // empty means no commit.root pin
}

// TicketConfig carries the client-trusted chunking parameters a ticket was
// issued with; immutable once issued (§3 invariants).
type TicketConfig struct {
	NodeLimit    int64 `json:"nodeLimit"`
	MaxNameBytes int   `json:"maxNameBytes"`
}

// TicketData is the kind-specific payload of a ticket token.
type TicketData struct {
	Realm         string
	IssuerTokenID string
	Scope         map[string]bool // nil means unrestricted
	Commit        *CommitConfig
	Config        TicketConfig
}

// AgentData is the kind-specific payload of an agent token.
type AgentData struct {
	UserID      string
	Name        string
	Description string
	CreatedAt   time.Time
}

// Token is the tagged union of the three token kinds. Only the field named by
// Kind is populated; this mirrors the teacher's per-kind payload structs
// rather than a single struct with many optional shared fields.
type Token struct {
	ID        string
	Kind      Kind
	ExpiresAt time.Time

	User   *UserData
	Ticket *TicketData
	Agent  *AgentData
}

// Store is the capability every CAS backend must provide for the token model.
type Store interface {
	CreateUserToken(userID, refreshToken string, ttl time.Duration) (Token, error)
	CreateTicket(realm, issuerTokenID string, scope []string, commit *CommitConfig, config TicketConfig, ttl time.Duration) (Token, error)
	CreateAgentToken(userID, name, description string, ttl time.Duration) (Token, error)
	// GetToken returns ok=false for a missing or expired token, deleting an
	// expired entry lazily as a side effect.
	GetToken(id string) (Token, bool, error)
	DeleteToken(id string) error
	VerifyTokenOwnership(tokenID, userID string) (bool, error)
	ListAgentTokensByUser(userID string) ([]Token, error)
}

// Memory is an in-process, mutex-guarded token store.
type Memory struct {
	mu     sync.Mutex
	tokens map[string]Token
}

// NewMemory creates an empty in-memory token store.
func NewMemory() *Memory {
	return &Memory{tokens: make(map[string]Token)}
}

func newID(prefix string) string {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		panic(fmt.Sprintf("tokens: failed to generate random id: %v", err))
	}
	return prefix + hex.EncodeToString(raw[:])
}

func (m *Memory) CreateUserToken(userID, refreshToken string, ttl time.Duration) (Token, error) {
	now := time.Now()
	tok := Token{
		ID:        newID("usr_"),
		Kind:      KindUser,
		ExpiresAt: now.Add(ttl),
		User: &UserData{
			UserID:       userID,
			RefreshToken: refreshToken,
			CreatedAt:    now,
		},
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[tok.ID] = tok
	return tok, nil
}

func (m *Memory) CreateTicket(realm, issuerTokenID string, scope []string, commit *CommitConfig, config TicketConfig, ttl time.Duration) (Token, error) {
	var scopeSet map[string]bool
	if scope != nil {
		scopeSet = make(map[string]bool, len(scope))
		for _, key := range scope {
			scopeSet[key] = true
		}
	}
	tok := Token{
		ID:        newID("tkt_"),
		Kind:      KindTicket,
		ExpiresAt: time.Now().Add(ttl),
		Ticket: &TicketData{
			Realm:         realm,
			IssuerTokenID: issuerTokenID,
			Scope:         scopeSet,
			Commit:        commit,
			Config:        config,
		},
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[tok.ID] = tok
	return tok, nil
}

func (m *Memory) CreateAgentToken(userID, name, description string, ttl time.Duration) (Token, error) {
	tok := Token{
		ID:        newID("agt_"),
		Kind:      KindAgent,
		ExpiresAt: time.Now().Add(ttl),
		Agent: &AgentData{
			UserID:      userID,
			Name:        name,
			Description: description,
			CreatedAt:   time.Now(),
		},
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[tok.ID] = tok
	return tok, nil
}

func (m *Memory) GetToken(id string) (Token, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tok, ok := m.tokens[id]
	if !ok {
		return Token{}, false, nil
	}
	if time.Now().After(tok.ExpiresAt) {
		delete(m.tokens, id)
		return Token{}, false, nil
	}
	return tok, true, nil
}

func (m *Memory) DeleteToken(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, id)
	return nil
}

func (m *Memory) VerifyTokenOwnership(tokenID, userID string) (bool, error) {
	tok, ok, err := m.GetToken(tokenID)
	if err != nil || !ok {
		return false, err
	}
	switch tok.Kind {
	case KindUser:
		return tok.User.UserID == userID, nil
	case KindAgent:
		return tok.Agent.UserID == userID, nil
	default:
		return false, nil
	}
}

func (m *Memory) ListAgentTokensByUser(userID string) ([]Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var out []Token
	for id, tok := range m.tokens {
		if tok.Kind != KindAgent || tok.Agent.UserID != userID {
			continue
		}
		if now.After(tok.ExpiresAt) {
			delete(m.tokens, id)
			continue
		}
		out = append(out, tok)
	}
	return out, nil
}

// Sweep removes every expired token and reports how many were removed. Called
// by the background reaper (component O); correctness never depends on it —
// every lookup path above re-checks ExpiresAt itself.
func (m *Memory) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, tok := range m.tokens {
		if now.After(tok.ExpiresAt) {
			delete(m.tokens, id)
			removed++
		}
	}
	return removed
}
