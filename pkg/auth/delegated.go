package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/brinevault/brine/pkg/caserr"
)

// pendingAuthTTL and authorizedPubkeyTTL are the handshake's two fixed
// lifetimes (§4.K, §5 "Timeouts").
const (
	pendingAuthTTL      = 10 * time.Minute
	authorizedPubkeyTTL = 30 * 24 * time.Hour
)

// PendingAuth is a client's in-flight delegated-auth challenge, awaiting a
// logged-in user to complete it.
type PendingAuth struct {
	Pubkey           ed25519.PublicKey
	ClientName       string
	VerificationCode string
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// AuthorizedPubkey binds a client public key to an end-user's identity once
// the handshake completes.
type AuthorizedPubkey struct {
	Pubkey     ed25519.PublicKey
	UserID     string
	ClientName string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// InitResult is returned to the client that starts the handshake.
type InitResult struct {
	AuthURL          string
	VerificationCode string
	ExpiresIn        int
	PollInterval     int
}

// StatusResult answers whether a pubkey is currently authorized.
type StatusResult struct {
	Authorized bool
	ExpiresAt  time.Time
}

// Delegated implements the three handshake operations of §4.K: init, status,
// complete. Grounded on pkg/honeytag/cache.go's TTL-checked record-store
// pattern, here holding two related stores instead of one.
type Delegated struct {
	mu       sync.Mutex
	pending  map[string]PendingAuth      // keyed by pubkey (base64-free raw bytes as string)
	authzed  map[string]AuthorizedPubkey // keyed by pubkey
	authURL  string
	pollSecs int
}

// NewDelegated creates an empty delegated-auth handshake store. authURL is
// the base URL a client should direct the end user to for completion;
// pollInterval is advisory, returned verbatim in InitResult.
func NewDelegated(authURL string, pollInterval int) *Delegated {
	return &Delegated{
		pending:  make(map[string]PendingAuth),
		authzed:  make(map[string]AuthorizedPubkey),
		authURL:  authURL,
		pollSecs: pollInterval,
	}
}

func pubkeyKey(pubkey ed25519.PublicKey) string {
	return string(pubkey)
}

// Init stores a new pending challenge for pubkey (§4.K "POST init").
func (d *Delegated) Init(pubkey ed25519.PublicKey, clientName string) (InitResult, error) {
	code, err := randomVerificationCode()
	if err != nil {
		return InitResult{}, err
	}

	now := time.Now()
	entry := PendingAuth{
		Pubkey:           pubkey,
		ClientName:       clientName,
		VerificationCode: code,
		CreatedAt:        now,
		ExpiresAt:        now.Add(pendingAuthTTL),
	}

	d.mu.Lock()
	d.pending[pubkeyKey(pubkey)] = entry
	d.mu.Unlock()

	return InitResult{
		AuthURL:          d.authURL,
		VerificationCode: code,
		ExpiresIn:        int(pendingAuthTTL.Seconds()),
		PollInterval:     d.pollSecs,
	}, nil
}

// Status reports whether pubkey currently holds an unexpired authorization
// (§4.K "GET status").
func (d *Delegated) Status(pubkey ed25519.PublicKey) StatusResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	record, ok := d.authzed[pubkeyKey(pubkey)]
	if !ok {
		return StatusResult{}
	}
	if time.Now().After(record.ExpiresAt) {
		delete(d.authzed, pubkeyKey(pubkey))
		return StatusResult{}
	}
	return StatusResult{Authorized: true, ExpiresAt: record.ExpiresAt}
}

// Complete binds pubkey to userID once the verification code matches a
// pending entry (§4.K "POST complete"), called by a logged-in user's session.
func (d *Delegated) Complete(pubkey ed25519.PublicKey, code, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := pubkeyKey(pubkey)
	entry, ok := d.pending[key]
	if !ok || time.Now().After(entry.ExpiresAt) {
		delete(d.pending, key)
		return caserr.InvalidRequest("invalid_or_expired_code")
	}
	if entry.VerificationCode != code {
		return caserr.InvalidRequest("invalid_or_expired_code")
	}

	now := time.Now()
	d.authzed[key] = AuthorizedPubkey{
		Pubkey:     pubkey,
		UserID:     userID,
		ClientName: entry.ClientName,
		CreatedAt:  now,
		ExpiresAt:  now.Add(authorizedPubkeyTTL),
	}
	delete(d.pending, key)
	return nil
}

// Authorized is the lookup the authenticator's signed-request path uses to
// resolve a verified pubkey to its bound user.
func (d *Delegated) Authorized(pubkey ed25519.PublicKey) (AuthorizedPubkey, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	record, ok := d.authzed[pubkeyKey(pubkey)]
	if !ok {
		return AuthorizedPubkey{}, false
	}
	if time.Now().After(record.ExpiresAt) {
		delete(d.authzed, pubkeyKey(pubkey))
		return AuthorizedPubkey{}, false
	}
	return record, true
}

// ListAuthorized returns every unexpired client pubkey currently bound to
// userID (§6 "GET /auth/clients"), lazily dropping expired entries it
// encounters along the way.
func (d *Delegated) ListAuthorized(userID string) []AuthorizedPubkey {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	var out []AuthorizedPubkey
	for key, record := range d.authzed {
		if now.After(record.ExpiresAt) {
			delete(d.authzed, key)
			continue
		}
		if record.UserID == userID {
			out = append(out, record)
		}
	}
	return out
}

// Revoke drops pubkey's authorization, if any bound to userID (§6 "DELETE
// /auth/clients/{pubkey}"). Reports whether a binding was removed.
func (d *Delegated) Revoke(pubkey ed25519.PublicKey, userID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := pubkeyKey(pubkey)
	record, ok := d.authzed[key]
	if !ok || record.UserID != userID {
		return false
	}
	delete(d.authzed, key)
	return true
}

// Sweep removes every expired pending and authorized entry, reporting the
// total removed. Called by the background reaper (component O); advisory
// only, same as tokens.Memory.Sweep.
func (d *Delegated) Sweep(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for key, entry := range d.pending {
		if now.After(entry.ExpiresAt) {
			delete(d.pending, key)
			removed++
		}
	}
	for key, entry := range d.authzed {
		if now.After(entry.ExpiresAt) {
			delete(d.authzed, key)
			removed++
		}
	}
	return removed
}

func randomVerificationCode() (string, error) {
	var raw [4]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return verificationCode(binary.BigEndian.Uint32(raw[:])), nil
}
