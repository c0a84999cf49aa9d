// Package auth implements the authenticator (§4.J) that maps incoming request
// credentials to an authorization context, applies realm aliasing, and hosts
// the delegated-auth handshake (§4.K). Grounded on the teacher's
// pkg/honeytag/resolver.go dispatch-by-query-shape Resolve method (prefix- and
// shape-based routing to one of several resolution paths) and on
// pkg/security/noiseik/admission.go's signed-payload verification convention.
package auth

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/brinevault/brine/pkg/caserr"
	"github.com/brinevault/brine/pkg/tokens"
	"golang.org/x/text/unicode/norm"
)

// Context is the resolved authorization object passed into every inner
// handler (§4.H "Authorization context").
type Context struct {
	UserID         string
	Realm          string
	CanRead        bool
	CanWrite       bool
	CanIssueTicket bool
	TokenID        string
	AllowedKey     string // empty means unrestricted scope
	Ticket         *tokens.TicketData
}

// Credentials is the union of the three ways a request may authenticate
// (§4.J "Inputs"): at most one of BearerToken, TicketID, or the three signed
// request fields should be set by the HTTP adapter.
type Credentials struct {
	BearerToken string

	TicketID string

	SignedPubkey    ed25519.PublicKey
	SignedTimestamp int64
	SignedSignature []byte
	Method          string
	PathAndQuery    string
	Body            []byte
}

// signedRequestSkew is the maximum allowed clock skew for a signed request
// (§4.J "verify validateTimestamp(ts, 300 seconds)").
const signedRequestSkew = 300 * time.Second

// Authenticator resolves credentials into authorization contexts.
type Authenticator struct {
	tokenStore Store
	delegated  *Delegated
}

// Store is the subset of tokens.Store the authenticator depends on.
type Store interface {
	GetToken(id string) (tokens.Token, bool, error)
}

// NewAuthenticator builds an authenticator over a token store and the
// delegated-auth handshake's authorized-pubkey bindings.
func NewAuthenticator(tokenStore Store, delegated *Delegated) *Authenticator {
	return &Authenticator{tokenStore: tokenStore, delegated: delegated}
}

// Resolve dispatches on the shape of the supplied credentials, mirroring the
// teacher's Resolve(query) BID/handle/bare dispatch.
func (a *Authenticator) Resolve(creds Credentials) (Context, error) {
	switch {
	case creds.BearerToken != "":
		return a.resolveBearer(creds.BearerToken)
	case creds.TicketID != "":
		return a.resolveTicket(creds.TicketID)
	case creds.SignedPubkey != nil:
		return a.resolveSigned(creds)
	default:
		return Context{}, caserr.Unauthorized("no credentials supplied")
	}
}

func (a *Authenticator) resolveBearer(tokenID string) (Context, error) {
	tok, ok, err := a.tokenStore.GetToken(tokenID)
	if err != nil {
		return Context{}, err
	}
	if !ok {
		return Context{}, caserr.Unauthorized("unknown or expired token")
	}

	switch tok.Kind {
	case tokens.KindUser:
		return Context{
			UserID:         tok.User.UserID,
			Realm:          "usr_" + tok.User.UserID,
			CanRead:        true,
			CanWrite:       true,
			CanIssueTicket: true,
			TokenID:        tok.ID,
		}, nil
	case tokens.KindAgent:
		return Context{
			UserID:         tok.Agent.UserID,
			Realm:          "usr_" + tok.Agent.UserID,
			CanRead:        true,
			CanWrite:       true,
			CanIssueTicket: true,
			TokenID:        tok.ID,
		}, nil
	case tokens.KindTicket:
		return a.contextForTicket(tok)
	default:
		return Context{}, caserr.Unauthorized("unrecognized token kind")
	}
}

func (a *Authenticator) resolveTicket(ticketID string) (Context, error) {
	tok, ok, err := a.tokenStore.GetToken(ticketID)
	if err != nil {
		return Context{}, err
	}
	if !ok || tok.Kind != tokens.KindTicket {
		return Context{}, caserr.Gone("ticket expired or unknown")
	}
	return a.contextForTicket(tok)
}

func (a *Authenticator) contextForTicket(tok tokens.Token) (Context, error) {
	t := tok.Ticket
	allowedKey := ""
	if t.Scope != nil {
		for key := range t.Scope {
			allowedKey = key
			break
		}
	}
	return Context{
		Realm:          t.Realm,
		CanRead:        true,
		CanWrite:       t.Commit != nil,
		CanIssueTicket: false,
		TokenID:        tok.ID,
		AllowedKey:     allowedKey,
		Ticket:         t,
	}, nil
}

func (a *Authenticator) resolveSigned(creds Credentials) (Context, error) {
	if err := validateTimestamp(creds.SignedTimestamp, signedRequestSkew); err != nil {
		return Context{}, err
	}

	bodyHash := sha256.Sum256(creds.Body)
	payload := fmt.Sprintf("%d.%s.%s.%s", creds.SignedTimestamp, creds.Method, creds.PathAndQuery, hex.EncodeToString(bodyHash[:]))

	if !ed25519.Verify(creds.SignedPubkey, []byte(payload), creds.SignedSignature) {
		return Context{}, caserr.Unauthorized("signature verification failed")
	}

	record, ok := a.delegated.Authorized(creds.SignedPubkey)
	if !ok {
		return Context{}, caserr.Unauthorized("pubkey is not bound to an authorized user")
	}

	return Context{
		UserID:         record.UserID,
		Realm:          "usr_" + record.UserID,
		CanRead:        true,
		CanWrite:       true,
		CanIssueTicket: true,
		TokenID:        "usr_" + record.UserID,
	}, nil
}

// validateTimestamp rejects signed requests whose timestamp drifts from now
// by more than skew, in either direction.
func validateTimestamp(ts int64, skew time.Duration) error {
	now := time.Now().Unix()
	drift := now - ts
	if drift < 0 {
		drift = -drift
	}
	if time.Duration(drift)*time.Second > skew {
		return caserr.Unauthorized("signed request timestamp outside allowed clock skew")
	}
	return nil
}

// ResolveRealm applies realm aliasing (§4.J): "@me"/"~" substitute the
// caller's own realm; "tkt_<id>" substitutes the named ticket's realm (using
// the ticket's own authorization context rather than the caller's); any other
// realm string must match the caller's realm exactly.
func (a *Authenticator) ResolveRealm(caller Context, requested string) (Context, error) {
	switch {
	case requested == "@me" || requested == "~":
		return caller, nil
	case strings.HasPrefix(requested, "tkt_"):
		return a.resolveTicket(requested)
	case normalizeRealm(requested) == normalizeRealm(caller.Realm):
		return caller, nil
	default:
		return Context{}, caserr.Forbidden("realm does not match caller's authorization context")
	}
}

// normalizeRealm applies NFKC normalization so visually-identical realm names
// built from different Unicode code points (e.g. a precomposed accent versus
// a combining one) compare equal, matching resolver.go's own use of NFKC to
// normalize lookup queries before dispatch.
func normalizeRealm(realm string) string {
	return norm.NFKC.String(realm)
}

// verificationCode produces a six-digit, zero-padded numeric code from random
// bytes, suitable for a human to type into a login prompt.
func verificationCode(randomUint32 uint32) string {
	return fmt.Sprintf("%06d", randomUint32%1_000_000)
}
