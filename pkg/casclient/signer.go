package casclient

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ClientKey is a caller's signing identity for the signed-request credential
// shape (§4.J "Signed requests"). Grounded on pkg/identity/identity.go's
// Ed25519 keypair, minus its X25519 key-agreement half: this engine has no
// encryption handshake, so only the signing key has a job here.
type ClientKey struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// GenerateClientKey creates a fresh Ed25519 signing keypair.
func GenerateClientKey() (*ClientKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("casclient: generating signing key: %w", err)
	}
	return &ClientKey{PublicKey: pub, PrivateKey: priv}, nil
}

// SignedRequest is the set of fields a signed HTTP call must carry, matching
// the Credentials shape pkg/auth.Authenticator.Resolve expects for the
// signed-request credential (§4.J).
type SignedRequest struct {
	Pubkey       ed25519.PublicKey
	Timestamp    int64
	Signature    []byte
	Method       string
	PathAndQuery string
}

// Sign produces a SignedRequest over (timestamp, method, path, body) per the
// payload construction in §4.J: "<ts>.<METHOD>.<path?query>.<bodyHash>".
func (k *ClientKey) Sign(method, pathAndQuery string, body []byte, now time.Time) SignedRequest {
	ts := now.Unix()
	bodyHash := sha256.Sum256(body)
	payload := fmt.Sprintf("%d.%s.%s.%s", ts, method, pathAndQuery, hex.EncodeToString(bodyHash[:]))

	return SignedRequest{
		Pubkey:       k.PublicKey,
		Timestamp:    ts,
		Signature:    ed25519.Sign(k.PrivateKey, []byte(payload)),
		Method:       method,
		PathAndQuery: pathAndQuery,
	}
}
