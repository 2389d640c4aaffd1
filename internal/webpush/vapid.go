package webpush

import (
	"bytes"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is the lifetime of a signed VAPID token. RFC 8292 caps the
// token lifetime at 24 hours; staying well under that avoids clock-skew
// rejections at the push service.
const TokenTTL = 12 * time.Hour

// Credential is the process-wide VAPID identity: an ECDSA P-256 keypair
// and a contact subject. Loaded once at startup and immutable for the
// process lifetime.
type Credential struct {
	// PublicKey is the base64url-encoded uncompressed public point,
	// sent verbatim in the k= parameter of the Authorization header.
	PublicKey string
	Subject   string

	privateKey *ecdsa.PrivateKey
}

// NewCredential parses the base64url-encoded VAPID key material. The
// private key is a 32-byte P-256 scalar, the public key a 65-byte
// uncompressed point. The public key must match the point derived from
// the private scalar.
func NewCredential(publicKey, privateKey, subject string) (*Credential, error) {
	if subject == "" {
		return nil, fmt.Errorf("vapid subject is required")
	}

	privRaw, err := base64.RawURLEncoding.DecodeString(trimBase64Padding(privateKey))
	if err != nil {
		return nil, &CryptoInputError{Field: "vapid private key", Err: err}
	}
	priv, err := ecdh.P256().NewPrivateKey(privRaw)
	if err != nil {
		return nil, &CryptoInputError{Field: "vapid private key", Err: err}
	}

	pubRaw, err := base64.RawURLEncoding.DecodeString(trimBase64Padding(publicKey))
	if err != nil {
		return nil, &CryptoInputError{Field: "vapid public key", Err: err}
	}
	derived := priv.PublicKey().Bytes()
	if !bytes.Equal(pubRaw, derived) {
		return nil, &CryptoInputError{Field: "vapid public key", Err: fmt.Errorf("does not match private key")}
	}

	signingKey := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(derived[1:33]),
			Y:     new(big.Int).SetBytes(derived[33:]),
		},
		D: new(big.Int).SetBytes(privRaw),
	}

	return &Credential{
		PublicKey:  publicKey,
		Subject:    subject,
		privateKey: signingKey,
	}, nil
}

// SignToken builds the signed VAPID token for one push-service origin.
// The audience must be the scheme and host of the subscription endpoint,
// never the full URL.
func (c *Credential) SignToken(audience string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"aud": audience,
		"exp": now.Add(TokenTTL).Unix(),
		"sub": c.Subject,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(c.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign vapid token: %w", err)
	}
	return token, nil
}
