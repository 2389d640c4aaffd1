// Package webpush implements encrypted Web Push message delivery: the
// aes128gcm content coding from RFC 8291 and VAPID request signing from
// RFC 8292.
package webpush

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// recordSize is the rs field written into the content coding header.
	// It is an upper bound on the encrypted record length; payloads here
	// are small enough that a single record always suffices.
	recordSize = 4096

	saltLen       = 16
	publicKeyLen  = 65 // uncompressed P-256 point
	authSecretLen = 16
	keyLen        = 16 // AES-128
	nonceLen      = 12
	gcmTagLen     = 16
	headerLen     = saltLen + 4 + 1 + publicKeyLen

	// paddingDelimiter terminates the plaintext of the last record.
	paddingDelimiter = 0x02
)

// MaxPlaintextLen is the largest payload that fits in a single record.
const MaxPlaintextLen = recordSize - headerLen - gcmTagLen - 1

// Keys holds a subscriber's public key material: the P-256 agreement key
// and the auth secret, both base64url-encoded as delivered by the
// browser's PushSubscription.
type Keys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// EncryptPayload encrypts plaintext for a subscriber using the aes128gcm
// content coding and returns the complete header+ciphertext body.
//
// A fresh ephemeral key pair and a fresh random salt are generated on
// every call; reusing either across two messages would break the
// scheme's confidentiality guarantee.
func EncryptPayload(plaintext []byte, keys Keys) ([]byte, error) {
	if len(plaintext) > MaxPlaintextLen {
		return nil, fmt.Errorf("payload of %d bytes exceeds single-record limit of %d", len(plaintext), MaxPlaintextLen)
	}

	subscriberKey, err := decodeSubscriberKey(keys.P256dh)
	if err != nil {
		return nil, err
	}
	authSecret, err := decodeAuthSecret(keys.Auth)
	if err != nil {
		return nil, err
	}

	ephemeral, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key, nonce, err := deriveKeyAndNonce(ephemeral, subscriberKey, authSecret, salt)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	padded := make([]byte, 0, len(plaintext)+1)
	padded = append(padded, plaintext...)
	padded = append(padded, paddingDelimiter)

	body := make([]byte, headerLen, headerLen+len(padded)+gcmTagLen)
	copy(body, salt)
	binary.BigEndian.PutUint32(body[saltLen:], recordSize)
	body[saltLen+4] = publicKeyLen
	copy(body[saltLen+5:], ephemeral.PublicKey().Bytes())

	return gcm.Seal(body, nonce, padded, nil), nil
}

// deriveKeyAndNonce runs the RFC 8291 key schedule: ECDH agreement, then
// an HKDF extraction keyed by the subscriber's auth secret to produce the
// input keying material, then two HKDF expansions keyed by the salt for
// the content-encryption key and nonce.
func deriveKeyAndNonce(ephemeral *ecdh.PrivateKey, subscriberKey *ecdh.PublicKey, authSecret, salt []byte) (key, nonce []byte, err error) {
	sharedSecret, err := ephemeral.ECDH(subscriberKey)
	if err != nil {
		return nil, nil, &CryptoInputError{Field: "p256dh key", Err: err}
	}

	// The info string concatenates the subscriber's key before the
	// ephemeral sender's key. Swapping the order produces ciphertext the
	// receiver cannot decrypt.
	ikmInfo := make([]byte, 0, 14+2*publicKeyLen)
	ikmInfo = append(ikmInfo, "WebPush: info\x00"...)
	ikmInfo = append(ikmInfo, subscriberKey.Bytes()...)
	ikmInfo = append(ikmInfo, ephemeral.PublicKey().Bytes()...)

	ikm, err := hkdfDerive(sharedSecret, authSecret, ikmInfo, sha256.Size)
	if err != nil {
		return nil, nil, err
	}

	key, err = hkdfDerive(ikm, salt, []byte("Content-Encoding: aes128gcm\x00"), keyLen)
	if err != nil {
		return nil, nil, err
	}
	nonce, err = hkdfDerive(ikm, salt, []byte("Content-Encoding: nonce\x00"), nonceLen)
	if err != nil {
		return nil, nil, err
	}
	return key, nonce, nil
}

func hkdfDerive(secret, salt, info []byte, length int) ([]byte, error) {
	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), out); err != nil {
		return nil, fmt.Errorf("hkdf derivation failed: %w", err)
	}
	return out, nil
}

func decodeSubscriberKey(p256dh string) (*ecdh.PublicKey, error) {
	raw, err := base64.RawURLEncoding.DecodeString(trimBase64Padding(p256dh))
	if err != nil {
		return nil, &CryptoInputError{Field: "p256dh key", Err: err}
	}
	if len(raw) != publicKeyLen {
		return nil, &CryptoInputError{Field: "p256dh key", Err: fmt.Errorf("got %d bytes, want %d", len(raw), publicKeyLen)}
	}
	key, err := ecdh.P256().NewPublicKey(raw)
	if err != nil {
		return nil, &CryptoInputError{Field: "p256dh key", Err: err}
	}
	return key, nil
}

func decodeAuthSecret(auth string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(trimBase64Padding(auth))
	if err != nil {
		return nil, &CryptoInputError{Field: "auth secret", Err: err}
	}
	if len(raw) != authSecretLen {
		return nil, &CryptoInputError{Field: "auth secret", Err: fmt.Errorf("got %d bytes, want %d", len(raw), authSecretLen)}
	}
	return raw, nil
}

// trimBase64Padding tolerates padded input; browsers emit unpadded
// base64url but stored records may carry padding.
func trimBase64Padding(s string) string {
	for len(s) > 0 && s[len(s)-1] == '=' {
		s = s[:len(s)-1]
	}
	return s
}
