package webpush

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"testing"

	"golang.org/x/crypto/hkdf"
)

// testSubscriber generates a receiver-side key pair and auth secret the
// way a browser would for a PushSubscription.
func testSubscriber(t *testing.T) (*ecdh.PrivateKey, []byte, Keys) {
	t.Helper()

	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate subscriber key: %v", err)
	}
	authSecret := make([]byte, authSecretLen)
	if _, err := rand.Read(authSecret); err != nil {
		t.Fatalf("failed to generate auth secret: %v", err)
	}

	keys := Keys{
		P256dh: base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
		Auth:   base64.RawURLEncoding.EncodeToString(authSecret),
	}
	return priv, authSecret, keys
}

// decryptRecord is the receiver side of the aes128gcm content coding,
// mirroring what the browser's push stack does before handing the
// payload to the service worker.
func decryptRecord(body []byte, subscriber *ecdh.PrivateKey, authSecret []byte) ([]byte, error) {
	if len(body) < headerLen+gcmTagLen {
		return nil, fmt.Errorf("body too short: %d bytes", len(body))
	}

	salt := body[:saltLen]
	if got := binary.BigEndian.Uint32(body[saltLen:]); got != recordSize {
		return nil, fmt.Errorf("record size = %d, want %d", got, recordSize)
	}
	if got := body[saltLen+4]; got != publicKeyLen {
		return nil, fmt.Errorf("key id length = %d, want %d", got, publicKeyLen)
	}
	senderPubBytes := body[saltLen+5 : headerLen]
	senderPub, err := ecdh.P256().NewPublicKey(senderPubBytes)
	if err != nil {
		return nil, fmt.Errorf("bad sender public key: %w", err)
	}

	sharedSecret, err := subscriber.ECDH(senderPub)
	if err != nil {
		return nil, err
	}

	ikmInfo := append([]byte("WebPush: info\x00"), subscriber.PublicKey().Bytes()...)
	ikmInfo = append(ikmInfo, senderPubBytes...)

	ikm := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, sharedSecret, authSecret, ikmInfo), ikm); err != nil {
		return nil, err
	}
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, []byte("Content-Encoding: aes128gcm\x00")), key); err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, []byte("Content-Encoding: nonce\x00")), nonce); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	padded, err := gcm.Open(nil, nonce, body[headerLen:], nil)
	if err != nil {
		return nil, err
	}

	if len(padded) == 0 || padded[len(padded)-1] != paddingDelimiter {
		return nil, fmt.Errorf("missing padding delimiter")
	}
	return padded[:len(padded)-1], nil
}

func TestEncryptPayload_RoundTrip(t *testing.T) {
	subscriber, authSecret, keys := testSubscriber(t)

	sizes := []int{0, 1, 17, 256, 1024, MaxPlaintextLen}
	for _, size := range sizes {
		t.Run(fmt.Sprintf("size_%d", size), func(t *testing.T) {
			plaintext := make([]byte, size)
			if _, err := rand.Read(plaintext); err != nil {
				t.Fatalf("failed to generate plaintext: %v", err)
			}

			body, err := EncryptPayload(plaintext, keys)
			if err != nil {
				t.Fatalf("EncryptPayload() error: %v", err)
			}
			if want := headerLen + size + 1 + gcmTagLen; len(body) != want {
				t.Errorf("body length = %d, want %d", len(body), want)
			}

			got, err := decryptRecord(body, subscriber, authSecret)
			if err != nil {
				t.Fatalf("decryptRecord() error: %v", err)
			}
			if !bytes.Equal(got, plaintext) {
				t.Errorf("round trip mismatch: got %d bytes, want %d bytes", len(got), len(plaintext))
			}
		})
	}
}

func TestEncryptPayload_FreshRandomnessPerCall(t *testing.T) {
	subscriber, authSecret, keys := testSubscriber(t)
	plaintext := []byte(`{"title":"Fire Call"}`)

	first, err := EncryptPayload(plaintext, keys)
	if err != nil {
		t.Fatalf("EncryptPayload() error: %v", err)
	}
	second, err := EncryptPayload(plaintext, keys)
	if err != nil {
		t.Fatalf("EncryptPayload() error: %v", err)
	}

	// Fresh salt and ephemeral key per message. Comparing the header
	// fields, not the ciphertext bytes.
	if bytes.Equal(first[:saltLen], second[:saltLen]) {
		t.Error("salt reused across two messages")
	}
	if bytes.Equal(first[saltLen+5:headerLen], second[saltLen+5:headerLen]) {
		t.Error("ephemeral key reused across two messages")
	}

	for i, body := range [][]byte{first, second} {
		got, err := decryptRecord(body, subscriber, authSecret)
		if err != nil {
			t.Fatalf("decryptRecord(message %d) error: %v", i, err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Errorf("message %d round trip mismatch", i)
		}
	}
}

func TestEncryptPayload_InvalidKeyMaterial(t *testing.T) {
	_, _, valid := testSubscriber(t)

	notOnCurve := make([]byte, publicKeyLen)
	notOnCurve[0] = 0x04 // valid prefix, garbage coordinates

	tests := []struct {
		name string
		keys Keys
	}{
		{name: "empty p256dh", keys: Keys{P256dh: "", Auth: valid.Auth}},
		{name: "p256dh not base64url", keys: Keys{P256dh: "!!not-base64!!", Auth: valid.Auth}},
		{name: "p256dh wrong length", keys: Keys{P256dh: base64.RawURLEncoding.EncodeToString(make([]byte, 33)), Auth: valid.Auth}},
		{name: "p256dh not on curve", keys: Keys{P256dh: base64.RawURLEncoding.EncodeToString(notOnCurve), Auth: valid.Auth}},
		{name: "empty auth", keys: Keys{P256dh: valid.P256dh, Auth: ""}},
		{name: "auth wrong length", keys: Keys{P256dh: valid.P256dh, Auth: base64.RawURLEncoding.EncodeToString(make([]byte, 8))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := EncryptPayload([]byte("payload"), tt.keys)
			if err == nil {
				t.Fatal("EncryptPayload() should fail on malformed key material")
			}
			var cryptoErr *CryptoInputError
			if !errors.As(err, &cryptoErr) {
				t.Errorf("error type = %T, want *CryptoInputError (%v)", err, err)
			}
			if body != nil {
				t.Error("EncryptPayload() returned partial output on error")
			}
		})
	}
}

func TestEncryptPayload_PaddedKeysAccepted(t *testing.T) {
	subscriber, authSecret, keys := testSubscriber(t)

	// Stored records may carry padded base64; both forms must decode.
	padded := Keys{
		P256dh: base64.URLEncoding.EncodeToString(subscriber.PublicKey().Bytes()),
		Auth:   base64.URLEncoding.EncodeToString(authSecret),
	}
	if padded.P256dh == keys.P256dh {
		t.Skip("encoded key happens to need no padding")
	}

	body, err := EncryptPayload([]byte("hello"), padded)
	if err != nil {
		t.Fatalf("EncryptPayload() error with padded keys: %v", err)
	}
	got, err := decryptRecord(body, subscriber, authSecret)
	if err != nil {
		t.Fatalf("decryptRecord() error: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("round trip = %q, want %q", got, "hello")
	}
}

func TestEncryptPayload_TooLarge(t *testing.T) {
	_, _, keys := testSubscriber(t)

	if _, err := EncryptPayload(make([]byte, MaxPlaintextLen+1), keys); err == nil {
		t.Error("EncryptPayload() should reject payloads over the single-record limit")
	}
}
