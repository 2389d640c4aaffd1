package webpush

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Outcome classifies the result of one delivery attempt.
type Outcome int

const (
	// OutcomeDelivered means the push service accepted the message.
	OutcomeDelivered Outcome = iota
	// OutcomeGone means the subscription is permanently invalid and
	// should be removed. This is the only outcome that triggers
	// subscription deletion.
	OutcomeGone
	// OutcomeTransient covers network failures, rate limiting, and
	// unexpected status codes. The event is not retried within the same
	// dispatch pass.
	OutcomeTransient
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeGone:
		return "gone"
	default:
		return "transient"
	}
}

const (
	contentEncoding = "aes128gcm"
	// defaultMessageTTL is how long, in seconds, the push service may
	// hold an undelivered message.
	defaultMessageTTL = 86400
	requestTimeout    = 30 * time.Second
)

// Client delivers encrypted messages to push-service endpoints.
type Client struct {
	httpClient *http.Client
	credential *Credential
	messageTTL int
}

// NewClient creates a push delivery client signing with the given
// credential.
func NewClient(credential *Credential) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		credential: credential,
		messageTTL: defaultMessageTTL,
	}
}

// Deliver encrypts payload for one subscription and posts it to the
// subscription endpoint. The returned error carries detail for
// OutcomeTransient; a nil error is only possible with OutcomeDelivered
// or OutcomeGone.
func (c *Client) Deliver(ctx context.Context, endpoint string, keys Keys, payload []byte) (Outcome, error) {
	audience, err := endpointAudience(endpoint)
	if err != nil {
		return OutcomeTransient, err
	}

	token, err := c.credential.SignToken(audience)
	if err != nil {
		return OutcomeTransient, err
	}

	body, err := EncryptPayload(payload, keys)
	if err != nil {
		return OutcomeTransient, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return OutcomeTransient, fmt.Errorf("failed to create push request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("vapid t=%s, k=%s", token, c.credential.PublicKey))
	req.Header.Set("Content-Encoding", contentEncoding)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("TTL", strconv.Itoa(c.messageTTL))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return OutcomeTransient, fmt.Errorf("push request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return OutcomeDelivered, nil
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return OutcomeGone, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return OutcomeTransient, fmt.Errorf("push rate limit exceeded (retry-after %q)", resp.Header.Get("Retry-After"))
	default:
		return OutcomeTransient, fmt.Errorf("push service returned status %d", resp.StatusCode)
	}
}

// endpointAudience reduces a subscription endpoint to its scheme+host
// origin, the audience the push service validates the token against.
func endpointAudience(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid endpoint URL %q: missing scheme or host", endpoint)
	}
	return u.Scheme + "://" + u.Host, nil
}
