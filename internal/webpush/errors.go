package webpush

import "fmt"

// CryptoInputError reports malformed key material: wrong length, a point
// not on the curve, or invalid base64url encoding. Deliveries that fail
// with this error are never retried with the same input.
type CryptoInputError struct {
	Field string
	Err   error
}

func (e *CryptoInputError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *CryptoInputError) Unwrap() error {
	return e.Err
}
