// Package storage is the per-session key-value store that backs carts, checkout
// drafts and session state.
package storage

import (
	"context"
	"errors"
)

// Well-known keys inside a session namespace.
const (
	KeyCart          = "shopping_cart"
	KeyUser          = "user"
	KeyUserAuth      = "user_auth"
	KeyAuthToken     = "auth_token"
	KeyCheckoutDraft = "checkout_draft"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("storage: key not found")

// KV stores opaque values under (session, key).
type KV interface {
	Get(ctx context.Context, sessionID, key string) ([]byte, error)
	Put(ctx context.Context, sessionID, key string, value []byte) error
	// Delete removes every listed key; missing keys are not an error.
	Delete(ctx context.Context, sessionID string, keys ...string) error
}
