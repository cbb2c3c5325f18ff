// Package challenge issues single-use nonces for the panel disarm
// challenge/response and verifies the keyed digest.
package challenge

import (
	"container/list"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrInvalidNonce means the nonce is unknown, already consumed, cleared or dropped past the limit.
	ErrInvalidNonce = errors.New("invalid nonce")
	// ErrDigestMismatch means the submitted digest does not match the expected one.
	ErrDigestMismatch = errors.New("digest mismatch")
)

// DefaultLimit bounds the outstanding set. A panel that refreshes its
// challenge keeps at most this many nonces alive.
const DefaultLimit = 32

// Authority tracks outstanding nonces. All methods are safe for concurrent use
// and Consume is an atomic check-and-remove. Past the limit, issuing a nonce
// drops the oldest outstanding one.
type Authority struct {
	mu     sync.Mutex
	limit  int
	order  *list.List // oldest first
	nonces map[string]*list.Element
}

// NewAuthority creates an empty authority with DefaultLimit.
func NewAuthority() *Authority {
	return NewAuthorityWithLimit(DefaultLimit)
}

// NewAuthorityWithLimit creates an empty authority keeping at most limit nonces.
func NewAuthorityWithLimit(limit int) *Authority {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Authority{limit: limit, order: list.New(), nonces: make(map[string]*list.Element)}
}

// Issue creates a new random nonce and adds it to the outstanding set.
func (a *Authority) Issue() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	nonce := id.String()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.nonces[nonce] = a.order.PushBack(nonce)
	for a.order.Len() > a.limit {
		oldest := a.order.Front()
		a.order.Remove(oldest)
		delete(a.nonces, oldest.Value.(string))
	}
	return nonce, nil
}

// Consume removes nonce from the outstanding set, failing with
// ErrInvalidNonce if it is not there.
func (a *Authority) Consume(nonce string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	el, ok := a.nonces[nonce]
	if !ok {
		return ErrInvalidNonce
	}
	a.order.Remove(el)
	delete(a.nonces, nonce)
	return nil
}

// Clear drops every outstanding nonce.
func (a *Authority) Clear() {
	a.mu.Lock()
	a.order.Init()
	a.nonces = make(map[string]*list.Element)
	a.mu.Unlock()
}

// Outstanding returns how many nonces are waiting to be consumed.
func (a *Authority) Outstanding() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.nonces)
}

// Digest computes lowercase hex HMAC-SHA256 keyed by psk over "pin:timestamp:nonce".
func Digest(psk, pin, timestamp, nonce string) string {
	mac := hmac.New(sha256.New, []byte(psk))
	mac.Write([]byte(pin + ":" + timestamp + ":" + nonce))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the digest and compares it in constant time.
func Verify(psk, pin, timestamp, nonce, digest string) error {
	expected := Digest(psk, pin, timestamp, nonce)
	if !hmac.Equal([]byte(expected), []byte(digest)) {
		return ErrDigestMismatch
	}
	return nil
}
