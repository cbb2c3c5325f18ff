package challenge

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestAuthority_SingleUse(t *testing.T) {
	a := NewAuthority()
	nonce, err := a.Issue()
	if err != nil {
		t.Fatal(err)
	}

	if err := a.Consume(nonce); err != nil {
		t.Fatalf("first Consume() error = %v", err)
	}
	if err := a.Consume(nonce); !errors.Is(err, ErrInvalidNonce) {
		t.Errorf("second Consume() error = %v, want ErrInvalidNonce", err)
	}
	if err := a.Consume("never-issued"); !errors.Is(err, ErrInvalidNonce) {
		t.Errorf("Consume(unknown) error = %v, want ErrInvalidNonce", err)
	}
}

func TestAuthority_IssueIsDistinct(t *testing.T) {
	a := NewAuthority()
	first, _ := a.Issue()
	second, _ := a.Issue()
	if first == second {
		t.Fatal("Issue() returned the same nonce twice")
	}
	if a.Outstanding() != 2 {
		t.Errorf("Outstanding() = %d, want 2", a.Outstanding())
	}
}

func TestAuthority_LimitDropsOldest(t *testing.T) {
	const limit = 4
	a := NewAuthorityWithLimit(limit)

	issued := make([]string, 0, limit+2)
	for i := 0; i < limit+2; i++ {
		nonce, err := a.Issue()
		if err != nil {
			t.Fatal(err)
		}
		issued = append(issued, nonce)
	}
	if a.Outstanding() != limit {
		t.Fatalf("Outstanding() = %d, want %d", a.Outstanding(), limit)
	}

	for _, dropped := range issued[:2] {
		if err := a.Consume(dropped); !errors.Is(err, ErrInvalidNonce) {
			t.Errorf("Consume(dropped) error = %v, want ErrInvalidNonce", err)
		}
	}
	// Consuming from the middle keeps the order intact for later evictions
	if err := a.Consume(issued[3]); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	next, _ := a.Issue()
	next2, _ := a.Issue()
	if err := a.Consume(issued[2]); !errors.Is(err, ErrInvalidNonce) {
		t.Errorf("Consume(oldest) error = %v, want ErrInvalidNonce", err)
	}
	for _, nonce := range []string{issued[4], issued[5], next, next2} {
		if err := a.Consume(nonce); err != nil {
			t.Errorf("Consume(recent) error = %v", err)
		}
	}
	if a.Outstanding() != 0 {
		t.Errorf("Outstanding() = %d, want 0", a.Outstanding())
	}
}

func TestAuthority_Clear(t *testing.T) {
	a := NewAuthority()
	nonce, _ := a.Issue()
	a.Clear()
	if err := a.Consume(nonce); !errors.Is(err, ErrInvalidNonce) {
		t.Errorf("Consume() after Clear error = %v, want ErrInvalidNonce", err)
	}
}

func TestAuthority_ConcurrentConsume(t *testing.T) {
	a := NewAuthority()
	nonce, _ := a.Issue()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if a.Consume(nonce) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("nonce consumed %d times, want 1", wins.Load())
	}
}

func TestDigest(t *testing.T) {
	d := Digest("psk", "1234", "1760000000", "nonce")
	if len(d) != 64 {
		t.Fatalf("digest length = %d, want 64 hex chars", len(d))
	}
	if d != Digest("psk", "1234", "1760000000", "nonce") {
		t.Error("digest is not deterministic")
	}

	tests := []struct {
		name string
		pin  string
		psk  string
		want error
	}{
		{"match", "1234", "psk", nil},
		{"wrong pin", "0000", "psk", ErrDigestMismatch},
		{"wrong psk", "1234", "other", ErrDigestMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Verify(tt.psk, tt.pin, "1760000000", "nonce", d); !errors.Is(err, tt.want) {
				t.Errorf("Verify() = %v, want %v", err, tt.want)
			}
		})
	}
}
