// Package security holds the armed/disarmed state of the house, the rules
// that react to arming, and the delayed arm timer used by wall panels.
package security

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubd/internal/latest"
	"github.com/dokzlo13/hubd/internal/ledger"
	"github.com/dokzlo13/hubd/internal/storage"
)

// State is the security state.
type State string

const (
	Armed    State = "armed"
	Disarmed State = "disarmed"
)

const (
	recordKind = "security"
	recordID   = "house"
)

type record struct {
	State     State     `json:"state"`
	Source    string    `json:"source"`
	ChangedAt time.Time `json:"changed_at"`
}

// Store is the source of truth for the security state. Changes are
// persisted (when backed by storage), audited in the ledger and broadcast
// to watchers as a latest-value stream.
type Store struct {
	mu      sync.Mutex
	records *storage.Typed[record]
	ledger  *ledger.Ledger
	value   *latest.Value[State]
	now     func() time.Time
}

// NewStore loads the persisted state. A nil state store keeps the state in
// memory only; a nil ledger disables auditing.
func NewStore(st *storage.Store, l *ledger.Ledger) (*Store, error) {
	s := &Store{ledger: l, now: time.Now}
	initial := Disarmed

	if st != nil {
		s.records = storage.NewTyped[record](st, recordKind)
		rec, version, err := s.records.Get(recordID)
		if err != nil {
			return nil, fmt.Errorf("load security state: %w", err)
		}
		if version > 0 && rec.State != "" {
			initial = rec.State
		}
	}

	s.value = latest.New(initial)
	log.Info().Str("state", string(initial)).Msg("Security state loaded")
	return s, nil
}

// State returns the current state.
func (s *Store) State(context.Context) (State, error) {
	st, _ := s.value.Get()
	return st, nil
}

// Armed reports whether the house is armed.
func (s *Store) Armed(ctx context.Context) (bool, error) {
	st, err := s.State(ctx)
	return st == Armed, err
}

// Arm sets the state to Armed.
func (s *Store) Arm(ctx context.Context, source string) error {
	return s.set(ctx, Armed, source)
}

// Disarm sets the state to Disarmed.
func (s *Store) Disarm(ctx context.Context, source string) error {
	return s.set(ctx, Disarmed, source)
}

// Watch streams the latest state.
func (s *Store) Watch(ctx context.Context) <-chan State {
	return s.value.Watch(ctx)
}

func (s *Store) set(_ context.Context, state State, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, _ := s.value.Get(); cur == state {
		return nil
	}

	if s.records != nil {
		if err := s.records.Set(recordID, record{State: state, Source: source, ChangedAt: s.now().UTC()}); err != nil {
			return fmt.Errorf("persist security state: %w", err)
		}
	}
	s.value.Set(state)

	if s.ledger != nil {
		if err := s.ledger.Append(ledger.EventSecurityChanged, source, map[string]any{"state": string(state)}); err != nil {
			log.Warn().Err(err).Msg("Failed to audit security change")
		}
	}

	log.Info().Str("state", string(state)).Str("source", source).Msg("Security state changed")
	return nil
}
