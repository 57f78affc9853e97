package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ins/ins/internal/platform/kv"
)

// KeyPrefix names the key-value slot holding a client's session.
const KeyPrefix = "emr_user"

// Store reads and writes sessions in a key-value backend.
type Store struct {
	kv     kv.Store
	logger zerolog.Logger
}

func NewStore(backend kv.Store, logger zerolog.Logger) *Store {
	return &Store{kv: backend, logger: logger.With().Str("component", "session").Logger()}
}

// Slot returns the session access object for one client slot.
func (s *Store) Slot(id string) *Slot {
	return &Slot{store: s, key: KeyPrefix + ":" + id, id: id}
}

// Slot is the per-client view of the store: one key, one session.
type Slot struct {
	store *Store
	key   string
	id    string
}

// ID returns the slot identifier.
func (sl *Slot) ID() string { return sl.id }

// Load returns the stored session, or nil when there is none. A payload that
// does not decode into a fully populated session is treated as absent and
// removed. The error is non-nil only when the backend itself failed.
func (sl *Slot) Load(ctx context.Context) (*Session, error) {
	raw, err := sl.store.kv.Get(ctx, sl.key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: load %s: %w", sl.id, err)
	}

	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil || !s.Valid() {
		sl.store.logger.Warn().Str("slot", sl.id).Msg("discarding malformed session payload")
		if err := sl.store.kv.Delete(ctx, sl.key); err != nil {
			sl.store.logger.Error().Err(err).Str("slot", sl.id).Msg("failed to clear malformed session")
		}
		return nil, nil
	}
	return &s, nil
}

// Save persists s, replacing any previous session in the slot.
func (sl *Slot) Save(ctx context.Context, s *Session) error {
	if !s.Valid() {
		return ErrInvalidSession
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := sl.store.kv.Set(ctx, sl.key, string(data)); err != nil {
		return fmt.Errorf("session: save %s: %w", sl.id, err)
	}
	return nil
}

// Clear removes the persisted session.
func (sl *Slot) Clear(ctx context.Context) error {
	if err := sl.store.kv.Delete(ctx, sl.key); err != nil {
		return fmt.Errorf("session: clear %s: %w", sl.id, err)
	}
	return nil
}
