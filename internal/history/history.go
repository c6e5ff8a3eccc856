package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"returndesk/backend/internal/domain"
)

// EnvelopeVersion is written on every save. Bumping it requires an upgrade
// branch in decodeEnvelope.
const EnvelopeVersion = 1

// DefaultKey is the fixed storage key the exchange history lives under.
const DefaultKey = "pos:exchange-history"

// Envelope wraps the persisted exchange records so future field additions
// don't silently corrupt older persisted arrays.
type Envelope struct {
	Version int                          `json:"version"`
	Records []domain.ExchangeTransaction `json:"records"`
}

// Store is the append-only exchange history, kept separate from the
// transaction ledger.
type Store interface {
	Append(ctx context.Context, record domain.ExchangeTransaction) error
	List(ctx context.Context) ([]domain.ExchangeTransaction, error)
}

// decodeEnvelope parses a persisted payload, upgrading the legacy bare-array
// format (no version field) to the current envelope.
func decodeEnvelope(raw []byte) (Envelope, error) {
	if len(raw) == 0 {
		return Envelope{Version: EnvelopeVersion}, nil
	}

	if raw[0] == '[' {
		var legacy []domain.ExchangeTransaction
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return Envelope{}, fmt.Errorf("decode legacy exchange history: %w", err)
		}
		return Envelope{Version: EnvelopeVersion, Records: legacy}, nil
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode exchange history envelope: %w", err)
	}
	if env.Version > EnvelopeVersion {
		return Envelope{}, fmt.Errorf("exchange history envelope version %d is newer than supported %d", env.Version, EnvelopeVersion)
	}
	env.Version = EnvelopeVersion
	return env, nil
}

// MemoryStore keeps the envelope in process memory; used in dev mode and
// tests when Redis is not configured.
type MemoryStore struct {
	mu  sync.RWMutex
	env Envelope
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{env: Envelope{Version: EnvelopeVersion}}
}

func (s *MemoryStore) Append(_ context.Context, record domain.ExchangeTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.env.Records = append(s.env.Records, record)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]domain.ExchangeTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]domain.ExchangeTransaction, len(s.env.Records))
	copy(records, s.env.Records)
	return records, nil
}
