package history

import (
	"context"
	"encoding/json"
	"testing"

	"returndesk/backend/internal/domain"
)

func TestDecodeEnvelopeEmptyPayload(t *testing.T) {
	env, err := decodeEnvelope(nil)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if env.Version != EnvelopeVersion || len(env.Records) != 0 {
		t.Fatalf("expected fresh envelope, got %+v", env)
	}
}

func TestDecodeEnvelopeUpgradesLegacyArray(t *testing.T) {
	legacy := []domain.ExchangeTransaction{
		{ID: "EXG-1", OriginalTransactionID: "T1", TotalDifferenceCents: 500, Status: domain.ExchangeStatusCompleted},
	}
	raw, err := json.Marshal(legacy)
	if err != nil {
		t.Fatalf("marshal legacy: %v", err)
	}

	env, err := decodeEnvelope(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if env.Version != EnvelopeVersion {
		t.Fatalf("legacy array should upgrade to version %d, got %d", EnvelopeVersion, env.Version)
	}
	if len(env.Records) != 1 || env.Records[0].ID != "EXG-1" {
		t.Fatalf("legacy records should carry over, got %+v", env.Records)
	}
}

func TestDecodeEnvelopeRejectsNewerVersion(t *testing.T) {
	raw, _ := json.Marshal(Envelope{Version: EnvelopeVersion + 1})
	if _, err := decodeEnvelope(raw); err == nil {
		t.Fatalf("expected error for newer envelope version")
	}
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	if _, err := decodeEnvelope([]byte(`{"version": "one"}`)); err == nil {
		t.Fatalf("expected error for malformed envelope")
	}
	if _, err := decodeEnvelope([]byte(`[{"id": 5}]`)); err == nil {
		t.Fatalf("expected error for malformed legacy array")
	}
}

func TestMemoryStoreAppendAndList(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Append(ctx, domain.ExchangeTransaction{ID: "EXG-1"}); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := s.Append(ctx, domain.ExchangeTransaction{ID: "EXG-2"}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	records, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(records) != 2 || records[0].ID != "EXG-1" || records[1].ID != "EXG-2" {
		t.Fatalf("expected append order preserved, got %+v", records)
	}

	// The returned slice is a copy; mutating it must not affect the store.
	records[0].ID = "mutated"
	again, _ := s.List(ctx)
	if again[0].ID != "EXG-1" {
		t.Fatalf("List must return a copy")
	}
}
