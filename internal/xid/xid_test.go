package xid

import (
	"strings"
	"testing"
)

func TestNewCarriesPrefix(t *testing.T) {
	id := New("tx")
	if !strings.HasPrefix(id, "tx-") {
		t.Fatalf("expected tx- prefix, got %s", id)
	}
	if id == New("tx") {
		t.Fatalf("ids should not collide")
	}
}

func TestRefundAndExchangeWireFormats(t *testing.T) {
	if id := NewRefund(); !strings.HasPrefix(id, "REFUND-") {
		t.Fatalf("unexpected refund id %s", id)
	}
	if id := NewExchange(); !strings.HasPrefix(id, "EXG-") {
		t.Fatalf("unexpected exchange id %s", id)
	}
}
