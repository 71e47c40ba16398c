package messaging

import (
	"testing"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	src := Address{Role: "cell", Cell: "cell-7"}
	dst := Address{Role: "supervisor"}

	in := SessionEvent{
		CellID:    "cell-7",
		SessionID: "sess-1",
		Event:     "completed",
		Cursor:    3,
		Targets:   4,
		FailIndex: -1,
	}
	env, err := NewEnvelope(TypeSessionEvent, src, dst, in)
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	if env.Version != envelopeVersion {
		t.Errorf("version = %d", env.Version)
	}
	if env.ID == "" {
		t.Error("envelope should carry a message id")
	}
	if env.Timestamp.IsZero() {
		t.Error("envelope should be timestamped")
	}

	data, err := env.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != TypeSessionEvent || got.ID != env.ID {
		t.Errorf("decoded header = %q / %q", got.Type, got.ID)
	}
	if got.Src != src || got.Dst != dst {
		t.Errorf("decoded addresses = %+v / %+v", got.Src, got.Dst)
	}

	var out SessionEvent
	if err := got.DecodePayload(&out); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if out != in {
		t.Errorf("payload = %+v, want %+v", out, in)
	}
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	if _, err := DecodeEnvelope([]byte("not json")); err == nil {
		t.Error("garbage input should error")
	}
}

func TestEnvelopeUniqueIDs(t *testing.T) {
	a, _ := NewEnvelope(TypeCellHeartbeat, Address{Role: "cell"}, Address{Role: "supervisor"}, CellHeartbeat{CellID: "c"})
	b, _ := NewEnvelope(TypeCellHeartbeat, Address{Role: "cell"}, Address{Role: "supervisor"}, CellHeartbeat{CellID: "c"})
	if a.ID == b.ID {
		t.Error("envelope ids should be unique")
	}
}
