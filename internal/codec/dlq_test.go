package codec

import (
	"testing"
	"time"

	"tradecore/internal/model"
)

func TestEncodeDecodeDLQEnvelopeRoundTrip(t *testing.T) {
	envelope := &model.DLQEnvelope{
		ID:              "D1",
		SourceTopic:     "trades",
		SourcePartition: 3,
		SourceOffset:    1024,
		Key:             []byte("T001"),
		Service:         "coldpath",
		Reason:          model.DLQValidation,
		Detail:          "empty exec_id",
		Stack:           "goroutine 1 [running]:\nmain.main()",
		RawBytes:        []byte{0xAA, 0xBB},
		FailedAt:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Attempts:        2,
		Metadata:        map[string]string{"exec_id": "X1"},
	}

	encoded, err := EncodeDLQEnvelope(envelope)
	if err != nil {
		t.Fatalf("EncodeDLQEnvelope: %v", err)
	}
	decoded, err := DecodeDLQEnvelope(encoded)
	if err != nil {
		t.Fatalf("DecodeDLQEnvelope: %v", err)
	}

	if decoded.ID != envelope.ID || decoded.SourceTopic != envelope.SourceTopic ||
		decoded.SourcePartition != envelope.SourcePartition || decoded.SourceOffset != envelope.SourceOffset ||
		decoded.Service != envelope.Service || decoded.Reason != envelope.Reason ||
		decoded.Detail != envelope.Detail || decoded.Stack != envelope.Stack ||
		decoded.Attempts != envelope.Attempts {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, envelope)
	}
	if string(decoded.Key) != string(envelope.Key) {
		t.Fatalf("key mismatch: got %q, want %q", decoded.Key, envelope.Key)
	}
	if !decoded.FailedAt.Equal(envelope.FailedAt) {
		t.Fatalf("failed_at mismatch: got %v, want %v", decoded.FailedAt, envelope.FailedAt)
	}
	if len(decoded.RawBytes) != len(envelope.RawBytes) {
		t.Fatalf("raw_bytes length mismatch: got %d, want %d", len(decoded.RawBytes), len(envelope.RawBytes))
	}
	if decoded.Metadata["exec_id"] != "X1" {
		t.Fatalf("metadata mismatch: got %v", decoded.Metadata)
	}
}

func TestDecodeDLQEnvelopeTruncatedBuffer(t *testing.T) {
	if _, err := DecodeDLQEnvelope([]byte{0x00}); err == nil {
		t.Fatal("expected error decoding truncated buffer, got nil")
	}
}
