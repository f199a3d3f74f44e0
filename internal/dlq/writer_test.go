package dlq

import (
	"context"
	"errors"
	"testing"

	"tradecore/internal/errtag"
	"tradecore/internal/model"
)

type fakePublisher struct {
	lastKey   string
	lastValue []byte
	err       error
	calls     int
}

func (f *fakePublisher) Publish(ctx context.Context, key string, value []byte) error {
	f.calls++
	f.lastKey = key
	f.lastValue = value
	return f.err
}

func trivialEncode(e *model.DLQEnvelope) ([]byte, error) {
	return e.RawBytes, nil
}

func TestWriterSendClassifiesReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want model.DLQReason
	}{
		{"validation", errtag.Tag(errtag.Validation, errors.New("bad qty")), model.DLQValidation},
		{"deserialization", errtag.Tag(errtag.Deserialization, errors.New("short buffer")), model.DLQDeserialization},
		{"downstream", errtag.Tag(errtag.DownstreamPermanent, errors.New("store rejected")), model.DLQDownstream},
		{"timeout", errtag.Tag(errtag.Timeout, errors.New("deadline")), model.DLQTimeout},
		{"unknown", errors.New("mystery"), model.DLQProcessing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pub := &fakePublisher{}
			var failed bool
			var gotReason model.DLQReason
			encode := func(e *model.DLQEnvelope) ([]byte, error) {
				gotReason = e.Reason
				return e.RawBytes, nil
			}
			w := NewWriter(pub, "ingestion", encode, func(e *model.DLQEnvelope, err error) { failed = true })

			w.Send(context.Background(), "trades", 0, 42, nil, []byte("payload"), tc.err, 1, nil)

			if failed {
				t.Fatalf("unexpected publish failure hook invoked")
			}
			if pub.calls != 1 {
				t.Fatalf("expected 1 publish call, got %d", pub.calls)
			}
			if string(pub.lastValue) != "payload" {
				t.Fatalf("expected raw payload preserved, got %q", pub.lastValue)
			}
			if gotReason != tc.want {
				t.Fatalf("expected reason %v, got %v", tc.want, gotReason)
			}
		})
	}
}

func TestWriterSendPublishFailureInvokesHook(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	var gotErr error
	w := NewWriter(pub, "ingestion", trivialEncode, func(e *model.DLQEnvelope, err error) { gotErr = err })

	w.Send(context.Background(), "trades", 0, 1, nil, []byte("x"), errors.New("boom"), 1, nil)

	if gotErr == nil {
		t.Fatal("expected failure hook to be invoked with an error")
	}
}

func TestWriterSendUsesOriginalKeyForDLQPartitioning(t *testing.T) {
	pub := &fakePublisher{}
	w := NewWriter(pub, "ingestion", trivialEncode, nil)

	w.Send(context.Background(), "trades", 0, 1, []byte("T001"), []byte("x"), errors.New("boom"), 1, nil)

	if pub.lastKey != "T001" {
		t.Fatalf("expected publish key %q, got %q", "T001", pub.lastKey)
	}
}
