// Package dlq writes failed messages to the dead-letter queue. Sends are
// best-effort: a DLQ publish failure is handed to the caller's FailureHook
// (if any) and is not counted by this package; it never blocks or retries
// the caller's own ingest loop, since the whole point of a DLQ
// is to get a poison message out of the hot path, not to add another thing
// that can stall it.
package dlq

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"tradecore/internal/errtag"
	"tradecore/internal/model"
)

// Publisher is the subset of pkg/eventlog.Producer this package depends on.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Encoder serializes a DLQEnvelope for the wire. Kept pluggable so tests can
// swap in a trivial encoding.
type Encoder func(*model.DLQEnvelope) ([]byte, error)

// FailureHook is invoked whenever a DLQ publish itself fails, so the caller
// can bump a metric or emit a log line without this package importing
// logging/metrics packages directly.
type FailureHook func(envelope *model.DLQEnvelope, err error)

// Writer routes failed messages to the DLQ topic, keyed by the original
// record's key so a given source key stays in a single DLQ partition.
type Writer struct {
	publisher Publisher
	service   string
	encode    Encoder
	onFailure FailureHook
}

// NewWriter constructs a Writer. service identifies the calling process in
// every envelope it emits. encode must not be nil.
func NewWriter(publisher Publisher, service string, encode Encoder, onFailure FailureHook) *Writer {
	return &Writer{publisher: publisher, service: service, encode: encode, onFailure: onFailure}
}

// Send routes raw to the DLQ with a reason derived from err via
// errtag.Classify. The original bytes are preserved losslessly regardless
// of why processing failed. key is the original record's key (or nil if
// none); when present it is used as the DLQ publish key so records from
// the same source key land on the same DLQ partition, otherwise the
// envelope's own generated id is used.
func (w *Writer) Send(ctx context.Context, sourceTopic string, sourcePartition int32, sourceOffset int64, key, raw []byte, cause error, attempts int, metadata map[string]string) {
	envelope := &model.DLQEnvelope{
		ID:              uuid.NewString(),
		SourceTopic:     sourceTopic,
		SourcePartition: sourcePartition,
		SourceOffset:    sourceOffset,
		Key:             key,
		Service:         w.service,
		Reason:          reasonFor(cause),
		Detail:          errDetail(cause),
		Stack:           string(debug.Stack()),
		RawBytes:        raw,
		FailedAt:        time.Now().UTC(),
		Attempts:        attempts,
		Metadata:        metadata,
	}

	payload, err := w.encode(envelope)
	if err != nil {
		w.fail(envelope, fmt.Errorf("dlq: encode envelope: %w", err))
		return
	}

	publishKey := envelope.ID
	if len(key) > 0 {
		publishKey = string(key)
	}

	if err := w.publisher.Publish(ctx, publishKey, payload); err != nil {
		w.fail(envelope, fmt.Errorf("dlq: publish: %w", err))
		return
	}
}

func (w *Writer) fail(envelope *model.DLQEnvelope, err error) {
	if w.onFailure != nil {
		w.onFailure(envelope, err)
	}
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// reasonFor maps an errtag.Kind to the DLQ's own reason taxonomy. The two
// taxonomies are deliberately distinct: errtag.Kind drives retry policy
// in-process, model.DLQReason is the durable record of why a message
// ultimately landed here.
func reasonFor(err error) model.DLQReason {
	switch errtag.Classify(err) {
	case errtag.Deserialization:
		return model.DLQDeserialization
	case errtag.Validation:
		return model.DLQValidation
	case errtag.DownstreamTransient, errtag.DownstreamPermanent, errtag.CircuitOpen:
		return model.DLQDownstream
	case errtag.Timeout:
		return model.DLQTimeout
	case errtag.Internal:
		return model.DLQProcessing
	default:
		return model.DLQUnknown
	}
}
