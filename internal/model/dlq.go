package model

import "time"

// DLQReason classifies why a message was routed to the dead-letter queue.
type DLQReason string

const (
	DLQDeserialization DLQReason = "DESERIALIZATION"
	DLQValidation      DLQReason = "VALIDATION"
	DLQProcessing      DLQReason = "PROCESSING"
	DLQDownstream      DLQReason = "DOWNSTREAM"
	DLQTimeout         DLQReason = "TIMEOUT"
	DLQUnknown         DLQReason = "UNKNOWN"
)

// DLQEnvelope wraps a failed message with enough context to replay or
// investigate it without touching the original topic or offset.
type DLQEnvelope struct {
	ID              string
	SourceTopic     string
	SourcePartition int32
	SourceOffset    int64
	Key             []byte // the original record's key, so a given source key stays in one DLQ partition
	Service         string // which service emitted this envelope
	Reason          DLQReason
	Detail          string
	Stack           string
	RawBytes        []byte // the original, unmodified payload
	FailedAt        time.Time
	Attempts        int
	Metadata        map[string]string
}
