package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"tradecore/internal/model"
)

// wire layout for DLQEnvelope, all big-endian, mirroring EncodeTrade's
// length-prefixed string convention:
//   uint16 idLen          + id bytes
//   uint16 sourceTopicLen + sourceTopic bytes
//   int32  sourcePartition
//   int64  sourceOffset
//   uint32 keyLen         + key bytes
//   uint16 serviceLen     + service bytes
//   uint16 reasonLen      + reason bytes
//   uint32 detailLen      + detail bytes
//   uint32 stackLen       + stack bytes
//   int64  failedAtUnixNano
//   int32  attempts
//   uint16 metadataCount, then per entry: uint16 keyLen+key, uint32 valLen+val
//   uint32 rawBytesLen    + rawBytes

// EncodeDLQEnvelope renders a DLQEnvelope as a self-contained binary
// record, suitable for use as a Kafka record value on the DLQ topic.
func EncodeDLQEnvelope(e *model.DLQEnvelope) ([]byte, error) {
	buf := new(bytes.Buffer)
	fields := []func() error{
		func() error { return writeString(buf, e.ID) },
		func() error { return writeString(buf, e.SourceTopic) },
		func() error { return binary.Write(buf, binary.BigEndian, e.SourcePartition) },
		func() error { return binary.Write(buf, binary.BigEndian, e.SourceOffset) },
		func() error { return writeBytes32(buf, e.Key) },
		func() error { return writeString(buf, e.Service) },
		func() error { return writeString(buf, string(e.Reason)) },
		func() error { return writeBytes32(buf, []byte(e.Detail)) },
		func() error { return writeBytes32(buf, []byte(e.Stack)) },
		func() error { return binary.Write(buf, binary.BigEndian, e.FailedAt.UnixNano()) },
		func() error { return binary.Write(buf, binary.BigEndian, int32(e.Attempts)) },
		func() error { return writeMetadata(buf, e.Metadata) },
	}
	for _, f := range fields {
		if err := f(); err != nil {
			return nil, fmt.Errorf("codec: encode dlq envelope: %w", err)
		}
	}
	if err := writeBytes32(buf, e.RawBytes); err != nil {
		return nil, fmt.Errorf("codec: encode dlq envelope: %w", err)
	}
	return buf.Bytes(), nil
}

func writeBytes32(buf *bytes.Buffer, b []byte) error {
	if err := binary.Write(buf, binary.BigEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := buf.Write(b)
	return err
}

func readBytes32(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if n > 0 {
		if _, err := r.Read(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func writeMetadata(buf *bytes.Buffer, metadata map[string]string) error {
	if err := binary.Write(buf, binary.BigEndian, uint16(len(metadata))); err != nil {
		return err
	}
	for k, v := range metadata {
		if err := writeString(buf, k); err != nil {
			return err
		}
		if err := writeBytes32(buf, []byte(v)); err != nil {
			return err
		}
	}
	return nil
}

func readMetadata(r *bytes.Reader) (map[string]string, error) {
	var count uint16
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	metadata := make(map[string]string, count)
	for i := uint16(0); i < count; i++ {
		k, err := readString(r)
		if err != nil {
			return nil, err
		}
		v, err := readBytes32(r)
		if err != nil {
			return nil, err
		}
		metadata[k] = string(v)
	}
	return metadata, nil
}

// DecodeDLQEnvelope parses bytes produced by EncodeDLQEnvelope.
func DecodeDLQEnvelope(data []byte) (*model.DLQEnvelope, error) {
	r := bytes.NewReader(data)
	e := &model.DLQEnvelope{}

	var err error
	if e.ID, err = readString(r); err != nil {
		return nil, fmt.Errorf("codec: decode dlq id: %w", err)
	}
	if e.SourceTopic, err = readString(r); err != nil {
		return nil, fmt.Errorf("codec: decode dlq source_topic: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &e.SourcePartition); err != nil {
		return nil, fmt.Errorf("codec: decode dlq source_partition: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &e.SourceOffset); err != nil {
		return nil, fmt.Errorf("codec: decode dlq source_offset: %w", err)
	}
	if e.Key, err = readBytes32(r); err != nil {
		return nil, fmt.Errorf("codec: decode dlq key: %w", err)
	}
	if e.Service, err = readString(r); err != nil {
		return nil, fmt.Errorf("codec: decode dlq service: %w", err)
	}
	reason, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("codec: decode dlq reason: %w", err)
	}
	e.Reason = model.DLQReason(reason)

	detail, err := readBytes32(r)
	if err != nil {
		return nil, fmt.Errorf("codec: decode dlq detail: %w", err)
	}
	e.Detail = string(detail)

	stack, err := readBytes32(r)
	if err != nil {
		return nil, fmt.Errorf("codec: decode dlq stack: %w", err)
	}
	e.Stack = string(stack)

	var failedAtNano int64
	if err := binary.Read(r, binary.BigEndian, &failedAtNano); err != nil {
		return nil, fmt.Errorf("codec: decode dlq failed_at: %w", err)
	}
	e.FailedAt = time.Unix(0, failedAtNano).UTC()

	var attempts int32
	if err := binary.Read(r, binary.BigEndian, &attempts); err != nil {
		return nil, fmt.Errorf("codec: decode dlq attempts: %w", err)
	}
	e.Attempts = int(attempts)

	if e.Metadata, err = readMetadata(r); err != nil {
		return nil, fmt.Errorf("codec: decode dlq metadata: %w", err)
	}

	if e.RawBytes, err = readBytes32(r); err != nil {
		return nil, fmt.Errorf("codec: decode dlq raw_bytes: %w", err)
	}

	return e, nil
}
