// Package codec implements the fixed-width binary wire format used to
// serialize model.TradeEnvelope onto the trades log, in the style of the
// length-prefixed ITCH-style framing used elsewhere in this domain.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"tradecore/internal/model"
)

// wire layout, all big-endian:
//   uint16 execIDLen      + execID bytes
//   uint16 symbolLen      + symbol bytes
//   int64  quantity
//   int64  priceMantissa
//   uint8  side (0=BUY,1=SELL,2=SELL_SHORT)
//   int64  execTSUnixNano
//   uint16 orderIDLen     + orderID bytes
//   uint16 clientOrderIDLen + clientOrderID bytes
//   uint16 traderIDLen    + traderID bytes
//   uint16 accountLen     + account bytes
//   uint16 exchangeLen    + exchange bytes
//   uint16 gatewayIDLen   + gatewayID bytes
//   uint16 strategyCodeLen + strategyCode bytes
//   int64  receiveTSUnixNano
//   uint32 rawBytesLen    + rawBytes

var sideCode = map[model.Side]uint8{
	model.SideBuy:       0,
	model.SideSell:      1,
	model.SideSellShort: 2,
}

var codeSide = map[uint8]model.Side{
	0: model.SideBuy,
	1: model.SideSell,
	2: model.SideSellShort,
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 0xFFFF {
		return fmt.Errorf("codec: field too long: %d bytes", len(s))
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// EncodeTrade renders a TradeEnvelope as a self-contained binary record,
// suitable for use as a Kafka record value.
func EncodeTrade(t *model.TradeEnvelope) ([]byte, error) {
	code, ok := sideCode[t.Side]
	if !ok {
		return nil, fmt.Errorf("codec: unknown side %q", t.Side)
	}

	buf := new(bytes.Buffer)
	fields := []func() error{
		func() error { return writeString(buf, t.ExecID) },
		func() error { return writeString(buf, t.Symbol) },
		func() error { return binary.Write(buf, binary.BigEndian, t.Quantity) },
		func() error { return binary.Write(buf, binary.BigEndian, int64(t.PriceMantissa)) },
		func() error { return binary.Write(buf, binary.BigEndian, code) },
		func() error { return binary.Write(buf, binary.BigEndian, t.ExecTS.UnixNano()) },
		func() error { return writeString(buf, t.OrderID) },
		func() error { return writeString(buf, t.ClientOrderID) },
		func() error { return writeString(buf, t.TraderID) },
		func() error { return writeString(buf, t.Account) },
		func() error { return writeString(buf, t.Exchange) },
		func() error { return writeString(buf, t.GatewayID) },
		func() error { return writeString(buf, t.StrategyCode) },
		func() error { return binary.Write(buf, binary.BigEndian, t.ReceiveTS.UnixNano()) },
		func() error { return binary.Write(buf, binary.BigEndian, uint32(len(t.RawBytes))) },
	}
	for _, f := range fields {
		if err := f(); err != nil {
			return nil, fmt.Errorf("codec: encode trade: %w", err)
		}
	}
	buf.Write(t.RawBytes)
	return buf.Bytes(), nil
}

// DecodeTrade parses bytes produced by EncodeTrade back into a
// TradeEnvelope. A malformed or truncated buffer yields an error that
// internal/errtag classifies as DESERIALIZATION.
func DecodeTrade(data []byte) (*model.TradeEnvelope, error) {
	r := bytes.NewReader(data)
	t := &model.TradeEnvelope{}

	var err error
	if t.ExecID, err = readString(r); err != nil {
		return nil, fmt.Errorf("codec: decode exec_id: %w", err)
	}
	if t.Symbol, err = readString(r); err != nil {
		return nil, fmt.Errorf("codec: decode symbol: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &t.Quantity); err != nil {
		return nil, fmt.Errorf("codec: decode quantity: %w", err)
	}
	var priceRaw int64
	if err := binary.Read(r, binary.BigEndian, &priceRaw); err != nil {
		return nil, fmt.Errorf("codec: decode price: %w", err)
	}
	t.PriceMantissa = model.Mantissa(priceRaw)

	var code uint8
	if err := binary.Read(r, binary.BigEndian, &code); err != nil {
		return nil, fmt.Errorf("codec: decode side: %w", err)
	}
	side, ok := codeSide[code]
	if !ok {
		return nil, fmt.Errorf("codec: decode side: unknown code %d", code)
	}
	t.Side = side

	var execTSNano int64
	if err := binary.Read(r, binary.BigEndian, &execTSNano); err != nil {
		return nil, fmt.Errorf("codec: decode exec_ts: %w", err)
	}
	t.ExecTS = time.Unix(0, execTSNano).UTC()

	if t.OrderID, err = readString(r); err != nil {
		return nil, fmt.Errorf("codec: decode order_id: %w", err)
	}
	if t.ClientOrderID, err = readString(r); err != nil {
		return nil, fmt.Errorf("codec: decode client_order_id: %w", err)
	}
	if t.TraderID, err = readString(r); err != nil {
		return nil, fmt.Errorf("codec: decode trader_id: %w", err)
	}
	if t.Account, err = readString(r); err != nil {
		return nil, fmt.Errorf("codec: decode account: %w", err)
	}
	if t.Exchange, err = readString(r); err != nil {
		return nil, fmt.Errorf("codec: decode exchange: %w", err)
	}
	if t.GatewayID, err = readString(r); err != nil {
		return nil, fmt.Errorf("codec: decode gateway_id: %w", err)
	}
	if t.StrategyCode, err = readString(r); err != nil {
		return nil, fmt.Errorf("codec: decode strategy_code: %w", err)
	}

	var receiveTSNano int64
	if err := binary.Read(r, binary.BigEndian, &receiveTSNano); err != nil {
		return nil, fmt.Errorf("codec: decode receive_ts: %w", err)
	}
	t.ReceiveTS = time.Unix(0, receiveTSNano).UTC()

	var rawLen uint32
	if err := binary.Read(r, binary.BigEndian, &rawLen); err != nil {
		return nil, fmt.Errorf("codec: decode raw_bytes len: %w", err)
	}
	raw := make([]byte, rawLen)
	if rawLen > 0 {
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("codec: decode raw_bytes: %w", err)
		}
	}
	t.RawBytes = raw

	return t, nil
}
