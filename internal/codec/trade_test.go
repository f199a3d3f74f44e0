package codec

import (
	"testing"
	"time"

	"tradecore/internal/model"
)

func TestEncodeDecodeTradeRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		trade model.TradeEnvelope
	}{
		{
			name: "buy with raw bytes",
			trade: model.TradeEnvelope{
				ExecID:        "E1",
				Symbol:        "AAPL",
				Quantity:      100,
				PriceMantissa: 19050000000,
				Side:          model.SideBuy,
				ExecTS:        time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
				OrderID:       "O1",
				ClientOrderID: "C1",
				TraderID:      "T1",
				Account:       "ACC1",
				Exchange:      "NASDAQ",
				GatewayID:     "GW1",
				ReceiveTS:     time.Date(2026, 1, 2, 10, 0, 1, 0, time.UTC),
				RawBytes:      []byte{0x01, 0x02, 0x03},
			},
		},
		{
			name: "sell short with empty raw bytes",
			trade: model.TradeEnvelope{
				ExecID:        "E2",
				Symbol:        "MSFT",
				Quantity:      50,
				PriceMantissa: -12300000000,
				Side:          model.SideSellShort,
				ExecTS:        time.Unix(0, 0).UTC(),
				TraderID:      "T2",
				ReceiveTS:     time.Unix(0, 0).UTC(),
				RawBytes:      nil,
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := EncodeTrade(&tc.trade)
			if err != nil {
				t.Fatalf("EncodeTrade: %v", err)
			}
			decoded, err := DecodeTrade(encoded)
			if err != nil {
				t.Fatalf("DecodeTrade: %v", err)
			}
			if decoded.ExecID != tc.trade.ExecID || decoded.Symbol != tc.trade.Symbol ||
				decoded.Quantity != tc.trade.Quantity || decoded.PriceMantissa != tc.trade.PriceMantissa ||
				decoded.Side != tc.trade.Side || decoded.TraderID != tc.trade.TraderID {
				t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, tc.trade)
			}
			if !decoded.ExecTS.Equal(tc.trade.ExecTS) {
				t.Fatalf("exec_ts mismatch: got %v, want %v", decoded.ExecTS, tc.trade.ExecTS)
			}
			if len(decoded.RawBytes) != len(tc.trade.RawBytes) {
				t.Fatalf("raw_bytes length mismatch: got %d, want %d", len(decoded.RawBytes), len(tc.trade.RawBytes))
			}
		})
	}
}

func TestDecodeTradeTruncatedBuffer(t *testing.T) {
	if _, err := DecodeTrade([]byte{0x00}); err == nil {
		t.Fatal("expected error decoding truncated buffer, got nil")
	}
}

func TestEncodeTradeUnknownSide(t *testing.T) {
	tr := model.TradeEnvelope{ExecID: "E3", Side: model.Side("BOGUS")}
	if _, err := EncodeTrade(&tr); err == nil {
		t.Fatal("expected error encoding unknown side, got nil")
	}
}
