package ingestion

import (
	"fmt"
	"math"
	"time"

	"tradecore/internal/errtag"
	"tradecore/internal/model"
)

// clockSkew bounds how far receive_ts may precede exec_ts, allowing for
// minor clock drift between the exchange gateway and this service.
const clockSkew = 2 * time.Second

// Validate checks the required fields of a trade envelope before it is
// archived, encoded, and published. A non-nil error is always classified
// errtag.Validation.
func Validate(t *model.TradeEnvelope, now time.Time) error {
	switch {
	case t.ExecID == "":
		return errtag.Tag(errtag.Validation, fmt.Errorf("ingestion: empty exec_id"))
	case t.Symbol == "":
		return errtag.Tag(errtag.Validation, fmt.Errorf("ingestion: empty symbol"))
	case t.TraderID == "":
		return errtag.Tag(errtag.Validation, fmt.Errorf("ingestion: empty trader_id"))
	case t.Account == "":
		return errtag.Tag(errtag.Validation, fmt.Errorf("ingestion: empty account"))
	case t.Exchange == "":
		return errtag.Tag(errtag.Validation, fmt.Errorf("ingestion: empty exchange"))
	case t.Quantity <= 0:
		return errtag.Tag(errtag.Validation, fmt.Errorf("ingestion: quantity must be > 0, got %d", t.Quantity))
	case t.PriceMantissa <= 0:
		return errtag.Tag(errtag.Validation, fmt.Errorf("ingestion: price_mantissa must be > 0, got %d", t.PriceMantissa))
	case !t.Side.Valid():
		return errtag.Tag(errtag.Validation, fmt.Errorf("ingestion: unrecognized side %q", t.Side))
	case t.ExecTS.IsZero():
		return errtag.Tag(errtag.Validation, fmt.Errorf("ingestion: exec_ts is zero"))
	case t.ReceiveTS.IsZero():
		return errtag.Tag(errtag.Validation, fmt.Errorf("ingestion: receive_ts is zero"))
	case t.ReceiveTS.Before(t.ExecTS.Add(-clockSkew)):
		return errtag.Tag(errtag.Validation, fmt.Errorf("ingestion: receive_ts %s precedes exec_ts %s beyond clock skew", t.ReceiveTS, t.ExecTS))
	case t.ReceiveTS.After(now):
		return errtag.Tag(errtag.Validation, fmt.Errorf("ingestion: receive_ts %s is in the future", t.ReceiveTS))
	}
	return nil
}

// ScaleMantissa converts a decimal price to a mantissa value using
// round-half-to-even (banker's rounding) at the 10^8 scale, per spec's
// numeric policy for prices arriving in decimal form.
func ScaleMantissa(decimal float64) (model.Mantissa, error) {
	scaled := decimal * model.MantissaScale
	if scaled > 9.2e18 || scaled < -9.2e18 {
		return 0, errtag.Tag(errtag.Validation, fmt.Errorf("ingestion: price %v overflows mantissa range", decimal))
	}
	return model.Mantissa(roundHalfEven(scaled)), nil
}

func roundHalfEven(v float64) int64 {
	floor := int64(math.Floor(v))
	diff := v - float64(floor)
	switch {
	case diff < 0.5:
		return floor
	case diff > 0.5:
		return floor + 1
	default:
		if floor%2 == 0 {
			return floor
		}
		return floor + 1
	}
}
