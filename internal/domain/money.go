package domain

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// DecimalWrapperKey is the key of the extended-JSON decimal wrapper
// ({"$numberDecimal": "49.99"}) found on legacy registration totals.
const DecimalWrapperKey = "$numberDecimal"

var minorUnitDivisor = decimal.NewFromInt(100)

// ToDecimal normalizes plain numbers, numeric strings (optionally carrying
// a currency symbol or thousands separators) and decimal wrapper objects.
func ToDecimal(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return val, true
	case *decimal.Decimal:
		if val == nil {
			return decimal.Zero, false
		}
		return *val, true
	case map[string]any:
		return ToDecimal(val[DecimalWrapperKey])
	case Document:
		return ToDecimal(val[DecimalWrapperKey])
	case string:
		s := strings.TrimSpace(val)
		s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}

// FromMinorUnits converts an amount expressed in cents to major units.
func FromMinorUnits(d decimal.Decimal) decimal.Decimal {
	return d.Div(minorUnitDivisor)
}

// Tolerance decides whether two monetary values agree. A difference
// strictly below Absolute always agrees; when Relative is positive, a
// difference up to Relative times the larger magnitude agrees as well.
type Tolerance struct {
	Absolute decimal.Decimal
	Relative decimal.Decimal
}

// DefaultTolerance is the ten-cent absolute window.
func DefaultTolerance() Tolerance {
	return Tolerance{Absolute: decimal.RequireFromString("0.10")}
}

// Within compares a and b under the tolerance.
func (t Tolerance) Within(a, b decimal.Decimal) bool {
	diff := a.Sub(b).Abs()
	if diff.IsZero() || diff.LessThan(t.Absolute) {
		return true
	}
	if t.Relative.IsPositive() {
		scale := decimal.Max(a.Abs(), b.Abs())
		return diff.LessThanOrEqual(scale.Mul(t.Relative))
	}
	return false
}
