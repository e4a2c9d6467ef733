package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestToDecimal(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		want   string
		wantOK bool
	}{
		{"float", 49.99, "49.99", true},
		{"int", 100, "100", true},
		{"numeric string", "49.99", "49.99", true},
		{"currency string", "$1,234.50", "1234.5", true},
		{"decimal wrapper", map[string]any{"$numberDecimal": "21.47"}, "21.47", true},
		{"decimal wrapper document", Document{"$numberDecimal": "3"}, "3", true},
		{"decimal value", decimal.RequireFromString("7.25"), "7.25", true},
		{"nil", nil, "0", false},
		{"empty string", "  ", "0", false},
		{"garbage", "abc", "0", false},
		{"wrapper without value", map[string]any{"other": "1"}, "0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToDecimal(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestFromMinorUnits(t *testing.T) {
	assert.True(t, decimal.RequireFromString("49.99").Equal(FromMinorUnits(decimal.NewFromInt(4999))))
}

func TestTolerance_Within(t *testing.T) {
	d := decimal.RequireFromString
	tests := []struct {
		name string
		tol  Tolerance
		a, b string
		want bool
	}{
		{"equal", DefaultTolerance(), "49.99", "49.99", true},
		{"nine cents apart", DefaultTolerance(), "50.00", "49.91", true},
		{"exactly ten cents is outside", DefaultTolerance(), "50.00", "49.90", false},
		{"zero absolute still accepts equality", Tolerance{}, "10", "10", true},
		{"zero absolute rejects any difference", Tolerance{}, "10", "10.01", false},
		{"relative window", Tolerance{Relative: d("0.01")}, "1000", "1009", true},
		{"outside relative window", Tolerance{Relative: d("0.01")}, "1000", "1011", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tol.Within(d(tt.a), d(tt.b)))
			assert.Equal(t, tt.want, tt.tol.Within(d(tt.b), d(tt.a)), "must be symmetric")
		})
	}
}
