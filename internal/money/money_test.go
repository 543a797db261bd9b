package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestMulTruncatesTowardZero(t *testing.T) {
	// 0.00000001 * 0.5 = 0.000000005, must truncate to 0, not round up.
	got := Mul(d("0.00000001"), d("0.5"))
	assert.True(t, got.Equal(d("0")), "got %s", got)
}

func TestCommission(t *testing.T) {
	notional := d("50000")
	got := Commission(notional)
	assert.True(t, got.Equal(d("750")), "got %s", got)
}

func TestWithCommission(t *testing.T) {
	notional := d("50000")
	got := WithCommission(notional)
	assert.True(t, got.Equal(d("50750")), "got %s", got)
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := Parse("not-a-number")
	require.Error(t, err)
	var arithErr *ArithmeticError
	assert.ErrorAs(t, err, &arithErr)
}

func TestParseTruncatesExtraDigits(t *testing.T) {
	got, err := Parse("1.123456789")
	require.NoError(t, err)
	assert.True(t, got.Equal(d("1.12345678")), "got %s", got)
}

func TestMin(t *testing.T) {
	assert.True(t, Min(d("1"), d("2")).Equal(d("1")))
	assert.True(t, Min(d("2"), d("1")).Equal(d("1")))
}
