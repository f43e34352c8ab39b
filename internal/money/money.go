package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
)

// Cent is the smallest representable amount.
var Cent = decimal.New(1, -2)

// Parse reads a user supplied amount such as "123.45" or "-10". At most two
// fractional digits are accepted.
func Parse(input string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if value.Exponent() < -2 && !value.Equal(value.Round(2)) {
		return decimal.Zero, ErrTooManyDecimals
	}
	return value.Round(2), nil
}

func Format(value decimal.Decimal) string {
	return value.StringFixed(2)
}

// Round brings a value to the two-digit scale used for every stored amount.
func Round(value decimal.Decimal) decimal.Decimal {
	return value.Round(2)
}

// Split divides total into count equal parts rounded to cents. The rounding
// remainder is not redistributed, so the parts may differ from total by up to
// (count-1) cents.
func Split(total decimal.Decimal, count int) decimal.Decimal {
	if count <= 1 {
		return Round(total)
	}
	return total.Div(decimal.NewFromInt(int64(count))).Round(2)
}

// Shares splits total into count parts that add up to total exactly. Every
// part is truncated to cents and the last one absorbs the remainder.
func Shares(total decimal.Decimal, count int) []decimal.Decimal {
	if count < 1 {
		return nil
	}
	total = Round(total)
	part := total.Div(decimal.NewFromInt(int64(count))).Truncate(2)
	parts := make([]decimal.Decimal, count)
	for i := range parts {
		parts[i] = part
	}
	parts[count-1] = total.Sub(part.Mul(decimal.NewFromInt(int64(count - 1))))
	return parts
}

// WithinCent reports whether a and b differ by at most one cent.
func WithinCent(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Cent)
}

// Positive reports whether value is strictly greater than zero.
func Positive(value decimal.Decimal) bool {
	return value.GreaterThan(decimal.Zero)
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Sum adds values together.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, value := range values {
		total = total.Add(value)
	}
	return total
}
