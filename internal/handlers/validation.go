package handlers

import (
	"errors"
	"strings"
	"time"

	"finance/internal/money"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

var (
	errInvalidAmount = errors.New("invalid amount")
	errInvalidDate   = errors.New("invalid date, expected YYYY-MM-DD")
)

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := money.Parse(raw)
	if err != nil {
		return decimal.Zero, errInvalidAmount
	}
	return amount, nil
}

func parseOptionalAmount(raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	amount, err := parseAmount(*raw)
	if err != nil {
		return nil, err
	}
	return &amount, nil
}

// parseDate reads a calendar date. An empty value yields the fallback.
func parseDate(raw string, fallback time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	date, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, errInvalidDate
	}
	return date, nil
}

func parseOptionalDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	date, err := parseDate(*raw, time.Time{})
	if err != nil {
		return nil, err
	}
	return &date, nil
}
