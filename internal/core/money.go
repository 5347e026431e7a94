// Package core provides decimal parsing and handling utilities.
//
// This file contains the functions used to turn user input into
// fixed-point decimal amounts and back into display strings.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// AmountPlaces is the number of fractional digits kept for prices and quantities.
const AmountPlaces = 2

// ParseDecimal converts a decimal string into a decimal rounded to AmountPlaces.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional leading sign. Rounding is half away from zero on the third decimal
// place. Range checks (positive, non-negative) belong to the caller's Validate.
//
// Examples:
//
//	ParseDecimal("12.34")  -> 12.34
//	ParseDecimal("12,345") -> 12.35
//	ParseDecimal("-1")     -> -1
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, Invalid("", "empty amount")
	}
	s = strings.ReplaceAll(s, ",", ".")

	sign := ""
	body := s
	if strings.HasPrefix(body, "+") || strings.HasPrefix(body, "-") {
		if body[0] == '-' {
			sign = "-"
		}
		body = body[1:]
	}
	parts := strings.Split(body, ".")
	if len(parts) > 2 || body == "" || body == "." {
		return decimal.Zero, Invalid("", "not a decimal number")
	}
	for _, p := range parts {
		for _, r := range p {
			if r > unicode.MaxASCII || !unicode.IsDigit(r) {
				return decimal.Zero, Invalid("", "not a decimal number")
			}
		}
	}
	if parts[0] == "" {
		parts[0] = "0"
	}
	normalized := sign + parts[0]
	if len(parts) == 2 && parts[1] != "" {
		normalized += "." + parts[1]
	}

	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, Invalid("", "not a decimal number")
	}
	return d.Round(AmountPlaces), nil
}

// ParseField is ParseDecimal with the error attributed to field.
func ParseField(field, s string) (decimal.Decimal, error) {
	d, err := ParseDecimal(s)
	if err != nil {
		return decimal.Zero, Invalid(field, "must be a decimal number")
	}
	return d, nil
}

// FormatAmount renders d with exactly AmountPlaces fractional digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountPlaces)
}
