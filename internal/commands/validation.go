package commands

import (
	"bond-alert-bot/lib/translation"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var isinPattern = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)

var plainDecimal = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ValidationError is returned for user input rejected before it reaches
// the store or the price endpoint. Field "usage" carries the command name
// in Value.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Value
}

// Message is the MarkdownV2 text explaining the rejection to the user
func (e *ValidationError) Message() string {
	switch e.Field {
	case "isin":
		return translation.Markdown("invalid_isin", e.Value)
	case "price":
		return translation.Markdown("invalid_price", e.Value)
	}
	return translation.Markdown(e.Value + "_usage")
}

// ParseISIN trims and upper-cases s and checks it is a well formed ISIN
func ParseISIN(s string) (string, error) {
	isin := strings.ToUpper(strings.TrimSpace(s))
	if !isinPattern.MatchString(isin) {
		return "", &ValidationError{Field: "isin", Value: strings.TrimSpace(s)}
	}
	return isin, nil
}

// ParsePrice accepts a positive dot-decimal number. Comma decimals,
// exponents and signs are rejected.
func ParsePrice(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if !plainDecimal.MatchString(s) {
		return 0, &ValidationError{Field: "price", Value: s}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, &ValidationError{Field: "price", Value: s}
	}
	return v, nil
}

// parseAlertArgs splits "<ISIN> <price>"
func parseAlertArgs(args string) (string, float64, error) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return "", 0, &ValidationError{Field: "usage", Value: "alert"}
	}
	isin, err := ParseISIN(fields[0])
	if err != nil {
		return "", 0, err
	}
	target, err := ParsePrice(fields[1])
	if err != nil {
		return "", 0, err
	}
	return isin, target, nil
}

func requireISIN(command, args string) (string, error) {
	if strings.TrimSpace(args) == "" {
		return "", &ValidationError{Field: "usage", Value: command}
	}
	return ParseISIN(args)
}
