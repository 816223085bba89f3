// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when a number carries no country code.
const DefaultRegion = "NL"

var (
	ErrEmpty     = errors.New("phone number is empty")
	ErrInvalid   = errors.New("phone number is invalid")
	ErrNotMobile = errors.New("phone number is not a mobile number")
)

// NormalizeE164 formats a phone number to E.164. If parsing fails it returns
// the trimmed input unchanged.
func NormalizeE164(input string) string {
	normalized, err := Normalize(input, DefaultRegion)
	if err != nil {
		return strings.TrimSpace(input)
	}
	return normalized
}

// Normalize parses input in region and returns its E.164 form. A number
// written without a country code gets the region's code prepended.
func Normalize(input, region string) (string, error) {
	number, err := parse(input, region)
	if err != nil {
		return "", err
	}
	return phonenumbers.Format(number, phonenumbers.E164), nil
}

// NormalizeMobile is Normalize restricted to numbers the region metadata
// classifies as mobile.
func NormalizeMobile(input, region string) (string, error) {
	number, err := parse(input, region)
	if err != nil {
		return "", err
	}

	switch phonenumbers.GetNumberType(number) {
	case phonenumbers.MOBILE, phonenumbers.FIXED_LINE_OR_MOBILE:
		return phonenumbers.Format(number, phonenumbers.E164), nil
	default:
		return "", ErrNotMobile
	}
}

func parse(input, region string) (*phonenumbers.PhoneNumber, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, ErrEmpty
	}
	if region == "" {
		region = DefaultRegion
	}

	number, err := phonenumbers.Parse(trimmed, strings.ToUpper(region))
	if err != nil {
		return nil, ErrInvalid
	}
	if !phonenumbers.IsValidNumber(number) {
		return nil, ErrInvalid
	}
	return number, nil
}
