// Package phone normalizes phone numbers to E.164.
package phone

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used for numbers written without a country code.
const DefaultRegion = "US"

// ErrInvalid is returned for input that cannot be a phone number.
var ErrInvalid = errors.New("invalid phone number")

// Normalize converts raw user or provider input into E.164 form.
// Only the number length is checked, not whether the number is assigned.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "sms:")
	raw = strings.TrimPrefix(raw, "tel:")
	if raw == "" {
		return "", ErrInvalid
	}

	digits := 0
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 10 {
		return "", fmt.Errorf("%w: need at least 10 digits", ErrInvalid)
	}

	num, err := phonenumbers.Parse(raw, DefaultRegion)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return "", fmt.Errorf("%w: not a possible number", ErrInvalid)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// Mask hides the middle digits of a number for logging.
func Mask(e164 string) string {
	if len(e164) <= 6 {
		return "***"
	}
	return e164[:len(e164)-7] + "***" + e164[len(e164)-4:]
}
