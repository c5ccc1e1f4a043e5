package liveness

import (
	"fmt"
	"regexp"
	"strings"
)

// phoneDigits is the length of a normalized phone: 2-digit area code + 9-digit number.
const phoneDigits = 11

// countryCode is stripped from international numbers before validation.
const countryCode = "55"

// emailPattern is a permissive local@domain.tld check.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Email is a validated, normalized email address.
type Email struct {
	value string
}

// ParseEmail trims and lower-cases raw and validates the result.
func ParseEmail(raw string) (Email, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" || !emailPattern.MatchString(normalized) {
		return Email{}, fmt.Errorf("%w: %q", ErrInvalidEmail, raw)
	}

	return Email{value: normalized}, nil
}

// String returns the normalized address.
func (e Email) String() string {
	return e.value
}

// IsZero reports whether the email was never parsed.
func (e Email) IsZero() bool {
	return e.value == ""
}

// Equal compares normalized values.
func (e Email) Equal(other Email) bool {
	return e.value == other.value
}

// Phone is a validated mobile number. Only the digits take part in
// comparisons; the original formatting is kept for display.
type Phone struct {
	// digits is the normalized 11-digit value.
	digits string
	// formatted is the trimmed input as provided by the user.
	formatted string
}

// ParsePhone keeps the digits of raw, drops a leading country code and
// requires exactly 11 digits.
func ParsePhone(raw string) (Phone, error) {
	formatted := strings.TrimSpace(raw)

	var b strings.Builder

	for _, r := range formatted {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	digits := b.String()
	if len(digits) == phoneDigits+len(countryCode) && strings.HasPrefix(digits, countryCode) {
		digits = digits[len(countryCode):]
	}

	if len(digits) != phoneDigits {
		return Phone{}, fmt.Errorf("%w: expected %d digits, got %d", ErrInvalidPhone, phoneDigits, len(digits))
	}

	return Phone{
		digits:    digits,
		formatted: formatted,
	}, nil
}

// Digits returns the normalized 11-digit value.
func (p Phone) Digits() string {
	return p.digits
}

// String returns the number as originally formatted.
func (p Phone) String() string {
	return p.formatted
}

// IsZero reports whether the phone was never parsed.
func (p Phone) IsZero() bool {
	return p.digits == ""
}

// Equal compares normalized digits only.
func (p Phone) Equal(other Phone) bool {
	return p.digits == other.digits
}
