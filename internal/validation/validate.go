// Package validation holds pure input checks for citizen-supplied fields.
package validation

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode"
)

// Validation errors.
var (
	// ErrEmpty indicates a required text value was blank.
	ErrEmpty = errors.New("value cannot be empty")

	// ErrInvalidPhone indicates a phone number is not a Nepali mobile number.
	ErrInvalidPhone = errors.New("invalid phone number")

	// ErrInvalidEmail indicates an email address is malformed.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrTooLong indicates text exceeded the configured maximum.
	ErrTooLong = errors.New("value too long")
)

// mobilePattern accepts 10-digit mobile numbers starting with 9, with an
// optional +977/977 country prefix, after separators are stripped.
var mobilePattern = regexp.MustCompile(`^(?:\+?977)?(9\d{9})$`)

// separators are dropped before matching.
var separators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

const countryPrefix = "+977"

// Phone validates a mobile number and returns it in +977XXXXXXXXXX form.
func Phone(raw string) (string, error) {
	s := separators.Replace(strings.TrimSpace(raw))
	if s == "" {
		return "", ErrEmpty
	}
	m := mobilePattern.FindStringSubmatch(s)
	if m == nil {
		return "", fmt.Errorf("%w: expected 10 digits starting with 9", ErrInvalidPhone)
	}
	return countryPrefix + m[1], nil
}

// Email validates an address and returns the bare, lowercased address.
// Display names ("Ram <ram@x.np>") are rejected.
func Email(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrEmpty
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	at := strings.LastIndexByte(s, '@')
	domain := s[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return "", fmt.Errorf("%w: domain %q", ErrInvalidEmail, domain)
	}
	return strings.ToLower(s), nil
}

// NonEmpty trims text and rejects values that contain no letters or digits.
func NonEmpty(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return s, nil
		}
	}
	return "", ErrEmpty
}

// MaxLen rejects text longer than max runes. max <= 0 disables the check.
func MaxLen(s string, max int) error {
	if max > 0 && len([]rune(s)) > max {
		return fmt.Errorf("%w: %d characters (max %d)", ErrTooLong, len([]rune(s)), max)
	}
	return nil
}

// Name validates a full name: non-empty, at most 120 characters.
func Name(raw string) (string, error) {
	s, err := NonEmpty(raw)
	if err != nil {
		return "", err
	}
	if err := MaxLen(s, 120); err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(s), " "), nil
}
