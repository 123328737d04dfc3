package logging

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Phone creates a field that keeps only the last two digits of a number.
func Phone(key, phone string) zap.Field {
	return zap.String(key, MaskPhone(phone))
}

// Email creates a field that keeps the first letter and the domain.
func Email(key, email string) zap.Field {
	return zap.String(key, MaskEmail(email))
}

// MaskPhone masks all but the last two digits.
func MaskPhone(phone string) string {
	digits := make([]byte, 0, len(phone))
	for i := 0; i < len(phone); i++ {
		if phone[i] >= '0' && phone[i] <= '9' {
			digits = append(digits, phone[i])
		}
	}
	if len(digits) <= 2 {
		return strings.Repeat("*", len(digits))
	}
	return strings.Repeat("*", len(digits)-2) + string(digits[len(digits)-2:])
}

// MaskEmail masks the local part except its first character.
func MaskEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return strings.Repeat("*", len(email))
	}
	_, size := utf8.DecodeRuneInString(email)
	return email[:size] + "***" + email[at:]
}
