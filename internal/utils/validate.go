package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MinPasswordLength = 8
	// MaxPasswordBytes is the bcrypt input limit.
	MaxPasswordBytes = 72
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizePhone strips everything but digits and maps Russian numbers to the 7XXXXXXXXXX form.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, "8"):
		return "7" + digits[1:]
	case strings.HasPrefix(digits, "7"):
		return digits
	case len(digits) == 10:
		return "7" + digits
	}
	return digits
}

func ValidPhone(phone string) bool {
	n := NormalizePhone(phone)
	return len(n) == 11 && n[0] == '7'
}

// FormatPhone renders a normalized number as +7 (XXX) XXX-XX-XX.
func FormatPhone(phone string) string {
	n := NormalizePhone(phone)
	if len(n) != 11 {
		return phone
	}
	return "+7 (" + n[1:4] + ") " + n[4:7] + "-" + n[7:9] + "-" + n[9:11]
}

// MaskPhone hides the middle digits for logs: 79123456789 -> 7912*****89.
func MaskPhone(phone string) string {
	if len(phone) < 7 {
		return strings.Repeat("*", len(phone))
	}
	return phone[:4] + strings.Repeat("*", len(phone)-6) + phone[len(phone)-2:]
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidEmail(email string) bool {
	return emailRe.MatchString(strings.TrimSpace(email))
}

// IsLoginPhone classifies a login identifier: anything without '@' is a phone.
func IsLoginPhone(login string) bool {
	return !strings.Contains(login, "@")
}

// IsPasswordStrong requires MinPasswordLength characters, at most MaxPasswordBytes bytes,
// with a Latin upper case letter, a Latin lower case letter and an ASCII digit.
// Other characters are allowed but count for nothing.
func IsPasswordStrong(password string) bool {
	if utf8.RuneCountInString(password) < MinPasswordLength || PasswordTooLong(password) {
		return false
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	return upper && lower && digit
}

func PasswordTooLong(password string) bool {
	return len(password) > MaxPasswordBytes
}
