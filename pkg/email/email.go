// Package email normalizes and masks beneficiary e-mail addresses.
package email

import (
	"net/mail"
	"strings"
	"unicode"
)

// Normalize trims and lower-cases an address for comparison and storage.
func Normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Valid reports whether addr is a bare address such as "a@b.example".
func Valid(addr string) bool {
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return false
	}
	return parsed.Address == addr && strings.Contains(addr[strings.IndexByte(addr, '@')+1:], ".")
}

// Mask hides the local part for logs: "jane.doe@example.com" -> "j***@example.com".
func Mask(addr string) string {
	at := strings.IndexByte(addr, '@')
	if at <= 0 {
		return "***"
	}
	r := []rune(addr[:at])
	return string(r[0]) + "***" + addr[at:]
}

// DisplayName derives a greeting name from the local part when a beneficiary
// was added without one: "jane.doe@example.com" -> "Jane Doe".
func DisplayName(addr string) string {
	localPart := addr
	if at := strings.IndexByte(addr, '@'); at > 0 {
		localPart = addr[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return "Beneficiary"
	}

	for i, p := range parts {
		parts[i] = capitalize(p)
	}
	return strings.Join(parts, " ")
}

func capitalize(s string) string {
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
