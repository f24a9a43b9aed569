package messaging

import (
	"strings"
	"unicode"
)

// NormalizePhone canonicalizes a sender identifier to bare international digits.
// Channel prefixes ("whatsapp:"), "+", spaces and punctuation are dropped, an
// international "00" prefix is removed and a single trunk "0" is replaced by
// defaultCountryCode. The function is idempotent.
func NormalizePhone(raw, defaultCountryCode string) string {
	s := strings.TrimSpace(raw)
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}

	var b strings.Builder
	for _, r := range s {
		if r <= unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, "00"):
		digits = strings.TrimLeft(digits, "0")
	case strings.HasPrefix(digits, "0"):
		cc := strings.TrimLeft(onlyDigits(defaultCountryCode), "0")
		if cc != "" {
			digits = cc + digits[1:]
		}
	}
	return digits
}

// ExtractText returns the trimmed body of a text message.
// ok is false for non-text messages and empty bodies.
func ExtractText(msg InboundMessage) (string, bool) {
	if msg.Type != MessageTypeText {
		return "", false
	}
	body := strings.TrimSpace(msg.Text)
	if body == "" {
		return "", false
	}
	return body, true
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
