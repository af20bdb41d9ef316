package scrub

import "unicode"

// DefaultRules returns the rules for personal data and credentials that
// tenants tend to paste into problem descriptions.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "email",
			Description: "Email address",
			Pattern:     `[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`,
			Label:       "[EMAIL]",
		},
		{
			ID:          "payment-card",
			Description: "Payment card number",
			Pattern:     `\b(?:\d[ -]?){12,18}\d\b`,
			Label:       "[CARD]",
			Check:       luhn,
		},
		{
			ID:          "iban",
			Description: "IBAN-like account number",
			Pattern:     `\b[A-Z]{2}\d{2}(?: ?[A-Z0-9]{4}){2,7}(?: ?[A-Z0-9]{1,4})?\b`,
			Label:       "[ACCOUNT]",
		},
		{
			ID:          "phone",
			Description: "Phone number",
			Pattern:     `(?:\+\d{1,3}[ .\-]?)?(?:\(\d{2,4}\)[ .\-]?)?\d{2,4}[ .\-]\d{3,4}[ .\-]?\d{3,4}\b`,
			Label:       "[PHONE]",
		},
		{
			ID:          "api-key",
			Description: "API key assignment",
			Pattern:     `(?i)(?:api[_-]?key|apikey|access[_-]?token)\s*[:=]\s*['"]?[A-Za-z0-9_\-]{16,64}['"]?`,
			Keywords:    []string{"api", "token"},
			Label:       "[CREDENTIAL]",
		},
		{
			ID:          "provider-key",
			Description: "Prefixed provider key",
			Pattern:     `\b(?:sk-[A-Za-z0-9_\-]{20,}|sk_(?:live|test)_[A-Za-z0-9]{16,}|gh[pousr]_[A-Za-z0-9]{36})\b`,
			Label:       "[CREDENTIAL]",
		},
		{
			ID:          "password",
			Description: "Password or PIN",
			Pattern:     `(?i)\b(?:password|passwort|passwd|pwd|pin|code)\s*(?:is|[:=])\s*\S{3,}`,
			Keywords:    []string{"pass", "pwd", "pin", "code"},
			Label:       "[CREDENTIAL]",
		},
		{
			ID:          "bearer-token",
			Description: "Bearer token",
			Pattern:     `(?i)bearer\s+[A-Za-z0-9_\-\.=]{20,}`,
			Keywords:    []string{"bearer"},
			Label:       "[CREDENTIAL]",
		},
	}
}

// luhn reports whether the digits of s pass the Luhn checksum.
func luhn(s string) bool {
	sum, n := 0, 0
	for i := len(s) - 1; i >= 0; i-- {
		r := rune(s[i])
		if !unicode.IsDigit(r) {
			continue
		}
		d := int(r - '0')
		if n%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		n++
	}
	return n >= 13 && sum%10 == 0
}
