package recipient

import (
	"net/mail"
	"strings"
)

// denylist holds placeholder addresses that are never accepted as recipients.
var denylist = map[string]struct{}{
	"test@test.com":       {},
	"example@example.com": {},
	"admin@admin.com":     {},
}

// IsDenylisted reports whether the address is one of the known placeholder
// addresses. The comparison is case-insensitive.
func IsDenylisted(address string) bool {
	_, ok := denylist[strings.ToLower(strings.TrimSpace(address))]
	return ok
}

// IsValidAddress reports whether address is a bare RFC 5322 addr-spec with a
// dotted domain. Display names ("Bob <bob@example.com>") are rejected.
func IsValidAddress(address string) bool {
	if address == "" {
		return false
	}
	addr, err := mail.ParseAddress(address)
	if err != nil {
		return false
	}
	if addr.Name != "" || addr.Address != address {
		return false
	}
	at := strings.LastIndex(address, "@")
	if at <= 0 {
		return false
	}
	return IsValidDomain(address[at+1:])
}

// ExtractDomain extracts the domain part from an email address.
// Returns an empty string if the address does not contain an @ symbol.
func ExtractDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return email[at+1:]
}

// IsValidDomain performs basic domain format validation. It checks that the
// domain is non-empty, does not start or end with a dot, contains at least
// one dot separator, and that every label is made of letters, digits and
// inner hyphens with an alphabetic top-level label.
func IsValidDomain(domain string) bool {
	if domain == "" || len(domain) > 253 {
		return false
	}
	if strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return false
	}
	if !strings.Contains(domain, ".") {
		return false
	}

	labels := strings.Split(domain, ".")
	for _, label := range labels {
		if !isValidLabel(label) {
			return false
		}
	}

	tld := labels[len(labels)-1]
	if len(tld) < 2 {
		return false
	}
	for _, r := range tld {
		if !isLetter(r) {
			return false
		}
	}
	return true
}

func isValidLabel(label string) bool {
	if label == "" || len(label) > 63 {
		return false
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for _, r := range label {
		if !isLetter(r) && !(r >= '0' && r <= '9') && r != '-' {
			return false
		}
	}
	return true
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
