package identity

import (
	"strings"
)

const (
	DefaultCountryCode    = "90"
	DefaultNationalLength = 10
	suffixMatchLength     = 10
)

var addressPrefixes = []string{"whatsapp:", "sms:", "tel:"}

// PhoneNormalizer canonicalizes phone numbers for one home country.
type PhoneNormalizer struct {
	CountryCode    string
	NationalLength int
}

func NewPhoneNormalizer(countryCode string) PhoneNormalizer {
	countryCode = strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	return PhoneNormalizer{CountryCode: countryCode, NationalLength: DefaultNationalLength}
}

// Digits strips channel prefixes, separators and a leading plus.
func Digits(raw string) string {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)
	for _, prefix := range addressPrefixes {
		if strings.HasPrefix(lower, prefix) {
			s = s[len(prefix):]
			break
		}
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Canonical returns the number as country code plus national digits, or the
// bare digits when the input fits no known local shape.
func (n PhoneNormalizer) Canonical(raw string) string {
	digits := Digits(raw)
	cc := n.CountryCode
	national := n.NationalLength

	switch {
	case len(digits) == len(cc)+national && strings.HasPrefix(digits, cc):
		return digits
	case len(digits) == national+1 && strings.HasPrefix(digits, "0"):
		return cc + digits[1:]
	case len(digits) == national && !strings.HasPrefix(digits, "0"):
		return cc + digits
	default:
		return digits
	}
}

// Display renders the canonical number with a leading plus.
func (n PhoneNormalizer) Display(raw string) string {
	canonical := n.Canonical(raw)
	if canonical == "" {
		return ""
	}
	return "+" + canonical
}

// Variants lists the stored spellings one number may have: canonical, +canonical,
// subscriber number and 0+subscriber. Duplicates are removed, order kept.
func (n PhoneNormalizer) Variants(raw string) []string {
	canonical := n.Canonical(raw)
	if canonical == "" {
		return nil
	}

	candidates := []string{canonical, "+" + canonical}
	if strings.HasPrefix(canonical, n.CountryCode) && len(canonical) == len(n.CountryCode)+n.NationalLength {
		subscriber := canonical[len(n.CountryCode):]
		candidates = append(candidates, subscriber, "0"+subscriber)
	}

	seen := make(map[string]struct{}, len(candidates))
	variants := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		variants = append(variants, c)
	}
	return variants
}

// Suffix returns the last ten digits used for fuzzy matching, or "" when the
// number is too short to match safely.
func (n PhoneNormalizer) Suffix(raw string) string {
	digits := n.Canonical(raw)
	if len(digits) < suffixMatchLength {
		return ""
	}
	return digits[len(digits)-suffixMatchLength:]
}
