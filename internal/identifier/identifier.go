// Package identifier turns user-supplied phone numbers into network
// addresses of the form <digits>@<domain>.
package identifier

import "strings"

// Formatter normalizes phone numbers for one country and network domain.
type Formatter struct {
	CountryCode string // replaces a leading trunk prefix "0"
	Domain      string // e.g. "s.whatsapp.net"
}

// Format strips everything but digits, swaps a leading 0 for the country
// code and appends the domain. It never fails: garbage in yields an address
// the network will reject at send time.
func (f Formatter) Format(raw string) string {
	suffix := "@" + f.Domain
	raw = strings.TrimSuffix(strings.TrimSpace(raw), suffix)

	var b strings.Builder
	b.Grow(len(raw) + len(f.CountryCode) + len(suffix))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if strings.HasPrefix(digits, "0") {
		digits = f.CountryCode + digits[1:]
	}
	return digits + suffix
}
