// Package phone converts between user supplied numbers, WhatsApp
// addressable identifiers and diallable display numbers.
//
// Numbers are assumed to start with a 2-digit country code followed by a
// 2-digit area code (the Brazilian convention).  Mobile numbers carry an
// extra leading "9" that WhatsApp identifiers historically omit.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
	"go.mau.fi/whatsmeow/types"
)

const (
	countryCodeLen = 2
	areaCodeLen    = 2
	prefixLen      = countryCodeLen + areaCodeLen
)

// DigitsOnly drops every non-digit rune.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StripMobilePrefixDigit returns the digits of input with the mobile "9"
// removed when exactly nine digits follow the prefix.  Other lengths are
// returned unchanged.
func StripMobilePrefixDigit(input string) string {
	digits := DigitsOnly(input)
	if len(digits)-prefixLen == 9 {
		return digits[:prefixLen] + digits[prefixLen+1:]
	}
	return digits
}

// ToDisplayNumber returns "+" and the digits of input, inserting the
// mobile "9" when exactly eight digits follow the prefix.
func ToDisplayNumber(input string) string {
	digits := DigitsOnly(input)
	if len(digits)-prefixLen == 8 {
		digits = digits[:prefixLen] + "9" + digits[prefixLen:]
	}
	return "+" + digits
}

// ChatJID is the WhatsApp user identifier for a raw number.
func ChatJID(input string) types.JID {
	return types.NewJID(StripMobilePrefixDigit(input), types.DefaultUserServer)
}

// Candidates lists the JIDs a number may be registered under, the
// ChatJID form first.  Brazilian mobile numbers are tried with and
// without the "9".
func Candidates(input string) []types.JID {
	first := ChatJID(input)
	out := []types.JID{first}
	seen := map[string]bool{first.User: true}
	for _, n := range candidatesBR(normalizeE164(input)) {
		d := DigitsOnly(n)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, types.NewJID(d, types.DefaultUserServer))
	}
	return out
}

func normalizeE164(input string) string {
	in := strings.TrimSpace(input)
	// Region BR helps when input is national format without +55
	region := "BR"
	if strings.HasPrefix(in, "+") {
		region = ""
	} else if d := DigitsOnly(in); strings.HasPrefix(d, "55") && len(d) >= 12 {
		in = "+" + d
		region = ""
	}
	num, err := phonenumbers.Parse(in, region)
	if err != nil {
		return ""
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// candidatesBR: for +55 DDD local, try as given, with 9, and without 9.
func candidatesBR(pnE164 string) []string {
	if !strings.HasPrefix(pnE164, "+55") || len(pnE164) < 5 {
		return []string{pnE164}
	}
	rest := pnE164[3:]
	if len(rest) < 10 {
		return []string{pnE164}
	}
	ddd := rest[:2]
	local := rest[2:]
	with9 := pnE164
	if !strings.HasPrefix(local, "9") {
		with9 = "+55" + ddd + "9" + local
	}
	without9 := pnE164
	if strings.HasPrefix(local, "9") && len(local) >= 9 {
		without9 = "+55" + ddd + local[1:]
	}
	return []string{pnE164, with9, without9}
}
