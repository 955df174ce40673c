// Package phone normalizes the textual phone number representations that show
// up in provider webhooks and in rows persisted by older versions of the
// platform. The canonical form used for matching is the bare national digit
// string; formatted variants exist only to match legacy storage and for
// display.
package phone

import (
	"fmt"
	"regexp"
	"strings"
)

var digitsRe = regexp.MustCompile(`\d+`)

// Digits strips everything but digits from the value.
func Digits(value string) string {
	if value == "" {
		return ""
	}
	return strings.Join(digitsRe.FindAllString(value, -1), "")
}

// National reduces a number to its canonical national digit string: all
// non-digits removed and a leading country-code 1 dropped when the result is
// 11 digits. This is the form stored in *_normalized columns and matched on.
func National(value string) string {
	digits := Digits(value)
	if len(digits) == 11 && strings.HasPrefix(digits, "1") {
		return digits[1:]
	}
	return digits
}

// E164 renders the value as +1XXXXXXXXXX when it reduces to ten national
// digits, otherwise +<digits>.
func E164(value string) string {
	digits := Digits(value)
	if digits == "" {
		return ""
	}
	if len(digits) == 10 {
		return "+1" + digits
	}
	return "+" + digits
}

// Variants returns the textual forms a number may have been stored under:
// the raw input, the national digits, the E.164 rendering, and the sloppy
// country-code prefixed forms. Rows written before normalization was
// introduced can carry any of these.
func Variants(value string) []string {
	raw := strings.TrimSpace(value)
	national := National(raw)
	candidates := []string{raw, national, "1" + national, E164(raw), "+" + Digits(raw)}
	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c == "" || c == "1" || c == "+" || c == "+1" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Pretty formats ten national digits as (AAA) BBB-CCCC for display. Anything
// else is returned trimmed as-is.
func Pretty(value string) string {
	national := National(value)
	if len(national) != 10 {
		return strings.TrimSpace(value)
	}
	return fmt.Sprintf("(%s) %s-%s", national[:3], national[3:6], national[6:])
}

// PlaceholderName derives a customer display name for a number we have never
// seen before.
func PlaceholderName(value string) string {
	pretty := Pretty(value)
	if pretty == "" {
		return "SMS Contact"
	}
	return "SMS Contact " + pretty
}
