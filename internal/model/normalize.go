package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var symbolStripper = strings.NewReplacer(
	"®", "", "™", "", "©", "",
	"‘", "", "’", "", "'", "",
)

// NormalizeFlavor folds a flavor title into a comparison key: lower case,
// trademark symbols and apostrophes removed, accents stripped, and runs of
// non-alphanumerics collapsed to single spaces.
func NormalizeFlavor(title string) string {
	if title == "" {
		return ""
	}
	s := symbolStripper.Replace(strings.ToLower(title))

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}

	var b strings.Builder
	space := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
			space = false
			continue
		}
		space = true
	}
	return b.String()
}
