// Package slug turns category names and requested category slugs into the
// lowercase hyphenated form used as registry keys.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldSpecial covers letters that do not decompose into an ASCII base plus a
// combining mark.
var foldSpecial = strings.NewReplacer(
	"ı", "i",
	"ß", "ss",
	"æ", "ae",
	"ø", "o",
	"đ", "d",
	"ł", "l",
	"œ", "oe",
	"&", " and ",
)

// Generate lowercases name, strips diacritics and joins the remaining runs of
// ASCII letters and digits with single hyphens.
//
//	"Kadın Giyim"        -> "kadin-giyim"
//	"Laptops & Tablets"  -> "laptops-and-tablets"
//	"  Électroménager  " -> "electromenager"
func Generate(name string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		strings.ToLower(name),
	)
	if err != nil {
		folded = strings.ToLower(name)
	}
	folded = foldSpecial.Replace(folded)

	var b strings.Builder
	b.Grow(len(folded))
	pendingHyphen := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}

// Valid reports whether s is already in canonical slug form.
func Valid(s string) bool {
	return s != "" && Generate(s) == s
}
