package imagery

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const maxStemRunes = 64

// FileStem turns a slide title into a file name stem. The same title always
// yields the same stem; titles that needed rewriting get a short hash suffix
// so two different titles cannot collide after sanitizing.
func FileStem(title string) string {
	title = norm.NFC.String(strings.TrimSpace(title))

	var b strings.Builder
	n := 0
	for _, r := range title {
		if n >= maxStemRunes {
			break
		}
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('_')
		default:
			continue
		}
		n++
	}
	stem := b.String()
	if stem == title && stem != "" {
		return stem
	}

	sum := sha1.Sum([]byte(title))
	suffix := hex.EncodeToString(sum[:4])
	if stem == "" {
		return "slide_" + suffix
	}
	return stem + "_" + suffix
}
