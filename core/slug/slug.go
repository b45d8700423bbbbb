// Package slug turns titles into URL-safe slugs and finds free variants.
package slug

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrExhausted is returned by Allocate when every candidate is taken.
var ErrExhausted = errors.New("no free slug candidate")

var (
	invalidChars = regexp.MustCompile(`[^a-z0-9-]+`)
	dashes       = regexp.MustCompile(`-+`)
)

// replacements covers letters that do not decompose into base + mark.
var replacements = strings.NewReplacer(
	"ß", "ss", "æ", "ae", "Æ", "ae", "ø", "o", "Ø", "o",
	"đ", "d", "Đ", "d", "ł", "l", "Ł", "l", "œ", "oe", "Œ", "oe",
	"&", " and ",
)

// Make converts text into a slug: diacritics removed, lowercase, runs of
// anything other than a-z and 0-9 collapsed into one dash.
//
//	"Café & Bar"      -> "cafe-and-bar"
//	"Nguyễn Nhật Ánh" -> "nguyen-nhat-anh"
func Make(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	ascii, _, err := transform.String(t, replacements.Replace(text))
	if err != nil {
		ascii = text
	}

	s := strings.ToLower(ascii)
	s = invalidChars.ReplaceAllString(s, "-")
	s = dashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Candidate returns the n-th candidate for base: base itself for n <= 1,
// then base-2, base-3 and so on.
func Candidate(base string, n int) string {
	if n <= 1 {
		return base
	}
	return base + "-" + strconv.Itoa(n)
}

// TakenFunc reports whether a candidate is already in use.
type TakenFunc func(ctx context.Context, candidate string) (bool, error)

// Allocate returns the first candidate of base that is not taken, trying at
// most attempts candidates.
func Allocate(ctx context.Context, base string, attempts int, taken TakenFunc) (string, error) {
	if attempts < 1 {
		attempts = 1
	}
	for n := 1; n <= attempts; n++ {
		c := Candidate(base, n)
		used, err := taken(ctx, c)
		if err != nil {
			return "", err
		}
		if !used {
			return c, nil
		}
	}
	return "", ErrExhausted
}
