// Package normalize holds the text and code normalization shared by the
// cleaners, the loaders and the search layer.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	substanceCodeRe = regexp.MustCompile(`^F1[0-9](\..+)?$`)
	nonWordRe       = regexp.MustCompile(`[^\p{L}\p{N}_]+`)
	underscoresRe   = regexp.MustCompile(`_+`)
	punctRe         = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
)

// StripAccents removes combining marks: "Año Único" → "Ano Unico".
func StripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Spaces collapses runs of whitespace and trims the result.
func Spaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Text strips accents and collapses whitespace but keeps case.
func Text(s string) string {
	return Spaces(StripAccents(s))
}

// HeaderKey turns a CSV column name into a comparable key:
// "Año de Defunción" → "ano_de_defuncion".
func HeaderKey(h string) string {
	h = strings.ToLower(StripAccents(strings.TrimSpace(h)))
	h = nonWordRe.ReplaceAllString(h, "_")
	h = underscoresRe.ReplaceAllString(h, "_")
	return strings.Trim(h, "_")
}

// Sentence is the canonical form of a corpus sentence: no accents,
// lower case, punctuation replaced by spaces, whitespace collapsed.
func Sentence(s string) string {
	s = strings.ToLower(StripAccents(s))
	s = punctRe.ReplaceAllString(s, " ")
	return Spaces(s)
}

// Code upper-cases and trims an ICD-10 code.
func Code(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// IsSubstanceCode reports whether code is in the F10–F19 block
// (roots and dotted subtypes).
func IsSubstanceCode(code string) bool {
	return substanceCodeRe.MatchString(code)
}

// RootCode returns the three-character root of an ICD-10 code: "F10.2" → "F10".
func RootCode(code string) string {
	if i := strings.IndexByte(code, '.'); i >= 0 {
		return code[:i]
	}
	return code
}
