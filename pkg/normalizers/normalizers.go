// Package normalizers provides name canonicalization for catalog matching
package normalizers

import (
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("strip_diacritics", StripDiacritics)
	Register("strip_punctuation", StripPunctuation)
	Register("collapse_whitespace", CollapseWhitespace)
	Register("nitem", NormalizeItemName)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		if fn, ok := registry[name]; ok {
			result = fn(result)
		}
	}
	return result
}

// fillerTokens are generic descriptors that carry no disambiguating signal
// between the scrape and vision pipelines. Replaceable via SetFillerTokens.
var fillerTokens = map[string]struct{}{
	"fresh":       {},
	"homemade":    {},
	"organic":     {},
	"classic":     {},
	"traditional": {},
	"special":     {},
	"signature":   {},
}

// SetFillerTokens replaces the filler token set used by NormalizeItemName.
func SetFillerTokens(tokens []string) {
	next := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		next[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	fillerTokens = next
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// diacriticFold maps common accented Latin runes to their base letters.
var diacriticFold = map[rune]rune{
	'à': 'a', 'á': 'a', 'â': 'a', 'ã': 'a', 'ä': 'a', 'å': 'a',
	'è': 'e', 'é': 'e', 'ê': 'e', 'ë': 'e',
	'ì': 'i', 'í': 'i', 'î': 'i', 'ï': 'i',
	'ò': 'o', 'ó': 'o', 'ô': 'o', 'õ': 'o', 'ö': 'o', 'ø': 'o',
	'ù': 'u', 'ú': 'u', 'û': 'u', 'ü': 'u',
	'ç': 'c', 'ñ': 'n', 'ý': 'y', 'ÿ': 'y', 'š': 's', 'ž': 'z',
}

// StripDiacritics folds accented characters to their base letters. Unknown
// runes pass through unchanged.
func StripDiacritics(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if base, ok := diacriticFold[r]; ok {
			result.WriteRune(base)
		} else if base, ok := diacriticFold[unicode.ToLower(r)]; ok {
			result.WriteRune(unicode.ToUpper(base))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// StripPunctuation removes punctuation and symbol characters
func StripPunctuation(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// CollapseWhitespace collapses runs of whitespace to single spaces
func CollapseWhitespace(s string) string {
	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
		} else {
			result.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(result.String())
}

// NormalizeItemName canonicalizes a free-text item name for comparison between
// the scraped catalog and vision hints:
// - Lowercase
// - Fold diacritics
// - Remove punctuation
// - Drop filler tokens
// - Collapse whitespace, trim
// Never errors; empty input normalizes to the empty string.
func NormalizeItemName(s string) string {
	s = strings.ToLower(s)
	s = StripDiacritics(s)
	s = StripPunctuation(s)
	s = CollapseWhitespace(s)

	if s == "" {
		return ""
	}

	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if _, skip := fillerTokens[f]; !skip {
			kept = append(kept, f)
		}
	}

	// A name made entirely of filler still has to compare as itself.
	if len(kept) == 0 {
		return strings.Join(fields, " ")
	}

	return strings.Join(kept, " ")
}
