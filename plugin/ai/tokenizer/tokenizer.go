// Package tokenizer splits titles and synopses into comparable terms.
// Supports both CJK and alphabetic text.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Tokenizer handles text tokenization for similarity features.
type Tokenizer struct {
	// minTokenLen is the minimum rune length for an alphabetic token.
	minTokenLen int
	// stopWords are dropped after lower-casing.
	stopWords map[string]struct{}
}

// Option configures a Tokenizer.
type Option func(*Tokenizer)

// WithMinLength drops alphabetic tokens shorter than n runes.
// CJK characters are always kept.
func WithMinLength(n int) Option {
	return func(t *Tokenizer) {
		t.minTokenLen = n
	}
}

// WithStopWords drops the given words.
func WithStopWords(words ...string) Option {
	return func(t *Tokenizer) {
		for _, w := range words {
			t.stopWords[strings.ToLower(w)] = struct{}{}
		}
	}
}

// New creates a new Tokenizer instance.
func New(opts ...Option) *Tokenizer {
	t := &Tokenizer{
		minTokenLen: 1,
		stopWords:   map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Terms splits text into lower-cased terms in order, keeping repeats.
// Han characters are single-rune terms; other words split on anything that
// is not a letter or digit. Diacritics are folded.
func (t *Tokenizer) Terms(text string) []string {
	text = Fold(text)
	if text == "" {
		return nil
	}

	var terms []string
	var current strings.Builder
	flush := func() {
		if current.Len() == 0 {
			return
		}
		word := current.String()
		current.Reset()
		if utf8.RuneCountInString(word) < t.minTokenLen {
			return
		}
		if _, stop := t.stopWords[word]; stop {
			return
		}
		terms = append(terms, word)
	}

	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			terms = append(terms, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()

	return terms
}

// Tokenize returns the unique terms of text in first-seen order.
func (t *Tokenizer) Tokenize(text string) []string {
	terms := t.Terms(text)
	if len(terms) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(terms))
	tokens := terms[:0]
	for _, term := range terms {
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		tokens = append(tokens, term)
	}
	return tokens
}

// Set returns the terms of text as a set.
func (t *Tokenizer) Set(text string) map[string]struct{} {
	terms := t.Terms(text)
	set := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		set[term] = struct{}{}
	}
	return set
}

// Fold lower-cases s and strips combining marks ("Amélie" -> "amelie").
func Fold(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// NormalizeKey folds s and collapses every run of non-alphanumeric runes to a
// single space, so "Star Wars: Episode IV" and "star wars episode iv" match.
func NormalizeKey(s string) string {
	return strings.Join(New().Terms(s), " ")
}
