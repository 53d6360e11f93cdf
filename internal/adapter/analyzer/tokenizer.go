package analyzer

import (
	"strings"
	"unicode"
)

// Tokenizer turns a log line into features for hashing embedders.
// Digit runs collapse to a single "0" so timestamps, ports and ids do not
// make otherwise identical lines look different.
type Tokenizer struct {
	ngram     int
	stopwords map[string]struct{}
}

// NewTokenizer creates a Tokenizer emitting character n-grams of size ngram
// in addition to word and symbol features. ngram < 2 disables n-grams.
func NewTokenizer(ngram int) *Tokenizer {
	return &Tokenizer{
		ngram:     ngram,
		stopwords: defaultStopwords(),
	}
}

// Normalize lowercases text and collapses digit runs.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inDigits := false
	for _, r := range text {
		if unicode.IsDigit(r) {
			if !inDigits {
				b.WriteByte('0')
			}
			inDigits = true
			continue
		}
		inDigits = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Tokenize returns word tokens with stopwords removed.
func (t *Tokenizer) Tokenize(text string) []string {
	words := splitWords(Normalize(text))
	tokens := make([]string, 0, len(words))

	for _, word := range words {
		if len(word) < 2 {
			continue
		}
		if _, isStop := t.stopwords[word]; isStop {
			continue
		}
		tokens = append(tokens, word)
	}

	return tokens
}

// Features returns prefixed word ("w:"), symbol ("s:") and n-gram ("g:")
// features. Quotes, angle brackets and dot-dot runs survive as symbol features.
func (t *Tokenizer) Features(text string) []string {
	norm := Normalize(strings.TrimSpace(text))
	if norm == "" {
		return nil
	}

	var features []string
	for _, w := range t.Tokenize(norm) {
		features = append(features, "w:"+w)
	}
	for _, s := range splitSymbols(norm) {
		features = append(features, "s:"+s)
	}

	if t.ngram >= 2 {
		runes := []rune(" " + norm + " ")
		for i := 0; i+t.ngram <= len(runes); i++ {
			features = append(features, "g:"+string(runes[i:i+t.ngram]))
		}
	}

	return features
}

// splitWords splits text into words using unicode word boundaries.
func splitWords(text string) []string {
	var words []string
	var current strings.Builder

	for _, r := range text {
		if isWordRune(r) {
			current.WriteRune(r)
		} else {
			if current.Len() > 0 {
				words = append(words, current.String())
				current.Reset()
			}
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}

	return words
}

// splitSymbols returns runs of punctuation, ignoring whitespace.
func splitSymbols(text string) []string {
	var runs []string
	var current strings.Builder

	for _, r := range text {
		if !isWordRune(r) && !unicode.IsSpace(r) {
			current.WriteRune(r)
			continue
		}
		if current.Len() > 0 {
			runs = append(runs, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		runs = append(runs, current.String())
	}

	return runs
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// defaultStopwords covers filler that shows up in most log lines.
func defaultStopwords() map[string]struct{} {
	stops := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "in", "is", "it", "of", "on", "the", "to", "was",
		"with",
	}
	m := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		m[s] = struct{}{}
	}
	return m
}
