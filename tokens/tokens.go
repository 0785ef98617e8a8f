// Package tokens holds the text normalization shared by the filter, the
// matchers and the full-text index, so that every layer folds and splits
// names the same way.
package tokens

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/token/camelcase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/character"
	"golang.org/x/text/cases"
)

// MinSubTokenLen is the shortest sub-token inserted into membership filters.
const MinSubTokenLen = 3

var (
	runTokenizer = character.NewCharacterTokenizer(isTokenRune)
	camelFilter  = camelcase.NewCamelCaseFilter()
	folder       = cases.Fold()
)

func isTokenRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Fold applies Unicode default case folding. ASCII input takes a fast path
// that only lowers A-Z.
func Fold(s string) string {
	ascii, upper := true, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= utf8.RuneSelf {
			ascii = false
			break
		}
		if 'A' <= c && c <= 'Z' {
			upper = true
		}
	}
	if ascii {
		if !upper {
			return s
		}
		b := make([]byte, len(s))
		for i := 0; i < len(s); i++ {
			c := s[i]
			if 'A' <= c && c <= 'Z' {
				c += 'a' - 'A'
			}
			b[i] = c
		}
		return string(b)
	}

	return folder.String(s)
}

// Runs splits s into maximal runs of letters and digits, unfolded.
func Runs(s string) []string {
	stream := runTokenizer.Tokenize([]byte(s))
	out := make([]string, 0, len(stream))
	for _, tok := range stream {
		out = append(out, string(tok.Term))
	}
	return out
}

// Words returns the folded index terms of a name: every letter/digit run,
// followed by its camelCase parts when the run has more than one.
func Words(s string) []string {
	runs := Runs(s)
	out := make([]string, 0, len(runs))
	for _, run := range runs {
		out = append(out, Fold(run))
		parts := camelFilter.Filter(analysis.TokenStream{&analysis.Token{Term: []byte(run)}})
		if len(parts) < 2 {
			continue
		}
		for _, p := range parts {
			if !isTokenRune(firstRune(p.Term)) {
				continue
			}
			out = append(out, Fold(string(p.Term)))
		}
	}
	return out
}

// SubTokens returns the folded runs of s that are at least MinSubTokenLen
// runes long.
func SubTokens(s string) []string {
	runs := Runs(Fold(s))
	out := runs[:0]
	for _, run := range runs {
		if utf8.RuneCountInString(run) >= MinSubTokenLen {
			out = append(out, run)
		}
	}
	return out
}

// Extension returns the folded extension of a leaf name without the dot.
// Names without a dot, or whose only dot is leading or trailing, have none.
func Extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return ""
	}
	return Fold(name[i+1:])
}

// Grams returns the rune n-grams of s. Strings shorter than n yield nothing.
func Grams(s string, n int) []string {
	if n <= 0 {
		return nil
	}
	offsets := make([]int, 0, len(s)+1)
	for i := range s {
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(s))
	runes := len(offsets) - 1
	if runes < n {
		return nil
	}
	out := make([]string, 0, runes-n+1)
	for i := 0; i+n <= runes; i++ {
		out = append(out, s[offsets[i]:offsets[i+n]])
	}
	return out
}

func firstRune(b []byte) rune {
	r, _ := utf8.DecodeRune(b)
	return r
}
