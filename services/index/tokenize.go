package index

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/blevesearch/go-porterstemmer"
	"github.com/meghashyamc/glimpse/db/indexfile"
)

// Token is one normalized word plus the byte range it was cut from. Offsets
// always refer to the original text, never to the stemmed form.
type Token struct {
	Word  string
	Start int
	End   int
}

// TokenizerOptions are the normalization rules shared by build and query
// time. They are frozen into the index blob as part of its settings.
type TokenizerOptions struct {
	MinimumWordLength int
	Stemming          bool
	Stopwords         map[string]struct{}
}

// NewTokenizerOptions builds options from the settings stored in an index.
func NewTokenizerOptions(settings indexfile.Settings) TokenizerOptions {
	return TokenizerOptions{
		MinimumWordLength: int(settings.MinimumWordLength),
		Stemming:          settings.Stemming,
		Stopwords:         StopwordSet(settings.Stopwords),
	}
}

// StopwordSet converts a stopword list into a lookup set, lowercasing each
// entry so config capitalization doesn't matter.
func StopwordSet(words []string) map[string]struct{} {
	if len(words) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[strings.ToLower(word)] = struct{}{}
	}
	return set
}

// Tokenize splits text into normalized word tokens. It is deterministic and
// restartable: the same input always yields the same token sequence. Words
// are runs of letters and digits; everything else, including invalid UTF-8
// bytes, acts as a boundary, so a malformed byte never aborts tokenization.
func Tokenize(text string, opts TokenizerOptions) []Token {
	var tokens []Token
	start := -1

	flush := func(end int) {
		if start < 0 {
			return
		}
		if token, ok := normalizeToken(text[start:end], opts); ok {
			tokens = append(tokens, Token{Word: token, Start: start, End: end})
		}
	}

	for i := 0; i < len(text); {
		r, width := utf8.DecodeRuneInString(text[i:])
		if isWordRune(r, width) {
			if start < 0 {
				start = i
			}
		} else {
			flush(i)
			start = -1
		}
		i += width
	}
	flush(len(text))

	return tokens
}

// NormalizeWord applies the same case-folding and optional stemming that
// Tokenize applies, for callers that already hold a single word.
func NormalizeWord(word string, opts TokenizerOptions) string {
	word = strings.ToLower(word)
	if opts.Stemming {
		word = porterstemmer.StemString(word)
	}
	return word
}

func normalizeToken(raw string, opts TokenizerOptions) (string, bool) {
	word := strings.ToLower(raw)
	if utf8.RuneCountInString(word) < opts.MinimumWordLength {
		return "", false
	}
	if _, isStop := opts.Stopwords[word]; isStop {
		return "", false
	}
	if opts.Stemming {
		word = porterstemmer.StemString(word)
	}
	if word == "" {
		return "", false
	}
	return word, true
}

func isWordRune(r rune, width int) bool {
	if r == utf8.RuneError && width == 1 {
		// Invalid byte: treat as a boundary and continue.
		return false
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
