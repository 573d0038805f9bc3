package nlrule

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var numberRE = regexp.MustCompile(`^-?\d+(?:\.\d+)?$`)

// normalizeSentence composes Unicode, collapses whitespace (including the
// non-ASCII spaces pasted from office documents) and drops trailing sentence
// punctuation. Casing is preserved so literal values keep the analyst's spelling.
func normalizeSentence(s string) string {
	s = norm.NFC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimRight(s, ".!;, ")
	return s
}

// fold returns the caseless form used for every comparison of words.
// A Caser is stateful, so a fresh one is used per call.
func fold(s string) string {
	return cases.Fold().String(s)
}

// foldKey is fold over a normalized phrase.
func foldKey(s string) string {
	return fold(strings.Join(strings.Fields(norm.NFC.String(s)), " "))
}

// cleanCapture trims a captured group down to the words that can name a field
// or a value: surrounding quotes, a leading article and trailing punctuation go.
func cleanCapture(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ".,;:!?")
	s = strings.Trim(s, "\"'`“”‘’")
	s = strings.TrimSpace(s)
	if len(s) > 4 && strings.EqualFold(s[:4], "the ") {
		s = strings.TrimSpace(s[4:])
	}
	return s
}

func isNumeric(s string) bool {
	return numberRE.MatchString(strings.TrimSpace(s))
}

// literal renders an assigned or compared value as expression text:
// numbers verbatim, everything else as a double-quoted string.
func literal(s string) string {
	if isNumeric(s) {
		return strings.TrimSpace(s)
	}
	return strconv.Quote(s)
}

// indexWord returns the byte index of the first occurrence of word in text at
// or after from that is not part of a longer word, or -1.
func indexWord(text, word string, from int) int {
	if word == "" {
		return -1
	}
	for from <= len(text) {
		i := strings.Index(text[from:], word)
		if i < 0 {
			return -1
		}
		start := from + i
		end := start + len(word)
		before, _ := utf8.DecodeLastRuneInString(text[:start])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if !isWordRune(before) && !isWordRune(after) {
			return start
		}
		from = start + 1
	}
	return -1
}

// isWordRune is false for utf8.RuneError, which the decoders return at either end of text.
func isWordRune(r rune) bool {
	if r == utf8.RuneError {
		return false
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func containsWord(text, word string) bool {
	return indexWord(text, word, 0) >= 0
}
