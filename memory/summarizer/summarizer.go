// Package summarizer compresses a user/assistant exchange into a short,
// normalized fact used as a memory turn.
package summarizer

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/becomeliminal/nim-memory/memory"
)

var (
	urlPattern     = regexp.MustCompile(`https?://\S+|www\.\S+`)
	htmlPattern    = regexp.MustCompile(`<.*?>`)
	mentionPattern = regexp.MustCompile(`@\w+`)
	hashtagPattern = regexp.MustCompile(`#\w+`)
)

var emoticons = map[string]string{
	":)":  "smile",
	":-)": "smile",
	":(":  "sad",
	":-(": "sad",
}

// Cleaner normalizes free text for storage.
type Cleaner struct {
	// Stem applies the English Snowball stemmer. Default: true
	Stem bool
}

// Summarizer implements memory.Summarizer with a Cleaner.
type Summarizer struct {
	cleaner Cleaner
}

var _ memory.Summarizer = (*Summarizer)(nil)

// New creates a Summarizer with stemming enabled.
func New() *Summarizer {
	return &Summarizer{cleaner: Cleaner{Stem: true}}
}

// Summarize returns "User: <clean user>\nAssistant: <clean assistant>".
func (s *Summarizer) Summarize(userText, assistantText string) string {
	return "User: " + s.cleaner.Clean(userText) + "\nAssistant: " + s.cleaner.Clean(assistantText)
}

// Clean lowercases text, strips URLs, HTML tags, mentions and hashtags, maps
// emoticons to words, folds diacritics, removes punctuation, single letters
// and English stopwords, and optionally stems what remains.
func (c Cleaner) Clean(text string) string {
	text = strings.ToLower(text)
	text = urlPattern.ReplaceAllString(text, "")
	text = htmlPattern.ReplaceAllString(text, "")
	text = mentionPattern.ReplaceAllString(text, "")
	text = hashtagPattern.ReplaceAllString(text, "")

	words := strings.Fields(text)
	for i, w := range words {
		if mapped, ok := emoticons[w]; ok {
			words[i] = mapped
		}
	}
	text = foldDiacritics(strings.Join(words, " "))
	text = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '_' {
			return r
		}
		return -1
	}, text)

	out := make([]string, 0, len(words))
	for _, w := range strings.Fields(text) {
		if isSingleLetter(w) || stopwords[w] {
			continue
		}
		if c.Stem {
			w = english.Stem(w, false)
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}

// foldDiacritics strips combining marks: "café" becomes "cafe".
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

func isSingleLetter(w string) bool {
	r := []rune(w)
	return len(r) == 1 && unicode.IsLetter(r[0])
}
