// Package scan performs secondary analysis over open reports: a
// keyword/pattern analyzer re-checks report free text, and a bounded
// concurrency runner walks the open report backlog in paced batches,
// bumping the cached priority of reports that trip the analyzer.
package scan

import (
	"regexp"
	"strings"
	"unicode"
)

// defaultTerms seed the analyzer when no custom list is configured. Single
// words match on word boundaries; multi-word entries match as phrases.
var defaultTerms = []string{
	"kill yourself",
	"dox",
	"doxx",
	"swat",
	"csam",
	"underage",
	"sell accounts",
	"free followers",
}

// urlPattern matches http/https URLs, www. URLs, and bare-domain links.
// The bare-domain variant requires a trailing "/" to avoid false positives
// on version strings like "v2.0" or decimal numbers like "3.14".
var urlPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|\S+\.(com|net|org|io|co|xyz|info|biz|ru|cn|tk|ml|ga|cf)/\S*)`)

// Result is the outcome of one analyzer pass.
type Result struct {
	Flagged bool
	Reason  string // "blocked_keyword" or "spam_link"
	Term    string // the matched term, empty for pattern hits
}

// Analyzer screens report text for escalation-worthy terms and spam links.
// It is immutable after construction and safe for concurrent use.
type Analyzer struct {
	words   map[string]bool // single terms, matched on word boundaries
	phrases []string        // multi-word terms, matched on normalized text
}

// NewAnalyzer creates an analyzer with the default term list.
func NewAnalyzer() *Analyzer {
	return NewAnalyzerWithTerms(defaultTerms)
}

// NewAnalyzerWithTerms creates an analyzer with a custom term list.
func NewAnalyzerWithTerms(terms []string) *Analyzer {
	a := &Analyzer{words: make(map[string]bool)}
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if strings.ContainsRune(term, ' ') {
			a.phrases = append(a.phrases, term)
		} else {
			a.words[term] = true
		}
	}
	return a
}

// Check screens one piece of report text. Keyword hits win over pattern
// hits so the more specific reason reaches the reviewer.
func (a *Analyzer) Check(text string) Result {
	normalized := normalize(text)

	for _, word := range strings.Fields(normalized) {
		if a.words[word] {
			return Result{Flagged: true, Reason: "blocked_keyword", Term: word}
		}
	}
	for _, phrase := range a.phrases {
		if strings.Contains(normalized, phrase) {
			return Result{Flagged: true, Reason: "blocked_keyword", Term: phrase}
		}
	}
	if urlPattern.MatchString(text) {
		return Result{Flagged: true, Reason: "spam_link"}
	}
	return Result{}
}

// normalize lowercases the text and strips punctuation so "BadWord!"
// matches "badword" while "mybadword" does not.
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return b.String()
}
