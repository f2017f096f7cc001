// Package wakeword spots a configured wake phrase in noisy recognizer text.
//
// A [Matcher] applies a fixed sequence of rules and stops at the first that
// succeeds:
//
//  1. Exact: the candidate equals the phrase.
//  2. Substring: the phrase occurs verbatim inside the candidate.
//  3. AllTokens: every phrase word occurs somewhere among the candidate's
//     words, in any order. Permissive; disable with WithAllTokens(false).
//  4. FuzzyWindow: some run of consecutive candidate words aligns with the
//     phrase words one to one, each pair within the phrase's edit distance.
//  5. Phonetic (off by default): as FuzzyWindow, but pairs must share a
//     Double Metaphone code and be Jaro-Winkler similar.
//
// Candidates must be normalized with [Normalize] first. A Matcher is
// read-only after construction and safe for concurrent use.
package wakeword

import (
	"errors"
	"slices"
	"strings"
)

// DefaultMaxDistance is the per-word edit distance tolerated by the fuzzy
// rule when none is configured.
const DefaultMaxDistance = 2

// ErrEmptyPhrase is returned by [NewPhrase] for a phrase with no words.
var ErrEmptyPhrase = errors.New("wakeword: phrase must contain at least one word")

// Normalize lowercases text and collapses runs of whitespace to single
// spaces.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Phrase is an immutable, normalized wake phrase.
type Phrase struct {
	text        string
	tokens      []string
	maxDistance int
}

// NewPhrase normalizes text and pairs it with the per-word edit distance
// tolerance. A negative maxDistance is treated as zero.
func NewPhrase(text string, maxDistance int) (Phrase, error) {
	norm := Normalize(text)
	if norm == "" {
		return Phrase{}, ErrEmptyPhrase
	}
	return Phrase{
		text:        norm,
		tokens:      strings.Fields(norm),
		maxDistance: max(maxDistance, 0),
	}, nil
}

// String returns the normalized phrase.
func (p Phrase) String() string { return p.text }

// Tokens returns a copy of the phrase words.
func (p Phrase) Tokens() []string { return slices.Clone(p.tokens) }

// MaxDistance returns the per-word edit distance tolerance.
func (p Phrase) MaxDistance() int { return p.maxDistance }

// Rule identifies which matching rule accepted a candidate.
type Rule int

const (
	RuleNone Rule = iota
	RuleExact
	RuleSubstring
	RuleAllTokens
	RuleFuzzyWindow
	RulePhonetic
)

// String returns a short name used as a log and metric label.
func (r Rule) String() string {
	switch r {
	case RuleNone:
		return "none"
	case RuleExact:
		return "exact"
	case RuleSubstring:
		return "substring"
	case RuleAllTokens:
		return "all_tokens"
	case RuleFuzzyWindow:
		return "fuzzy_window"
	case RulePhonetic:
		return "phonetic"
	default:
		return "unknown"
	}
}

// Option configures a [Matcher].
type Option func(*Matcher)

// WithAllTokens enables or disables the unordered all-tokens rule. Default:
// enabled.
func WithAllTokens(enabled bool) Option {
	return func(m *Matcher) { m.allTokens = enabled }
}

// WithPhonetic enables or disables the phonetic rule. Default: disabled.
func WithPhonetic(enabled bool) Option {
	return func(m *Matcher) { m.phonetic = enabled }
}

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically equal word pair. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// Matcher tests candidate text against one wake phrase.
type Matcher struct {
	phrase            Phrase
	allTokens         bool
	phonetic          bool
	phoneticThreshold float64
	phraseCodes       []codes
}

// NewMatcher returns a Matcher for phrase.
func NewMatcher(phrase Phrase, opts ...Option) *Matcher {
	m := &Matcher{
		phrase:            phrase,
		allTokens:         true,
		phoneticThreshold: defaultPhoneticThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	if m.phonetic {
		m.phraseCodes = make([]codes, len(phrase.tokens))
		for i, t := range phrase.tokens {
			m.phraseCodes[i] = codesFor(t)
		}
	}
	return m
}

// Phrase returns the phrase the matcher was built for.
func (m *Matcher) Phrase() Phrase { return m.phrase }

// Match reports whether the normalized candidate contains the wake phrase
// and which rule accepted it.
func (m *Matcher) Match(candidate string) (Rule, bool) {
	if candidate == "" || len(m.phrase.tokens) == 0 {
		return RuleNone, false
	}
	if candidate == m.phrase.text {
		return RuleExact, true
	}
	if strings.Contains(candidate, m.phrase.text) {
		return RuleSubstring, true
	}

	words := strings.Fields(candidate)
	if m.allTokens && containsAll(words, m.phrase.tokens) {
		return RuleAllTokens, true
	}
	if m.window(words, m.similar) {
		return RuleFuzzyWindow, true
	}
	if m.phonetic && m.window(words, m.soundsAlike) {
		return RulePhonetic, true
	}
	return RuleNone, false
}

// Matches is Match without the rule.
func (m *Matcher) Matches(candidate string) bool {
	_, ok := m.Match(candidate)
	return ok
}

func containsAll(words, tokens []string) bool {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	for _, t := range tokens {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}

// window slides the phrase across words and reports whether some offset
// aligns every phrase word with its candidate word under eq.
func (m *Matcher) window(words []string, eq func(i int, word string) bool) bool {
	n := len(m.phrase.tokens)
	for off := 0; off+n <= len(words); off++ {
		ok := true
		for i := range n {
			if !eq(i, words[off+i]) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func (m *Matcher) similar(i int, word string) bool {
	return Similar(word, m.phrase.tokens[i], m.phrase.maxDistance)
}
