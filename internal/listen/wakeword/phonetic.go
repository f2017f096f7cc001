package wakeword

import "github.com/antzucaro/matchr"

const defaultPhoneticThreshold = 0.70

// codes holds the non-empty Double Metaphone codes of one word.
type codes []string

func codesFor(word string) codes {
	p, s := matchr.DoubleMetaphone(word)
	var c codes
	if p != "" {
		c = append(c, p)
	}
	if s != "" && s != p {
		c = append(c, s)
	}
	return c
}

func (c codes) overlaps(o codes) bool {
	for _, a := range c {
		for _, b := range o {
			if a == b {
				return true
			}
		}
	}
	return false
}

// soundsAlike accepts word for phrase position i when the two share a
// metaphone code and are Jaro-Winkler similar.
func (m *Matcher) soundsAlike(i int, word string) bool {
	if !m.phraseCodes[i].overlaps(codesFor(word)) {
		return false
	}
	return matchr.JaroWinkler(word, m.phrase.tokens[i], false) >= m.phoneticThreshold
}
