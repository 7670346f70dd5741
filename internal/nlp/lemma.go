package nlp

import "strings"

// irregular maps common inflected forms whose lemma no suffix rule recovers.
var irregular = map[string]string{
	"children": "child",
	"feet":     "foot",
	"geese":    "goose",
	"men":      "man",
	"mice":     "mouse",
	"people":   "person",
	"teeth":    "tooth",
	"women":    "woman",
}

// lemma reduces a lowercase English plural to its singular form. Words that
// match no rule are returned unchanged.
func lemma(word string) string {
	if l, ok := irregular[word]; ok {
		return l
	}
	rules := []struct {
		suffix      string
		replacement string
		minStem     int
	}{
		{"ies", "y", 2},
		{"sses", "ss", 1},
		{"xes", "x", 1},
		{"ches", "ch", 1},
		{"shes", "sh", 1},
		{"ss", "ss", 0},
		{"us", "us", 0},
		{"is", "is", 0},
		{"s", "", 2},
	}
	for _, rule := range rules {
		if !strings.HasSuffix(word, rule.suffix) {
			continue
		}
		stem := word[:len(word)-len(rule.suffix)]
		if len(stem) < rule.minStem {
			return word
		}
		return stem + rule.replacement
	}
	return word
}
