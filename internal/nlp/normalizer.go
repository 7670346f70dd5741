// Package nlp turns raw text into the normalized token stream shared by the
// index builder and the query ranker. It keeps alphabetic words, drops stop
// words, folds case, reduces each word to a lemma and, when enabled, to a
// Snowball stem.
package nlp

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kljensen/snowball"
	"github.com/noodle-search/noodle/pkg/config"
	apperrors "github.com/noodle-search/noodle/pkg/errors"
)

// Normalizer maps raw text to an ordered sequence of normalized tokens.
type Normalizer interface {
	Normalize(text string) []string
}

var stemLanguages = map[string]struct{}{
	"english": {}, "french": {}, "spanish": {}, "russian": {},
	"swedish": {}, "norwegian": {},
}

// Pipeline is the default Normalizer. It is immutable after construction and
// safe for concurrent use.
type Pipeline struct {
	language  string
	stemming  bool
	minLength int
}

// New builds a Pipeline from cfg. The index builder and the ranker must be
// handed the same value.
func New(cfg config.NLPConfig) (*Pipeline, error) {
	lang := strings.ToLower(cfg.Language)
	if lang == "" {
		lang = "english"
	}
	if _, ok := stemLanguages[lang]; !ok && cfg.Stemming {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, 0, "nlp: no stemmer for language %q", cfg.Language)
	}
	minLen := cfg.MinLength
	if minLen < 1 {
		minLen = 1
	}
	return &Pipeline{language: lang, stemming: cfg.Stemming, minLength: minLen}, nil
}

// Normalize splits text on non-letter runes and returns the surviving tokens
// in their original order.
func (p *Pipeline) Normalize(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		word = strings.ToLower(word)
		if len([]rune(word)) < p.minLength {
			continue
		}
		if isStopWord(word) {
			continue
		}
		token := lemma(word)
		if p.stemming {
			token = p.stem(token)
		}
		if token == "" {
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens
}

func (p *Pipeline) stem(word string) string {
	stemmed, err := snowball.Stem(word, p.language, true)
	if err != nil {
		return word
	}
	return stemmed
}

// String describes the configuration, for logs.
func (p *Pipeline) String() string {
	return fmt.Sprintf("nlp(language=%s stemming=%t min_length=%d)", p.language, p.stemming, p.minLength)
}
