// Package index builds, writes and loads per-field inverted indexes.
//
// An InvertedIndex is one of two variants fixed when it is created:
//
//	NonPositional  token -> [docID, docID, ...]      one entry per occurrence
//	Positional     token -> {docID: [offset, ...]}   offsets into the token stream
//
// Both variants answer the same questions (term frequency per document,
// document frequency, document length), so scoring code never branches on
// the variant.
package index

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// Kind tags the postings layout of an InvertedIndex.
type Kind int

const (
	NonPositional Kind = iota
	Positional
)

func (k Kind) String() string {
	if k == Positional {
		return "positional"
	}
	return "non-positional"
}

// KindOf maps the positional flag from configuration to a Kind.
func KindOf(positional bool) Kind {
	if positional {
		return Positional
	}
	return NonPositional
}

// FileName returns the index file name for field.
func FileName(field string, kind Kind) string {
	if kind == Positional {
		return field + ".pos_index.json"
	}
	return field + ".non_pos_index.json"
}

// InvertedIndex maps tokens to postings for one field.
type InvertedIndex struct {
	kind      Kind
	docs      map[string][]int
	positions map[string]map[int][]int
}

// New returns an empty index of the given kind.
func New(kind Kind) *InvertedIndex {
	ix := &InvertedIndex{kind: kind}
	if kind == Positional {
		ix.positions = make(map[string]map[int][]int)
	} else {
		ix.docs = make(map[string][]int)
	}
	return ix
}

func (ix *InvertedIndex) Kind() Kind { return ix.kind }

// Add records the normalized token stream of one document. Documents must be
// added in ascending docID order for postings to stay sorted.
func (ix *InvertedIndex) Add(docID int, tokens []string) {
	for offset, token := range tokens {
		if ix.kind == Positional {
			byDoc, ok := ix.positions[token]
			if !ok {
				byDoc = make(map[int][]int)
				ix.positions[token] = byDoc
			}
			byDoc[docID] = append(byDoc[docID], offset)
		} else {
			ix.docs[token] = append(ix.docs[token], docID)
		}
	}
}

// Frequencies returns how many times token occurs in each document holding it.
// The map is nil when the token is absent.
func (ix *InvertedIndex) Frequencies(token string) map[int]int {
	if ix.kind == Positional {
		byDoc, ok := ix.positions[token]
		if !ok {
			return nil
		}
		freqs := make(map[int]int, len(byDoc))
		for docID, offsets := range byDoc {
			freqs[docID] = len(offsets)
		}
		return freqs
	}
	ids, ok := ix.docs[token]
	if !ok {
		return nil
	}
	freqs := make(map[int]int)
	for _, docID := range ids {
		freqs[docID]++
	}
	return freqs
}

// DocFreq is the number of distinct documents containing token.
func (ix *InvertedIndex) DocFreq(token string) int {
	if ix.kind == Positional {
		return len(ix.positions[token])
	}
	return len(ix.Frequencies(token))
}

// Vocabulary is the number of distinct tokens.
func (ix *InvertedIndex) Vocabulary() int {
	if ix.kind == Positional {
		return len(ix.positions)
	}
	return len(ix.docs)
}

// Tokens returns the distinct tokens in sorted order.
func (ix *InvertedIndex) Tokens() []string {
	tokens := make([]string, 0, ix.Vocabulary())
	if ix.kind == Positional {
		for t := range ix.positions {
			tokens = append(tokens, t)
		}
	} else {
		for t := range ix.docs {
			tokens = append(tokens, t)
		}
	}
	sort.Strings(tokens)
	return tokens
}

// DocLengths returns the number of indexed tokens per document. Documents
// with no tokens are absent.
func (ix *InvertedIndex) DocLengths() map[int]int {
	lengths := make(map[int]int)
	if ix.kind == Positional {
		for _, byDoc := range ix.positions {
			for docID, offsets := range byDoc {
				lengths[docID] += len(offsets)
			}
		}
		return lengths
	}
	for _, ids := range ix.docs {
		for _, docID := range ids {
			lengths[docID]++
		}
	}
	return lengths
}

// TotalTokens is the number of token occurrences across all documents.
func (ix *InvertedIndex) TotalTokens() int {
	total := 0
	for _, n := range ix.DocLengths() {
		total += n
	}
	return total
}

// MaxDocID returns the largest document id referenced, or -1 when empty.
func (ix *InvertedIndex) MaxDocID() int {
	maxID := -1
	for docID := range ix.DocLengths() {
		maxID = max(maxID, docID)
	}
	return maxID
}

// Encode writes the index as compact JSON with sorted keys.
func (ix *InvertedIndex) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if ix.kind == Positional {
		return enc.Encode(ix.positions)
	}
	return enc.Encode(ix.docs)
}

// Decode reads an index written by Encode. The variant is taken from the
// shape of the first posting; an empty object yields an index of kind hint.
func Decode(r io.Reader, hint Kind) (*InvertedIndex, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding index: %w", err)
	}
	kind := hint
	for _, v := range raw {
		switch first := firstByte(v); first {
		case '[':
			kind = NonPositional
		case '{':
			kind = Positional
		default:
			return nil, fmt.Errorf("decoding index: unexpected posting %q", string(v))
		}
		break
	}

	ix := New(kind)
	for token, v := range raw {
		if kind == Positional {
			var byDoc map[int][]int
			if err := json.Unmarshal(v, &byDoc); err != nil {
				return nil, fmt.Errorf("decoding postings for %q: %w", token, err)
			}
			for docID, offsets := range byDoc {
				if docID < 0 {
					return nil, fmt.Errorf("decoding postings for %q: negative document id %d", token, docID)
				}
				for _, off := range offsets {
					if off < 0 {
						return nil, fmt.Errorf("decoding postings for %q: negative offset %d", token, off)
					}
				}
			}
			ix.positions[token] = byDoc
		} else {
			var ids []int
			if err := json.Unmarshal(v, &ids); err != nil {
				return nil, fmt.Errorf("decoding postings for %q: %w", token, err)
			}
			for _, docID := range ids {
				if docID < 0 {
					return nil, fmt.Errorf("decoding postings for %q: negative document id %d", token, docID)
				}
			}
			ix.docs[token] = ids
		}
	}
	return ix, nil
}

func firstByte(b []byte) byte {
	b = bytes.TrimLeft(b, " \t\r\n")
	if len(b) == 0 {
		return 0
	}
	return b[0]
}
