package ranker

import (
	"math"

	"github.com/noodle-search/noodle/internal/index"
	"github.com/noodle-search/noodle/pkg/config"
)

// fieldIndex is one loaded field index with the statistics scoring needs.
type fieldIndex struct {
	name    string
	weight  float64
	index   *index.InvertedIndex
	docLens map[int]int
	avgLen  float64
	n       int
}

// scorer adds the contribution of one query token in one field to scores.
type scorer func(f *fieldIndex, token string, scores map[int]float64)

// weightedTF adds weight × occurrence count for every document holding token.
func weightedTF(f *fieldIndex, token string, scores map[int]float64) {
	for docID, freq := range f.index.Frequencies(token) {
		scores[docID] += f.weight * float64(freq)
	}
}

// bm25 returns a scorer using the given saturation parameters.
func bm25(k1, b float64) scorer {
	return func(f *fieldIndex, token string, scores map[int]float64) {
		freqs := f.index.Frequencies(token)
		if len(freqs) == 0 {
			return
		}
		idf := computeIDF(f.n, len(freqs))
		for docID, freq := range freqs {
			tf := computeTFNorm(float64(freq), float64(f.docLens[docID]), f.avgLen, k1, b)
			scores[docID] += f.weight * idf * tf
		}
	}
}

func computeIDF(n, docFreq int) float64 {
	numerator := float64(n) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq, docLength, avgDocLength, k1, b float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}

// corpusSize picks N for the idf term.
func corpusSize(base string, meta index.Metadata, ix *index.InvertedIndex) int {
	if base == config.IDFVocabulary {
		return ix.Vocabulary()
	}
	return meta.NDocs
}
