package ranker

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/noodle-search/noodle/internal/corpus"
	"github.com/noodle-search/noodle/internal/index"
	"github.com/noodle-search/noodle/internal/nlp"
	"github.com/noodle-search/noodle/pkg/config"
	apperrors "github.com/noodle-search/noodle/pkg/errors"
	"github.com/noodle-search/noodle/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func normalizer(t testing.TB) nlp.Normalizer {
	t.Helper()
	n, err := nlp.New(config.NLPConfig{Language: "english", MinLength: 2})
	if err != nil {
		t.Fatal(err)
	}
	return n
}

// buildIndex indexes docs into a temp dir and returns a ranker config for it.
func buildIndex(t testing.TB, docs []corpus.Document, positional bool, weights map[string]float64) config.RankerConfig {
	t.Helper()
	dir := t.TempDir()
	fields := make([]string, 0, len(weights))
	rcFields := make([]config.RankerFieldConfig, 0, len(weights))
	for _, name := range []string{"title", "content", "url"} {
		if w, ok := weights[name]; ok {
			fields = append(fields, name)
			rcFields = append(rcFields, config.RankerFieldConfig{Name: name, Weight: w})
		}
	}
	b, err := index.NewBuilder(config.IndexerConfig{
		OutputDir:  dir,
		Fields:     fields,
		Positional: positional,
	}, normalizer(t), metrics.New(prometheus.NewRegistry()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Run(context.Background(), docs); err != nil {
		t.Fatal(err)
	}
	return config.RankerConfig{
		IndexDir:   dir,
		Positional: positional,
		Model:      config.ModelWeighted,
		K1:         1.5,
		B:          0.75,
		IDFBase:    config.IDFDocuments,
		Fields:     rcFields,
	}
}

func withIDs(docs []corpus.Document) []corpus.Document {
	out := make([]corpus.Document, len(docs))
	for i, d := range docs {
		d.ID = i
		out[i] = d
	}
	return out
}

func newRanker(t testing.TB, cfg config.RankerConfig, docs []corpus.Document) *Ranker {
	t.Helper()
	r, err := New(cfg, normalizer(t), docs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestCatsScenario(t *testing.T) {
	docs := withIDs([]corpus.Document{{URL: "u0", Title: "Cats", Content: "Cats are small cats"}})

	tests := []struct {
		name    string
		weights map[string]float64
		want    float64
	}{
		{"content only", map[string]float64{"content": 1}, 2},
		{"title and content", map[string]float64{"title": 1, "content": 1}, 3},
		{"weighted title", map[string]float64{"title": 3, "content": 1}, 5},
	}
	for _, tt := range tests {
		for _, positional := range []bool{false, true} {
			cfg := buildIndex(t, docs, positional, tt.weights)
			r := newRanker(t, cfg, docs)
			got, err := r.Search(context.Background(), "cats", 1)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 1 || got[0].Document.URL != "u0" || got[0].Score != tt.want {
				t.Errorf("%s positional=%v: got %+v, want u0 with score %v", tt.name, positional, got, tt.want)
			}
		}
	}
}

func TestStopWordQueryReturnsEmpty(t *testing.T) {
	docs := withIDs([]corpus.Document{{Title: "The cat", Content: "and so on"}})
	r := newRanker(t, buildIndex(t, docs, false, map[string]float64{"title": 1, "content": 1}), docs)

	for _, q := range []string{"the and of", "", "   ", "!!"} {
		got, err := r.Search(context.Background(), q, 10)
		if err != nil {
			t.Errorf("%q: unexpected error %v", q, err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("%q: expected empty non-nil list, got %#v", q, got)
		}
	}
}

func TestUnmatchedDocumentsAreAbsent(t *testing.T) {
	docs := withIDs([]corpus.Document{
		{Title: "dogs", Content: "bark"},
		{Title: "cats", Content: "meow"},
	})
	r := newRanker(t, buildIndex(t, docs, false, map[string]float64{"title": 1, "content": 1}), docs)
	got, err := r.Search(context.Background(), "cat", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Document.ID != 1 {
		t.Errorf("got %+v, want only document 1", got)
	}
}

func TestTiesKeepCorpusOrder(t *testing.T) {
	docs := withIDs([]corpus.Document{
		{URL: "d0", Content: "unrelated words"},
		{URL: "d1", Content: "search engine"},
		{URL: "d2", Content: "engine search"},
		{URL: "d3", Content: "search search engine"},
		{URL: "d4", Content: "an engine for search"},
	})
	cfg := buildIndex(t, docs, false, map[string]float64{"content": 1})
	r := newRanker(t, cfg, docs)

	for _, n := range []int{0, 2, 3, 10} {
		got, err := r.Search(context.Background(), "search engine", n)
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"d3", "d1", "d2", "d4"}
		if n > 0 && n < len(want) {
			want = want[:n]
		}
		urls := make([]string, len(got))
		for i, res := range got {
			urls[i] = res.Document.URL
		}
		if !reflect.DeepEqual(urls, want) {
			t.Errorf("n=%d: order = %v, want %v", n, urls, want)
		}
	}
}

func TestSearchIsIdempotent(t *testing.T) {
	docs := withIDs([]corpus.Document{
		{Title: "Go concurrency", Content: "goroutines and channels make concurrency simple"},
		{Title: "Go modules", Content: "modules version dependencies"},
		{Title: "Channels", Content: "buffered channels and unbuffered channels"},
	})
	for _, model := range []string{config.ModelWeighted, config.ModelBM25} {
		cfg := buildIndex(t, docs, true, map[string]float64{"title": 2, "content": 1})
		cfg.Model = model
		r := newRanker(t, cfg, docs)
		first, err := r.Search(context.Background(), "channels concurrency", 10)
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 5; i++ {
			again, _ := r.Search(context.Background(), "channels concurrency", 10)
			if !reflect.DeepEqual(first, again) {
				t.Fatalf("%s: run %d differs: %v vs %v", model, i, again, first)
			}
		}
	}
}

func TestBM25PrefersRarerTermsAndShorterDocs(t *testing.T) {
	docs := withIDs([]corpus.Document{
		{Content: "apple banana"},
		{Content: "apple apple apple banana banana cherry cherry cherry durian"},
		{Content: "banana"},
	})
	cfg := buildIndex(t, docs, false, map[string]float64{"content": 1})
	cfg.Model = config.ModelBM25
	r := newRanker(t, cfg, docs)

	got, err := r.Search(context.Background(), "banana", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	if got[0].Document.ID != 2 {
		t.Errorf("shortest document should win for a term present everywhere, got %+v", got)
	}
	for _, res := range got {
		if res.Score <= 0 || math.IsNaN(res.Score) {
			t.Errorf("bm25 scores must be positive, got %v", res.Score)
		}
	}

	got, _ = r.Search(context.Background(), "durian banana", 1)
	if got[0].Document.ID != 1 {
		t.Errorf("document holding the rare term should rank first, got %+v", got)
	}
}

func TestBM25VocabularyBase(t *testing.T) {
	docs := withIDs([]corpus.Document{{Content: "alpha beta gamma"}, {Content: "alpha"}})
	cfg := buildIndex(t, docs, false, map[string]float64{"content": 1})
	cfg.Model = config.ModelBM25

	cfg.IDFBase = config.IDFDocuments
	byDocs, _ := newRanker(t, cfg, docs).Search(context.Background(), "alpha", 0)
	cfg.IDFBase = config.IDFVocabulary
	byVocab, _ := newRanker(t, cfg, docs).Search(context.Background(), "alpha", 0)

	if byDocs[0].Score == byVocab[0].Score {
		t.Errorf("idf base should change scores, both %v", byDocs[0].Score)
	}
}

func TestComputeIDFAndTF(t *testing.T) {
	if got, want := computeIDF(10, 2), math.Log((10-2+0.5)/(2+0.5)+1); got != want {
		t.Errorf("computeIDF = %v, want %v", got, want)
	}
	if got := computeIDF(1, 1); got <= 0 {
		t.Errorf("idf must stay positive when every document has the term, got %v", got)
	}
	if got := computeTFNorm(1, 5, 0, 1.5, 0.75); got != 0 {
		t.Errorf("zero average length must yield 0, got %v", got)
	}
	if got := computeTFNorm(2, 4, 4, 1.5, 0.75); math.Abs(got-2*2.5/(2+1.5)) > 1e-12 {
		t.Errorf("computeTFNorm at average length = %v", got)
	}
}

func TestRankTopKMatchesFullSort(t *testing.T) {
	scores := map[int]float64{0: 1, 1: 5, 2: 3, 3: 5, 4: 0.5, 5: 3, 6: 2}
	full := rank(scores, 0)
	for k := 1; k <= len(scores); k++ {
		if got := rank(scores, k); !reflect.DeepEqual(got, full[:k]) {
			t.Errorf("k=%d: %v, want %v", k, got, full[:k])
		}
	}
	if full[0].docID != 1 || full[1].docID != 3 {
		t.Errorf("ties must keep corpus order: %v", full)
	}
}

func TestNewFailsOnMissingIndex(t *testing.T) {
	docs := withIDs([]corpus.Document{{Title: "a", Content: "b"}})
	cfg := buildIndex(t, docs, false, map[string]float64{"title": 1})
	cfg.Fields = append(cfg.Fields, config.RankerFieldConfig{Name: "content", Weight: 1})

	_, err := New(cfg, normalizer(t), docs)
	if !errors.Is(err, apperrors.ErrIndexFileMissing) {
		t.Fatalf("expected ErrIndexFileMissing, got %v", err)
	}

	cfg = buildIndex(t, docs, false, map[string]float64{"title": 1})
	cfg.Model = config.ModelBM25
	os.Remove(filepath.Join(cfg.IndexDir, index.MetadataFile))
	if _, err := New(cfg, normalizer(t), docs); !errors.Is(err, apperrors.ErrIndexFileMissing) {
		t.Fatalf("bm25 without metadata: expected ErrIndexFileMissing, got %v", err)
	}
}

func TestNewRejectsIndexLargerThanCorpus(t *testing.T) {
	docs := withIDs([]corpus.Document{{Title: "a"}, {Title: "cat"}})
	cfg := buildIndex(t, docs, false, map[string]float64{"title": 1})
	_, err := New(cfg, normalizer(t), docs[:1])
	if !errors.Is(err, apperrors.ErrCorruptIndex) {
		t.Fatalf("expected ErrCorruptIndex, got %v", err)
	}
}

func TestNewRejectsNegativeDocID(t *testing.T) {
	docs := withIDs([]corpus.Document{{Title: "cat"}})
	cfg := buildIndex(t, docs, false, map[string]float64{"title": 1})
	path := filepath.Join(cfg.IndexDir, index.FileName("title", index.NonPositional))
	if err := os.WriteFile(path, []byte(`{"cat":[0,-1]}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(cfg, normalizer(t), docs); !errors.Is(err, apperrors.ErrCorruptIndex) {
		t.Fatalf("expected ErrCorruptIndex, got %v", err)
	}
}

func TestNewFallsBackToOtherIndexKind(t *testing.T) {
	docs := withIDs([]corpus.Document{{Title: "cat"}, {Title: "dog"}})
	for _, built := range []bool{true, false} {
		cfg := buildIndex(t, docs, built, map[string]float64{"title": 1})
		cfg.Positional = !built

		r := newRanker(t, cfg, docs)
		got, err := r.Search(context.Background(), "cat", 10)
		if err != nil || len(got) != 1 || got[0].Document.Title != "cat" {
			t.Errorf("built positional=%v, configured %v: got %v, %v", built, !built, got, err)
		}
	}
}

func TestExplicitIndexFile(t *testing.T) {
	docs := withIDs([]corpus.Document{{Title: "cat"}})
	cfg := buildIndex(t, docs, false, map[string]float64{"title": 1})
	cfg.Fields[0].IndexFile = filepath.Join(cfg.IndexDir, index.FileName("title", index.NonPositional))
	cfg.IndexDir = t.TempDir()

	r := newRanker(t, cfg, docs)
	got, err := r.Search(context.Background(), "cat", 10)
	if err != nil || len(got) != 1 {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestSearchWithTotalCountsBeforeTruncation(t *testing.T) {
	docs := withIDs([]corpus.Document{
		{Content: "cats"},
		{Content: "dogs"},
		{Content: "cats and dogs"},
		{Content: "more cats"},
	})
	r := newRanker(t, buildIndex(t, docs, false, map[string]float64{"content": 1}), docs)
	got, total, err := r.SearchWithTotal(context.Background(), "cats", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || total != 3 {
		t.Errorf("returned %d of %d, want 1 of 3", len(got), total)
	}
}

func TestSearchHonoursCancelledContext(t *testing.T) {
	docs := withIDs([]corpus.Document{{Content: "cats"}})
	r := newRanker(t, buildIndex(t, docs, false, map[string]float64{"content": 1}), docs)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Search(ctx, "cats", 0); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
