// Package ranker scores corpus documents against a free-text query using the
// field indexes written by the index builder.
package ranker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/noodle-search/noodle/internal/corpus"
	"github.com/noodle-search/noodle/internal/index"
	"github.com/noodle-search/noodle/internal/nlp"
	"github.com/noodle-search/noodle/pkg/config"
	apperrors "github.com/noodle-search/noodle/pkg/errors"
	"github.com/noodle-search/noodle/pkg/tracing"
)

// Result is one ranked document.
type Result struct {
	Document corpus.Document `json:"document"`
	Score    float64         `json:"score"`
}

// Ranker holds every configured field index in memory. It is read-only after
// New and safe for concurrent Search calls.
type Ranker struct {
	norm   nlp.Normalizer
	docs   []corpus.Document
	fields []*fieldIndex
	score  scorer
	model  string
	logger *slog.Logger
}

// New loads the field indexes named in cfg. The normalizer must be the one
// the indexes were built with. Any missing index file is fatal.
func New(cfg config.RankerConfig, norm nlp.Normalizer, docs []corpus.Document) (*Ranker, error) {
	if len(cfg.Fields) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidInput, 0, "ranker: no fields configured")
	}
	r := &Ranker{
		norm:   norm,
		docs:   docs,
		model:  cfg.Model,
		logger: slog.Default().With("component", "ranker"),
	}

	var meta index.Metadata
	switch cfg.Model {
	case config.ModelWeighted, "":
		r.score = weightedTF
		r.model = config.ModelWeighted
	case config.ModelBM25:
		r.score = bm25(cfg.K1, cfg.B)
		m, err := index.LoadMetadata(filepath.Join(cfg.IndexDir, index.MetadataFile))
		if err != nil {
			return nil, fmt.Errorf("loading ranker metadata: %w", err)
		}
		meta = m
	default:
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, 0, "ranker: unknown model %q", cfg.Model)
	}

	kind := index.KindOf(cfg.Positional)
	for _, fc := range cfg.Fields {
		ix, path, err := loadField(cfg.IndexDir, fc, kind)
		if err != nil {
			return nil, fmt.Errorf("loading %s index: %w", fc.Name, err)
		}
		if maxID := ix.MaxDocID(); maxID >= len(docs) {
			return nil, apperrors.Newf(apperrors.ErrCorruptIndex, 0,
				"%s references document %d but the corpus has %d documents", path, maxID, len(docs))
		}
		f := &fieldIndex{name: fc.Name, weight: fc.Weight, index: ix}
		if cfg.Model == config.ModelBM25 {
			f.docLens = ix.DocLengths()
			f.avgLen = meta.AvgTokensPerDoc[fc.Name]
			f.n = corpusSize(cfg.IDFBase, meta, ix)
		}
		r.fields = append(r.fields, f)
		r.logger.Info("field index loaded",
			"field", fc.Name,
			"path", path,
			"kind", ix.Kind().String(),
			"vocabulary", ix.Vocabulary(),
			"weight", fc.Weight,
		)
	}
	return r, nil
}

// loadField opens the index file of fc. Without an explicit IndexFile it
// tries the file of the configured kind first, then the other kind.
func loadField(dir string, fc config.RankerFieldConfig, kind index.Kind) (*index.InvertedIndex, string, error) {
	if fc.IndexFile != "" {
		ix, err := index.LoadFile(fc.IndexFile, kind)
		return ix, fc.IndexFile, err
	}
	path := filepath.Join(dir, index.FileName(fc.Name, kind))
	ix, err := index.LoadFile(path, kind)
	if !errors.Is(err, apperrors.ErrIndexFileMissing) {
		return ix, path, err
	}
	other := index.NonPositional
	if kind == index.NonPositional {
		other = index.Positional
	}
	altPath := filepath.Join(dir, index.FileName(fc.Name, other))
	alt, altErr := index.LoadFile(altPath, other)
	if errors.Is(altErr, apperrors.ErrIndexFileMissing) {
		return nil, path, err
	}
	return alt, altPath, altErr
}

// Search returns up to n documents ranked by relevance to query; n <= 0
// returns every matching document. A query that normalizes to no tokens
// yields an empty list.
func (r *Ranker) Search(ctx context.Context, query string, n int) ([]Result, error) {
	results, _, err := r.SearchWithTotal(ctx, query, n)
	return results, err
}

// SearchWithTotal is Search that also reports how many documents matched
// before truncation to n.
func (r *Ranker) SearchWithTotal(ctx context.Context, query string, n int) ([]Result, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	_, normSpan := tracing.StartChildSpan(ctx, "normalize")
	tokens := r.norm.Normalize(query)
	normSpan.SetAttr("tokens", len(tokens))
	normSpan.End()
	if len(tokens) == 0 {
		return []Result{}, 0, nil
	}

	_, scoreSpan := tracing.StartChildSpan(ctx, "score")
	scores := make(map[int]float64)
	for _, f := range r.fields {
		for _, token := range tokens {
			r.score(f, token, scores)
		}
	}
	ranked := rank(scores, n)
	scoreSpan.SetAttr("candidates", len(scores))
	scoreSpan.End()

	_, resolveSpan := tracing.StartChildSpan(ctx, "resolve")
	results := make([]Result, 0, len(ranked))
	for _, sd := range ranked {
		results = append(results, Result{Document: r.docs[sd.docID], Score: sd.score})
	}
	resolveSpan.End()

	r.logger.Debug("query ranked",
		"query", query,
		"tokens", tokens,
		"candidates", len(scores),
		"returned", len(results),
	)
	return results, len(scores), nil
}

// Terms exposes the normalized form of query.
func (r *Ranker) Terms(query string) []string {
	return r.norm.Normalize(query)
}

// NumDocs is the size of the loaded corpus.
func (r *Ranker) NumDocs() int { return len(r.docs) }

// Model names the active scoring model.
func (r *Ranker) Model() string { return r.model }
