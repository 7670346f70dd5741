package index

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/noodle-search/noodle/internal/corpus"
	"github.com/noodle-search/noodle/internal/nlp"
	"github.com/noodle-search/noodle/pkg/config"
	apperrors "github.com/noodle-search/noodle/pkg/errors"
	"github.com/noodle-search/noodle/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Builder turns a corpus into one index file per configured field plus a
// metadata file.
type Builder struct {
	cfg     config.IndexerConfig
	kind    Kind
	norm    nlp.Normalizer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewBuilder validates the field list and returns a Builder.
func NewBuilder(cfg config.IndexerConfig, norm nlp.Normalizer, m *metrics.Metrics) (*Builder, error) {
	if len(cfg.Fields) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidInput, 0, "indexer: no fields configured")
	}
	seen := make(map[string]struct{}, len(cfg.Fields))
	for _, field := range cfg.Fields {
		if !slices.Contains(corpus.Fields, field) {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, 0, "indexer: unknown field %q", field)
		}
		if _, dup := seen[field]; dup {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, 0, "indexer: field %q listed twice", field)
		}
		seen[field] = struct{}{}
	}
	return &Builder{
		cfg:     cfg,
		kind:    KindOf(cfg.Positional),
		norm:    norm,
		metrics: m,
		logger:  slog.Default().With("component", "indexer"),
	}, nil
}

// Result is the in-memory output of Build.
type Result struct {
	Fields   map[string]*InvertedIndex
	Metadata Metadata
}

// Build indexes docs without touching disk. Fields are built concurrently;
// each goroutine owns its index and only reads docs.
func (b *Builder) Build(ctx context.Context, docs []corpus.Document) (*Result, error) {
	docs = b.limit(docs)
	indexes := make([]*InvertedIndex, len(b.cfg.Fields))

	g, ctx := errgroup.WithContext(ctx)
	for i, field := range b.cfg.Fields {
		g.Go(func() error {
			ix, err := b.buildField(ctx, field, docs)
			if err != nil {
				return err
			}
			indexes[i] = ix
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		Fields: make(map[string]*InvertedIndex, len(indexes)),
		Metadata: Metadata{
			NDocs:           len(docs),
			AvgTokensPerDoc: make(map[string]float64, len(indexes)),
		},
	}
	vocab := make(map[string]struct{})
	for i, field := range b.cfg.Fields {
		ix := indexes[i]
		res.Fields[field] = ix
		res.Metadata.AvgTokensPerDoc[field] = averageTokens(ix.TotalTokens(), len(docs))
		for _, token := range ix.Tokens() {
			vocab[token] = struct{}{}
		}
	}
	res.Metadata.NTotalTokens = len(vocab)
	return res, nil
}

// Run builds every field index and writes it to the output directory,
// followed by the metadata file.
func (b *Builder) Run(ctx context.Context, docs []corpus.Document) (Metadata, error) {
	start := time.Now()
	res, err := b.Build(ctx, docs)
	if err != nil {
		return Metadata{}, err
	}

	g, ctx := errgroup.WithContext(ctx)
	for field, ix := range res.Fields {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return b.writeField(field, ix)
		})
	}
	if err := g.Wait(); err != nil {
		return Metadata{}, err
	}

	metaPath := filepath.Join(b.cfg.OutputDir, MetadataFile)
	if err := SaveMetadata(metaPath, res.Metadata); err != nil {
		return Metadata{}, fmt.Errorf("writing metadata: %w", err)
	}
	b.metrics.DocsIndexedTotal.Add(float64(res.Metadata.NDocs))
	b.logger.Info("index build complete",
		"docs", res.Metadata.NDocs,
		"distinct_tokens", res.Metadata.NTotalTokens,
		"kind", b.kind.String(),
		"output_dir", b.cfg.OutputDir,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res.Metadata, nil
}

func (b *Builder) buildField(ctx context.Context, field string, docs []corpus.Document) (*InvertedIndex, error) {
	start := time.Now()
	ix := New(b.kind)
	for docID, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, _ := doc.Field(field)
		ix.Add(docID, b.norm.Normalize(text))
	}
	b.metrics.IndexBuildDuration.WithLabelValues(field).Observe(time.Since(start).Seconds())
	b.metrics.IndexVocabulary.WithLabelValues(field).Set(float64(ix.Vocabulary()))
	b.logger.Debug("field indexed", "field", field, "vocabulary", ix.Vocabulary(), "tokens", ix.TotalTokens())
	return ix, nil
}

func (b *Builder) writeField(field string, ix *InvertedIndex) error {
	path := filepath.Join(b.cfg.OutputDir, FileName(field, b.kind))
	if err := WriteFile(path, ix); err != nil {
		return fmt.Errorf("writing %s index: %w", field, err)
	}
	b.logger.Info("field index written", "field", field, "path", path, "vocabulary", ix.Vocabulary())
	return nil
}

// limit keeps the first cfg.Limit documents when a cap is configured.
func (b *Builder) limit(docs []corpus.Document) []corpus.Document {
	if b.cfg.Limit > 0 && b.cfg.Limit < len(docs) {
		docs = docs[:b.cfg.Limit]
	}
	return docs
}
