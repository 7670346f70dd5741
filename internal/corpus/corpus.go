// Package corpus holds the crawled document list and its JSON file format.
// A document's ID is its ordinal position in the list; the index files
// refer to documents only by that position.
package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/noodle-search/noodle/internal/fsutil"
	apperrors "github.com/noodle-search/noodle/pkg/errors"
)

// Document is one crawled page.
type Document struct {
	ID        int       `json:"-"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CrawlTime time.Time `json:"crawl_time,omitzero"`
}

// Field returns the raw text of the named field and whether the field exists.
func (d Document) Field(name string) (string, bool) {
	switch name {
	case "title":
		return d.Title, true
	case "content":
		return d.Content, true
	case "url":
		return d.URL, true
	default:
		return "", false
	}
}

// Fields lists the names accepted by Document.Field.
var Fields = []string{"title", "content", "url"}

// Save writes docs as a JSON array, in order, replacing path atomically.
func Save(path string, docs []Document) error {
	return fsutil.WriteAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if docs == nil {
			docs = []Document{}
		}
		return enc.Encode(docs)
	})
}

// Load reads a corpus file and assigns each document its ordinal ID.
func Load(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.Newf(apperrors.ErrCorpusMissing, 0, "%s", path)
		}
		return nil, fmt.Errorf("reading corpus %s: %w", path, err)
	}
	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("decoding corpus %s: %w", path, err)
	}
	for i := range docs {
		docs[i].ID = i
	}
	return docs, nil
}
