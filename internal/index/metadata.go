package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/noodle-search/noodle/internal/fsutil"
	apperrors "github.com/noodle-search/noodle/pkg/errors"
)

// MetadataFile is the corpus statistics file written next to the field indexes.
const MetadataFile = "metadata.json"

// Metadata holds corpus statistics gathered while indexing.
type Metadata struct {
	NDocs           int                `json:"n_docs"`
	NTotalTokens    int                `json:"n_total_tokens"`
	AvgTokensPerDoc map[string]float64 `json:"avg_tokens_per_doc"`
}

// averageTokens guards against empty corpora and fields with no tokens.
func averageTokens(total, nDocs int) float64 {
	if nDocs == 0 || total == 0 {
		return 0
	}
	return float64(total) / float64(nDocs)
}

// SaveMetadata writes m to path atomically.
func SaveMetadata(path string, m Metadata) error {
	return fsutil.WriteAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	})
}

// LoadMetadata reads a metadata file. A missing file is ErrIndexFileMissing.
func LoadMetadata(path string) (Metadata, error) {
	var m Metadata
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return m, apperrors.Newf(apperrors.ErrIndexFileMissing, 0, "metadata %s", path)
		}
		return m, fmt.Errorf("reading metadata %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decoding metadata %s: %w", path, err)
	}
	return m, nil
}
