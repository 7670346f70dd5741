package index

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/noodle-search/noodle/internal/fsutil"
	apperrors "github.com/noodle-search/noodle/pkg/errors"
)

// WriteFile encodes ix to path. The file is either fully written or, on
// error, not touched.
func WriteFile(path string, ix *InvertedIndex) error {
	return fsutil.WriteAtomic(path, ix.Encode)
}

// LoadFile reads an index file. A missing file is ErrIndexFileMissing.
func LoadFile(path string, hint Kind) (*InvertedIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.Newf(apperrors.ErrIndexFileMissing, 0, "%s", path)
		}
		return nil, fmt.Errorf("opening index %s: %w", path, err)
	}
	defer f.Close()
	ix, err := Decode(f, hint)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrCorruptIndex, 0, "%s: %v", path, err)
	}
	return ix, nil
}
