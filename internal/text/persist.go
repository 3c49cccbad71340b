package text

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultBaseName is used by Persist when no base name is given.
const DefaultBaseName = "story"

// Persist writes the untouched original text to <dir>/<base>.txt and each
// chunk to <dir>/<base><i>.txt (1-indexed), creating dir if needed.
// It returns the written paths, original first. Files written before a
// failure are left in place.
func Persist(original string, chunks []string, dir, base string) ([]string, error) {
	if base == "" {
		base = DefaultBaseName
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	paths := make([]string, 0, len(chunks)+1)

	originalPath := filepath.Join(dir, base+".txt")
	if err := os.WriteFile(originalPath, []byte(original), 0600); err != nil {
		return paths, fmt.Errorf("write original text: %w", err)
	}
	paths = append(paths, originalPath)

	for i, chunk := range chunks {
		p := filepath.Join(dir, fmt.Sprintf("%s%d.txt", base, i+1))
		if err := os.WriteFile(p, []byte(chunk), 0600); err != nil {
			return paths, fmt.Errorf("write chunk %d: %w", i+1, err)
		}
		paths = append(paths, p)
	}

	return paths, nil
}
