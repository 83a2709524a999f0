package llm

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var documentExts = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".json":     true,
	".yaml":     true,
	".yml":      true,
	".html":     true,
}

// LoadDocuments concatenates the text files found under dir, each headed by
// its path relative to dir. Hidden files and directories are skipped. The
// result is cut at maxBytes when maxBytes > 0. A missing dir yields "".
func LoadDocuments(dir string, maxBytes int) (string, error) {
	const op = "llm.LoadDocuments"

	if dir == "" {
		return "", nil
	}

	var b strings.Builder

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !documentExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = d.Name()
		}

		fmt.Fprintf(&b, "file_path: %s\n\n%s\n\n", filepath.ToSlash(rel), strings.TrimSpace(string(content)))

		if maxBytes > 0 && b.Len() >= maxBytes {
			return filepath.SkipAll
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	docs := b.String()
	if maxBytes > 0 && len(docs) > maxBytes {
		docs = strings.ToValidUTF8(docs[:maxBytes], "")
	}

	return docs, nil
}
