package deid

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"deid-export/internal/profile"
)

// ExcludedNames are filenames never processed.
var ExcludedNames = map[string]bool{
	"DICOMDIR":          true,
	".DS_Store":         true,
	"Thumbs.db":         true,
	"desktop.ini":       true,
	"README":            true,
	"README.md":         true,
	"LICENSE":           true,
	".gitignore":        true,
	"errors.log":        true,
	"report.json":       true,
	"package.json":      true,
	"package-lock.json": true,
}

// ExcludedExtensions are never sniffed for content. Files with these
// extensions are still processed when a file-filter names them.
var ExcludedExtensions = map[string]bool{
	".go":   true,
	".py":   true,
	".js":   true,
	".json": true,
	".yaml": true,
	".yml":  true,
	".txt":  true,
	".md":   true,
	".log":  true,
	".csv":  true,
	".toml": true,
	".exe":  true,
	".dll":  true,
	".so":   true,
	".tar":  true,
	".gz":   true,
	".7z":   true,
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".xls":  true,
	".xlsx": true,
	".html": true,
	".htm":  true,
	".sh":   true,
	".bat":  true,
}

// ExcludedDirs are directory names skipped entirely.
var ExcludedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	".idea":        true,
	".vscode":      true,
}

// sniffSize is how much of an unrecognised file is read for sniffing.
const sniffSize = 512

// Candidate is a file selected for processing.
type Candidate struct {
	Path string
	Kind profile.Kind
}

// FindFiles walks root and classifies every file against the engine's
// profile. skip names a directory (usually the output folder) left out of
// the walk. Results are sorted by path.
func (e *Engine) FindFiles(root string, recursive bool, skip string) ([]Candidate, error) {
	var files []Candidate
	skipAbs, _ := filepath.Abs(skip)

	walkFn := func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip files we can't access
		}

		if info.IsDir() {
			if ExcludedDirs[info.Name()] {
				return filepath.SkipDir
			}
			if abs, _ := filepath.Abs(path); skip != "" && abs == skipAbs {
				return filepath.SkipDir
			}
			if !recursive && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if ExcludedNames[info.Name()] {
			return nil
		}

		if kind, ok := e.Classify(path, nil); ok {
			files = append(files, Candidate{Path: path, Kind: kind})
			return nil
		}
		if !sniffable(path) {
			return nil
		}
		if kind, ok := e.Classify(path, readHead(path)); ok {
			files = append(files, Candidate{Path: path, Kind: kind})
		}
		return nil
	}

	if err := filepath.Walk(root, walkFn); err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func readHead(path string) []byte {
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	head := make([]byte, sniffSize)
	n, _ := io.ReadFull(file, head)
	return head[:n]
}
