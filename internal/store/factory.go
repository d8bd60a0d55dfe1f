package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// LexicalBackend selects the lexical index implementation.
type LexicalBackend string

const (
	// LexicalBackendSQLite uses the FTS5 table inside the chunk store, written
	// in the same transaction as the chunks (default).
	LexicalBackendSQLite LexicalBackend = "sqlite"

	// LexicalBackendBleve keeps a separate Bleve index that is updated after
	// each commit. Single process only (BoltDB lock).
	LexicalBackendBleve LexicalBackend = "bleve"
)

// NewLexicalIndex creates the lexical index for backend. For bleve, dataDir
// holds lexical.bleve; an empty dataDir gives an in-memory index.
func NewLexicalIndex(backend string, chunks *SQLiteStore, dataDir string) (LexicalIndex, error) {
	switch LexicalBackend(backend) {
	case LexicalBackendSQLite, "":
		return NewSQLiteLexicalIndex(chunks), nil
	case LexicalBackendBleve:
		return NewBleveLexicalIndex(LexicalIndexPath(dataDir, backend))
	default:
		return nil, fmt.Errorf("unknown lexical backend: %s (valid options: sqlite, bleve)", backend)
	}
}

// LexicalIndexPath returns where a backend keeps its files. The sqlite
// backend shares the chunk database.
func LexicalIndexPath(dataDir, backend string) string {
	if dataDir == "" {
		return ""
	}
	if LexicalBackend(backend) == LexicalBackendBleve {
		return filepath.Join(dataDir, "lexical.bleve")
	}
	return filepath.Join(dataDir, DatabaseFile)
}

// DetectLexicalBackend reports which backend files exist in dataDir, so a
// data directory created with bleve keeps using it when config is silent.
func DetectLexicalBackend(dataDir string) LexicalBackend {
	if dirExists(filepath.Join(dataDir, "lexical.bleve")) {
		return LexicalBackendBleve
	}
	if fileExists(filepath.Join(dataDir, DatabaseFile)) {
		return LexicalBackendSQLite
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
