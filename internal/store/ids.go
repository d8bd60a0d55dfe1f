package store

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"

	kberrors "github.com/Aman-CERP/amankb/internal/errors"
)

var namespacePattern = regexp.MustCompile(`^[a-z0-9-]{1,64}$`)

// ValidateNamespace checks the slug format [a-z0-9-]{1,64}.
func ValidateNamespace(ns string) error {
	if !namespacePattern.MatchString(ns) {
		return kberrors.InvalidNamespace(ns)
	}
	return nil
}

// DocumentID derives the stable document ID from its natural key, so the same
// (namespace, source URI) always maps to the same row.
func DocumentID(namespace, sourceURI string) string {
	return hashID(namespace, sourceURI)
}

// ChunkID is content-addressed within a document version.
func ChunkID(documentID string, ordinal int, content string) string {
	return hashID(documentID, strconv.Itoa(ordinal), content)
}

func hashID(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}
