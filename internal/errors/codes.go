// Package errors provides structured error handling for AmanKB.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (chunk store, database, disk)
//   - 3XX: Index and collaborator availability errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	CategoryConfig       Category = "CONFIG"
	CategoryStorage      Category = "STORAGE"
	CategoryAvailability Category = "AVAILABILITY"
	CategoryValidation   Category = "VALIDATION"
	CategoryInternal     Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeStorageFailed    = "ERR_201_STORAGE_FAILED"
	ErrCodeDocumentNotFound = "ERR_202_DOCUMENT_NOT_FOUND"
	ErrCodeChunkNotFound    = "ERR_203_CHUNK_NOT_FOUND"
	ErrCodeStoreLocked      = "ERR_204_STORE_LOCKED"
	ErrCodeCorruptIndex     = "ERR_205_CORRUPT_INDEX"

	// Availability errors (300-399)
	ErrCodeIndexUnavailable     = "ERR_301_INDEX_UNAVAILABLE"
	ErrCodeEmbeddingUnavailable = "ERR_302_EMBEDDING_UNAVAILABLE"
	ErrCodeRerankUnavailable    = "ERR_303_RERANK_UNAVAILABLE"
	ErrCodeNetworkTimeout       = "ERR_304_NETWORK_TIMEOUT"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeMalformedQuery    = "ERR_403_MALFORMED_QUERY"
	ErrCodeNamespaceNotFound = "ERR_404_NAMESPACE_NOT_FOUND"
	ErrCodeInvalidNamespace  = "ERR_405_INVALID_NAMESPACE"
	ErrCodeInvalidRating     = "ERR_406_INVALID_RATING"
	ErrCodeAlreadyIndexing   = "ERR_407_ALREADY_INDEXING"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"
	ErrCodeChunkingFailed  = "ERR_504_CHUNKING_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "ERR_301_..." -> '3'
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryAvailability
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex:
		return SeverityFatal
	case ErrCodeIndexUnavailable, ErrCodeEmbeddingUnavailable, ErrCodeRerankUnavailable:
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeStoreLocked, ErrCodeAlreadyIndexing, ErrCodeStorageFailed:
		return true
	default:
		return false
	}
}
