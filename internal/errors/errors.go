package errors

import (
	stderrors "errors"
	"fmt"
)

// KBError is the structured error type for AmanKB.
type KBError struct {
	// Code is the unique error code (e.g., "ERR_404_NAMESPACE_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Sentinels for errors.Is comparisons. Matching is by code, so any KBError
// carrying the same code matches regardless of message or details.
var (
	ErrStorage              = &KBError{Code: ErrCodeStorageFailed}
	ErrDocumentNotFound     = &KBError{Code: ErrCodeDocumentNotFound}
	ErrChunkNotFound        = &KBError{Code: ErrCodeChunkNotFound}
	ErrIndexUnavailable     = &KBError{Code: ErrCodeIndexUnavailable}
	ErrEmbeddingUnavailable = &KBError{Code: ErrCodeEmbeddingUnavailable}
	ErrMalformedQuery       = &KBError{Code: ErrCodeMalformedQuery}
	ErrNamespaceNotFound    = &KBError{Code: ErrCodeNamespaceNotFound}
	ErrInvalidNamespace     = &KBError{Code: ErrCodeInvalidNamespace}
	ErrInvalidRating        = &KBError{Code: ErrCodeInvalidRating}
	ErrAlreadyIndexing      = &KBError{Code: ErrCodeAlreadyIndexing}
)

func (e *KBError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *KBError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *KBError) Is(target error) bool {
	if t, ok := target.(*KBError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *KBError) WithDetail(key, value string) *KBError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *KBError) WithSuggestion(suggestion string) *KBError {
	e.Suggestion = suggestion
	return e
}

// New creates a new KBError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *KBError {
	return &KBError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a KBError from an existing error.
func Wrap(code string, err error) *KBError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// StorageError reports a failed chunk store transaction. The caller may retry.
func StorageError(message string, cause error) *KBError {
	return New(ErrCodeStorageFailed, message, cause)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *KBError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IndexUnavailable reports that a lexical or vector index cannot serve queries.
func IndexUnavailable(index string, cause error) *KBError {
	return New(ErrCodeIndexUnavailable, index+" index unavailable", cause).
		WithDetail("index", index)
}

func EmbeddingUnavailable(message string, cause error) *KBError {
	return New(ErrCodeEmbeddingUnavailable, message, cause).
		WithSuggestion("Configure embeddings.provider or run lexical-only")
}

func NamespaceNotFound(ns string) *KBError {
	return New(ErrCodeNamespaceNotFound, "namespace not found: "+ns, nil).
		WithDetail("namespace", ns)
}

func InvalidNamespace(ns string) *KBError {
	return New(ErrCodeInvalidNamespace, fmt.Sprintf("invalid namespace %q", ns), nil).
		WithDetail("namespace", ns).
		WithSuggestion("Use 1-64 characters from a-z, 0-9 and '-'")
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *KBError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *KBError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable reports whether any KBError in err's chain is retryable.
func IsRetryable(err error) bool {
	var ke *KBError
	if stderrors.As(err, &ke) {
		return ke.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var ke *KBError
	if stderrors.As(err, &ke) {
		return ke.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from the first KBError in err's chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var ke *KBError
	if stderrors.As(err, &ke) {
		return ke.Code
	}
	return ""
}
