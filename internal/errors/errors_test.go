package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKBError_Unwrap_PreservesCause(t *testing.T) {
	// Given: an original error
	cause := errors.New("disk I/O error")

	// When: wrapping it as a storage error
	err := StorageError("put document failed", cause)

	// Then: the cause is reachable through the chain
	require.NotNil(t, err)
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}

func TestKBError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{"config", ErrCodeConfigInvalid, "bad weights", "[ERR_102_CONFIG_INVALID] bad weights"},
		{"storage", ErrCodeStorageFailed, "tx failed", "[ERR_201_STORAGE_FAILED] tx failed"},
		{"availability", ErrCodeIndexUnavailable, "vector index unavailable", "[ERR_301_INDEX_UNAVAILABLE] vector index unavailable"},
		{"validation", ErrCodeNamespaceNotFound, "namespace not found: x", "[ERR_404_NAMESPACE_NOT_FOUND] namespace not found: x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, New(tt.code, tt.message, nil).Error())
		})
	}
}

func TestKBError_Is_MatchesSentinelThroughWrapping(t *testing.T) {
	// Given: a namespace error wrapped by fmt.Errorf
	err := fmt.Errorf("search: %w", NamespaceNotFound("coding"))

	// Then: it matches the sentinel by code and nothing else
	assert.True(t, errors.Is(err, ErrNamespaceNotFound))
	assert.False(t, errors.Is(err, ErrInvalidNamespace))
	assert.Equal(t, ErrCodeNamespaceNotFound, GetCode(err))
}

func TestNew_DerivesCategorySeverityRetryable(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{ErrCodeStorageFailed, CategoryStorage, SeverityWarning, true},
		{ErrCodeCorruptIndex, CategoryStorage, SeverityFatal, false},
		{ErrCodeIndexUnavailable, CategoryAvailability, SeverityWarning, false},
		{ErrCodeAlreadyIndexing, CategoryValidation, SeverityWarning, true},
		{ErrCodeInvalidRating, CategoryValidation, SeverityError, false},
		{ErrCodeInternal, CategoryInternal, SeverityError, false},
		{"bad", CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestWithDetail_AndSuggestion(t *testing.T) {
	err := InvalidNamespace("Bad NS")

	assert.Equal(t, "Bad NS", err.Details["namespace"])
	assert.NotEmpty(t, err.Suggestion)
	assert.Contains(t, FormatForCLI(err), "Hint:")
	assert.Contains(t, FormatForCLI(err), ErrCodeInvalidNamespace)
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestIsRetryable_FollowsChain(t *testing.T) {
	err := fmt.Errorf("ingest: %w", New(ErrCodeAlreadyIndexing, "busy", nil))

	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestLogAttrs_IncludesDetailsInStableOrder(t *testing.T) {
	err := New(ErrCodeStorageFailed, "tx failed", errors.New("locked")).
		WithDetail("namespace", "it-support").
		WithDetail("document", "abc")

	attrs := LogAttrs(err)

	require.Len(t, attrs, 7)
	assert.Contains(t, fmt.Sprint(attrs[5]), "detail_document")
	assert.Contains(t, fmt.Sprint(attrs[6]), "detail_namespace")
	assert.Nil(t, LogAttrs(nil))
}
