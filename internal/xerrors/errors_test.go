package xerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TS01: error wrapping preserves the original error.
func TestError_Unwrap_PreservesOriginalError(t *testing.T) {
	originalErr := errors.New("original error")

	wrapped := New(ErrCodeCountMismatch, "chunk count 10 != vector count 9", originalErr)

	require.NotNil(t, wrapped)
	assert.Equal(t, originalErr, errors.Unwrap(wrapped))
	assert.True(t, errors.Is(wrapped, originalErr))
}

func TestError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigInvalid,
			message:  "alpha must be in [0,1]",
			expected: "[ERR_101_CONFIG_INVALID] alpha must be in [0,1]",
		},
		{
			name:     "index file corrupt",
			code:     ErrCodeIndexFileCorrupt,
			message:  "index.bin: unexpected EOF",
			expected: "[ERR_202_INDEX_FILE_CORRUPT] index.bin: unexpected EOF",
		},
		{
			name:     "invalid top_k",
			code:     ErrCodeInvalidTopK,
			message:  "top_k must be >= 1, got 0",
			expected: "[ERR_401_INVALID_TOP_K] top_k must be >= 1, got 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

// TS02: category and severity are derived from the code, not set by hand.
func TestError_CategoryAndSeverity_DerivedFromCode(t *testing.T) {
	tests := []struct {
		code             string
		wantCategory     Category
		wantSeverity     Severity
		wantRetryable    bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{ErrCodeCountMismatch, CategoryIO, SeverityFatal, false},
		{ErrCodeInvalidAlpha, CategoryValidation, SeverityError, false},
		{ErrCodeCacheIO, CategoryCache, SeverityWarning, true},
		{ErrCodeInternal, CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		e := New(tt.code, "msg", nil)
		assert.Equal(t, tt.wantCategory, e.Category, tt.code)
		assert.Equal(t, tt.wantSeverity, e.Severity, tt.code)
		assert.Equal(t, tt.wantRetryable, e.Retryable, tt.code)
	}
}

func TestError_Is_MatchesByCode(t *testing.T) {
	a := New(ErrCodeInvalidTopK, "bad top_k", nil)
	b := New(ErrCodeInvalidTopK, "a different message, same code", nil)
	c := New(ErrCodeInvalidAlpha, "bad alpha", nil)

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestCacheError_IsRetryableNeverFatal(t *testing.T) {
	err := CacheError("sqlite busy", errors.New("database is locked"))
	assert.True(t, IsRetryable(err))
	assert.False(t, IsFatal(err))
}

func TestWrap_NilErrorReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestCode_NonErrorReturnsEmptyString(t *testing.T) {
	assert.Equal(t, "", Code(errors.New("plain error")))
}
