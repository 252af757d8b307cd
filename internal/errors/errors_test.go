package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		category Category
		severity Severity
		retry    bool
	}{
		{"database open is fatal config", ErrCodeDatabaseOpen, CategoryConfig, SeverityFatal, false},
		{"index missing is IO error", ErrCodeIndexMissing, CategoryIO, SeverityError, false},
		{"persist failure is retryable IO", ErrCodePersistFailed, CategoryIO, SeverityWarning, true},
		{"embedder unavailable is retryable network", ErrCodeEmbedderUnavailable, CategoryNetwork, SeverityWarning, true},
		{"empty content is validation", ErrCodeEmptyContent, CategoryValidation, SeverityError, false},
		{"internal is internal", ErrCodeInternal, CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retry, err.Retryable)
		})
	}
}

func TestSyncError_ErrorFormat(t *testing.T) {
	err := New(ErrCodeIndexMissing, "no index at /tmp/idx", nil)
	assert.Equal(t, "[ERR_201_INDEX_MISSING] no index at /tmp/idx", err.Error())
}

func TestSyncError_UnwrapChain(t *testing.T) {
	cause := stderrors.New("disk on fire")
	err := Wrap(ErrCodePersistFailed, cause)

	require.NotNil(t, err)
	assert.ErrorIs(t, err, cause)
}

func TestSyncError_IsMatchesByCode(t *testing.T) {
	a := New(ErrCodeIndexMissing, "first", nil)
	b := New(ErrCodeIndexMissing, "second", nil)

	assert.ErrorIs(t, a, b)
	assert.NotErrorIs(t, a, New(ErrCodeInternal, "other", nil))
}

func TestHasCode_WalksWrappedChain(t *testing.T) {
	inner := New(ErrCodeEmptyContent, "note has no text", nil)
	outer := fmt.Errorf("indexing n42: %w", inner)

	assert.True(t, HasCode(outer, ErrCodeEmptyContent))
	assert.False(t, HasCode(outer, ErrCodeIndexMissing))
	assert.False(t, HasCode(nil, ErrCodeEmptyContent))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestIsRetryableAndIsFatal(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrCodeNetworkTimeout, "t", nil)))
	assert.False(t, IsRetryable(stderrors.New("plain")))
	assert.True(t, IsFatal(New(ErrCodeLockHeld, "held", nil)))
	assert.False(t, IsFatal(nil))
}
