package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneMatchesPredefinedByCode(t *testing.T) {
	err := Clone(ErrDuplicatePending, "pending request exists for section sec-1")

	assert.True(t, stderrors.Is(err, ErrDuplicatePending))
	assert.False(t, stderrors.Is(err, ErrAlreadyEnrolled))
	assert.Equal(t, "pending request exists for section sec-1", err.Message)
	assert.Equal(t, http.StatusConflict, err.Status)
}

func TestFromErrorHidesUnknownCause(t *testing.T) {
	cause := fmt.Errorf("pq: connection refused")
	appErr := FromError(cause)

	require.NotNil(t, appErr)
	assert.Equal(t, ErrStorage.Code, appErr.Code)
	assert.Equal(t, ErrStorage.Message, appErr.Message)
	assert.ErrorIs(t, appErr, cause)
}

func TestStorageWrapsThroughFmt(t *testing.T) {
	wrapped := fmt.Errorf("mark attendance: %w", Storage(stderrors.New("deadlock"), "failed to mark attendance"))

	assert.True(t, stderrors.Is(wrapped, ErrStorage))
	assert.Equal(t, "failed to mark attendance", FromError(wrapped).Message)
}
