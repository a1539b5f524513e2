package store_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	ledgererrors "github.com/listenupapp/ledger-server/internal/errors"
	"github.com/listenupapp/ledger-server/internal/store"
)

func TestError_Error(t *testing.T) {
	err := &store.Error{Code: ledgererrors.CodeNotFound, Message: "not found"}

	assert.Equal(t, "not found", err.Error())
}

func TestError_ErrorWithCause(t *testing.T) {
	err := &store.Error{
		Code:    ledgererrors.CodeInternal,
		Message: "query failed",
		Err:     errors.New("disk I/O error"),
	}

	assert.Equal(t, "query failed: disk I/O error", err.Error())
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := store.ErrInvalidInput.WithCause(cause)

	assert.Equal(t, cause, err.Unwrap())
	assert.ErrorIs(t, err, cause)
}

func TestError_WithMessage(t *testing.T) {
	modified := store.ErrNotFound.WithMessage("import imp-1 not found")

	assert.Equal(t, "import imp-1 not found", modified.Message)
	assert.Equal(t, ledgererrors.CodeNotFound, modified.Code)
	assert.Equal(t, "resource not found", store.ErrNotFound.Message)
}

func TestError_IsByCode(t *testing.T) {
	wrapped := fmt.Errorf("get import: %w", store.ErrNotFound.WithMessage("import imp-1 not found"))

	assert.ErrorIs(t, wrapped, store.ErrNotFound)
	assert.ErrorIs(t, wrapped, ledgererrors.ErrNotFound)
	assert.NotErrorIs(t, wrapped, store.ErrAlreadyExists)
	assert.Equal(t, ledgererrors.CodeConflict, store.ErrAlreadyExists.Code)
}
