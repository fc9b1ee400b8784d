package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemoteWriteErrorCarriesMessage(t *testing.T) {
	cause := stderrors.New("permission denied")
	err := NewRemoteWriteError("delete", cause)

	assert.Equal(t, "permission denied", err.Message)
	assert.Equal(t, "remote write [delete]: permission denied", err.Error())
	assert.True(t, Is(err, cause))

	var rwe *RemoteWriteError
	assert.True(t, As(Wrap(err, "deleting trade"), &rwe))
	assert.Equal(t, "delete", rwe.Operation)
}

func TestRemoteWriteErrorNilCause(t *testing.T) {
	err := NewRemoteWriteError("update", nil)
	assert.Equal(t, "an unknown error occurred", err.Message)
	assert.Nil(t, err.Unwrap())
}

func TestValidationErrorUnwrapsToSentinel(t *testing.T) {
	err := NewValidationError("qty", 0, "must be positive")
	assert.True(t, Is(err, ErrInputValidation))
	assert.Contains(t, err.Error(), "qty")
}

func TestImportErrorRetryable(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{0, true},
		{429, true},
		{500, true},
		{503, true},
		{400, false},
		{404, false},
	}
	for _, c := range cases {
		err := NewImportError("screenshot", c.status, "x", nil)
		assert.Equal(t, c.want, err.Retryable(), "status %d", c.status)
	}
	assert.True(t, Is(NewImportError("csv", 400, "bad", nil), ErrImportFailed))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "x"))
	assert.Nil(t, Wrapf(nil, "x %d", 1))
}
