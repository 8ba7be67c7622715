package errors

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	sentinel := New(ErrCodeConflict, "flow is not active")

	tests := []struct {
		name string
		err  error
		want Code
	}{
		{name: "plain app error", err: New(ErrCodeForbidden, "nope"), want: ErrCodeForbidden},
		{name: "wrapped sentinel", err: fmt.Errorf("%w: document d1", sentinel), want: ErrCodeConflict},
		{name: "wrap of foreign error", err: Wrap(io.EOF, ErrCodeUnavailable, "busy"), want: ErrCodeUnavailable},
		{name: "not found helper", err: NotFound("document", "d1"), want: ErrCodeNotFound},
		{name: "invalid input helper", err: InvalidInput("steps", "empty"), want: ErrCodeInvalidInput},
		{name: "foreign error", err: io.EOF, want: ErrCodeInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CodeOf(tc.err))
		})
	}
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "ignored"))

	err := Wrap(io.EOF, ErrCodeInternal, "failed to read")
	assert.True(t, Is(err, io.EOF))
	assert.Equal(t, "failed to read: EOF", err.Error())
}

func TestSentinelIdentity(t *testing.T) {
	sentinel := New(ErrCodeForbidden, "actor is not an assigned approver")
	err := fmt.Errorf("%w: actor u9", sentinel)

	assert.True(t, Is(err, sentinel))
	assert.False(t, Is(err, New(ErrCodeForbidden, "actor is not an assigned approver")))

	var appErr *AppError
	assert.True(t, As(err, &appErr))
	assert.Equal(t, "actor is not an assigned approver", appErr.Message)
}

func TestInvalidInputField(t *testing.T) {
	err := InvalidInput("reason", "too long")
	assert.Equal(t, "reason", err.Field)
	assert.Equal(t, "invalid reason: too long", err.Error())
}
