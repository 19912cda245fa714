package afcore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredError(t *testing.T) {
	err := NewError("comp_create", ErrInvalidValue, "num_output_buffers out of range")

	assert.Equal(t, "comp_create", err.Op)
	assert.Equal(t, ErrInvalidValue, err.Code)
	assert.Equal(t, "afcore: comp_create: num_output_buffers out of range", err.Error())
}

func TestErrorIsByCode(t *testing.T) {
	err := NewError("device_close", ErrAPIMisuse, "device already RESET")

	assert.True(t, errors.Is(err, &Error{Code: ErrAPIMisuse}), "expected errors.Is to match on code")
	assert.False(t, errors.Is(err, &Error{Code: ErrMemory}), "expected errors.Is to not match a different code")
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError("device_open", ErrRTOS, nil), "expected WrapError(nil) to return nil")

	inner := errors.New("eventfd: too many open files")
	wrapped := WrapError("device_open", ErrRTOS, inner)
	require.NotNil(t, wrapped)
	assert.Equal(t, ErrRTOS, wrapped.Code)
	assert.True(t, errors.Is(wrapped, &Error{Code: ErrRTOS}), "expected errors.Is to match through wrapping")
	assert.Equal(t, inner, errors.Unwrap(wrapped))
}

func TestWrapErrorPreservesCode(t *testing.T) {
	original := NewError("registry.alloc", ErrMemory, "no free client ids")
	wrapped := WrapError("comp_create", ErrInvalidValue, original)

	assert.Equal(t, ErrMemory, wrapped.Code, "expected WrapError to preserve the original code")
}

func TestIsCode(t *testing.T) {
	err := NewError("routing.route", ErrRouting, "peer already connected")
	assert.True(t, IsCode(err, ErrRouting), "expected IsCode to report true for matching code")
	assert.False(t, IsCode(err, ErrMemory), "expected IsCode to report false for non-matching code")
	assert.False(t, IsCode(errors.New("plain error"), ErrRouting), "expected IsCode to report false for non-*Error values")
}
