package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuntimeError_Format(t *testing.T) {
	tests := []struct {
		err  *RuntimeError
		want string
	}{
		{&RuntimeError{Code: ErrCodeInvalidMutation, Message: "bad"}, "INVALID_MUTATION: bad"},
		{&RuntimeError{Code: ErrCodeInvalidMutation, Message: "bad", Ref: "/data/a"}, "INVALID_MUTATION: bad (ref=/data/a)"},
		{&RuntimeError{Code: ErrCodeInvalidMutation, Message: "bad", SessionID: "s"}, "INVALID_MUTATION: bad (session=s)"},
		{&RuntimeError{Code: ErrCodeInvalidMutation, Message: "bad", SessionID: "s", Ref: "/data/a"}, "INVALID_MUTATION: bad (session=s, ref=/data/a)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}

func TestRuntimeError_Predicates(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewUnknownLanguageError("s", "xx", []string{"en"}))
	assert.True(t, IsUnknownLanguageError(wrapped))
	assert.False(t, IsReentrantError(wrapped))

	assert.True(t, IsReentrantError(fmt.Errorf("outer: %w", ErrReentrantMutation)))
	assert.False(t, IsReentrantError(nil))
}
