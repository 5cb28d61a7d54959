package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"validation", Validation(MsgUpdateRequired), "Update options are required"},
		{"unsupported op", UnsupportedOperator("REGEX"), "Unsupported operator: REGEX"},
		{"unsupported fn", UnsupportedFunction("TRIM"), "Unsupported function: TRIM"},
		{"transaction", Transaction(MsgTxMismatch), "Transaction mismatch"},
		{"backend", Backend(errors.New("connection refused")), "connection refused"},
		{"conflict", Conflict(errors.New("UNIQUE constraint failed: users.email")), "unique constraint violated: UNIQUE constraint failed: users.email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestPredicates_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("restoreOne: %w", NotFound(MsgNotFoundOrRestore))

	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsValidation(wrapped))
	assert.Equal(t, CodeNotFound, CodeOf(wrapped))

	assert.True(t, IsTransaction(Transaction(MsgTxInProgress)))
	assert.True(t, IsConflict(Conflict(errors.New("dup"))))
	assert.True(t, IsBackend(Backend(errors.New("boom"))))
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
	assert.False(t, IsNotFound(nil))
}

func TestError_UnwrapAndOp(t *testing.T) {
	cause := errors.New("disk full")
	err := Backend(cause).WithOp("insertOne")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "insertOne", err.Op)
	assert.Equal(t, CodeBackend, err.Code)
}
