package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound("device")))
	assert.Equal(t, KindValidation, KindOf(Validationf("bad %s", "field")))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestKindSurvivesWrapping(t *testing.T) {
	inner := New(KindConflict, "duplicate key")
	outer := fmt.Errorf("submit: %w", inner)

	assert.Equal(t, KindConflict, KindOf(outer))
	assert.True(t, IsKind(outer, KindConflict))
	assert.False(t, IsKind(outer, KindNotFound))
}

func TestWrap(t *testing.T) {
	t.Run("nil cause yields nil", func(t *testing.T) {
		assert.NoError(t, Wrap(KindUnavailable, "queue down", nil))
	})

	t.Run("cause stays reachable", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(KindUnavailable, "queue down", cause)
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "unavailable")
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestRetryable(t *testing.T) {
	testCases := []struct {
		kind      Kind
		retryable bool
	}{
		{KindUnavailable, true},
		{KindTimeout, true},
		{KindValidation, false},
		{KindNotFound, false},
		{KindConflict, false},
		{KindInternal, false},
	}
	for _, tc := range testCases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			err := &Error{Kind: tc.kind, Msg: "x"}
			assert.Equal(t, tc.retryable, err.Retryable())
		})
	}
}
