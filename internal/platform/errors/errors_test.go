package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{name: "nil", err: nil, want: ""},
		{name: "structured", err: New(ErrCodePeriodLocked, "locked"), want: ErrCodePeriodLocked},
		{name: "wrapped by fmt", err: fmt.Errorf("outer: %w", New(ErrCodeNotApprover, "no")), want: ErrCodeNotApprover},
		{name: "foreign", err: stderrors.New("boom"), want: ErrCodeInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CodeOf(tc.err))
		})
	}
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "ignored"))

	cause := stderrors.New("connection reset")
	err := Wrap(cause, ErrCodeInternal, "failed to load period")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, "INTERNAL: failed to load period: connection reset", err.Error())
}

func TestWithExtra(t *testing.T) {
	err := New(ErrCodeActualsOver100, "total exceeds 100").
		WithExtra("resource_id", "res-1").
		WithExtra("total_percent", 105)

	e, ok := As(fmt.Errorf("ctx: %w", err))
	require.True(t, ok)
	assert.Equal(t, "res-1", e.Extras["resource_id"])
	assert.Equal(t, 105, e.Extras["total_percent"])
}

func TestHelpers(t *testing.T) {
	nf := NotFound("period", "p-1")
	assert.Equal(t, ErrCodeNotFound, nf.Code)
	assert.Equal(t, "period p-1 not found", nf.Message)

	in := InvalidInput("reason", "reason is required")
	assert.Equal(t, "reason", in.Extras["field"])

	assert.True(t, HasCode(Forbidden("nope"), ErrCodeForbidden))
	assert.False(t, HasCode(nil, ErrCodeForbidden))
}
