package result

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccessOutcome(t *testing.T) {
	r := OK(42)
	assert.True(t, r.Success())
	assert.Equal(t, StatusSuccess, r.Status)
	assert.NoError(t, r.Err())
	assert.Equal(t, 42, r.MustData())

	r = OKMsg("done", "payload")
	assert.Equal(t, "done", r.Message)
	assert.Equal(t, "payload", r.Data)
}

func TestFailureOutcome(t *testing.T) {
	cause := fmt.Errorf("variable %q: %w", "x", ErrNotFound)
	r := Fail(cause, "store.Get")
	assert.False(t, r.Success())
	assert.Equal(t, StatusFailure, r.Status)
	assert.Equal(t, "store.Get", r.Context)
	assert.Equal(t, cause.Error(), r.Message)
	assert.ErrorIs(t, r.Err(), ErrNotFound)
	assert.True(t, r.Is(ErrNotFound))
	assert.False(t, r.Is(ErrAlreadyExists))
}

func TestFailf(t *testing.T) {
	r := Failf("segment.Write", "payload %d bytes: %w", 99, ErrPayloadTooLarge)
	assert.True(t, r.Is(ErrPayloadTooLarge))
	assert.Contains(t, r.Message, "99")
}

func TestCancelledOutcome(t *testing.T) {
	r := Cancelled("context deadline exceeded", "facade.Sync")
	assert.Equal(t, StatusCancelled, r.Status)
	assert.False(t, r.Success())
	assert.ErrorIs(t, r.Err(), ErrCancelled)
}

func TestMustDataPanicsOnFailure(t *testing.T) {
	defer func() {
		rec := recover()
		require.NotNil(t, rec)
		err, ok := rec.(error)
		require.True(t, ok)
		assert.ErrorIs(t, err, ErrNotFound)
	}()
	Fail(ErrNotFound, "ctx").MustData()
}

func TestDataAs(t *testing.T) {
	n, err := DataAs[int](OK(7))
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = DataAs[string](OK(7))
	assert.Error(t, err, "wrong dynamic type")

	_, err = DataAs[int](Fail(ErrNotFound, "ctx"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestErrFallsBackToMessage(t *testing.T) {
	r := Result{Status: StatusFailure, Message: "opaque breakage"}
	err := r.Err()
	require.Error(t, err)
	assert.Equal(t, "opaque breakage", err.Error())
}

func TestErrorKindsAreDistinct(t *testing.T) {
	kinds := []error{
		ErrNotFound, ErrAlreadyExists, ErrPayloadTooLarge,
		ErrCorruptHeader, ErrUnsupportedFormat, ErrLockMisuse, ErrCancelled,
	}
	for i, a := range kinds {
		for j, b := range kinds {
			if i != j {
				assert.False(t, errors.Is(a, b), "%v must not match %v", a, b)
			}
		}
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "success", StatusSuccess.String())
	assert.Equal(t, "failure", StatusFailure.String())
	assert.Equal(t, "cancelled", StatusCancelled.String())
}
