package wrappers_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/warp/utils/wrappers"
)

func TestErrs_EmptyReturnsNilAndNotErrored(t *testing.T) {
	var e wrappers.Errs
	require.False(t, e.Errored())
	require.NoError(t, e.Err())
	require.Equal(t, 0, e.Len())
}

func TestErrs_SingleErrorReturnsItUnwrapped(t *testing.T) {
	var e wrappers.Errs
	want := errors.New("boom")
	e.Add(want)
	require.True(t, e.Errored())
	require.Equal(t, 1, e.Len())
	require.Same(t, want, e.Err())
}

func TestErrs_MultipleErrorsCombineIntoOne(t *testing.T) {
	var e wrappers.Errs
	e.Add(errors.New("first"))
	e.Add(errors.New("second"))
	require.Equal(t, 2, e.Len())
	require.Error(t, e.Err())
	require.Contains(t, e.String(), "first")
	require.Contains(t, e.String(), "second")
}

func TestErrs_AddNilIsNoOp(t *testing.T) {
	var e wrappers.Errs
	e.Add(nil)
	require.False(t, e.Errored())
}
