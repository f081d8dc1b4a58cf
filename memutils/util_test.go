package memutils

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestCheckPow2(t *testing.T) {
	require.NoError(t, CheckPow2(uint(1), "alignment"))
	require.NoError(t, CheckPow2(64, "alignment"))

	err := CheckPow2(uint(12), "alignment")
	require.ErrorContains(t, err, "alignment is 12")
	require.Equal(t, ErrNotPowerOfTwo, errors.Cause(err))

	require.Error(t, CheckPow2(0, "alignment"))
}

func TestAlign(t *testing.T) {
	require.Equal(t, 0, AlignUp(0, 4))
	require.Equal(t, 4, AlignUp(1, 4))
	require.Equal(t, 64, AlignUp(64, 32))
	require.Equal(t, 96, AlignDown(127, 32))
	require.Equal(t, 7, AlignDown(7, 1))
}
