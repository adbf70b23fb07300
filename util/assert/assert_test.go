package assert

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssertPanicsWithFormattedMessage(t *testing.T) {
	require.PanicsWithValue(t, "assertion failed: invalid range [5, 3]", func() {
		Assert(5 <= 3, "invalid range [%d, %d]", 5, 3)
	})
	require.NotPanics(t, func() { Assert(true, "never shown") })
}

func TestAssertKeepsPercentInPlainMessage(t *testing.T) {
	require.PanicsWithValue(t, "assertion failed: 100% wrong", func() {
		Assert(false, "%d%% wrong", 100)
	})
}

func TestIsNil(t *testing.T) {
	require.NotPanics(t, func() { IsNil(nil) })

	var p *int
	require.NotPanics(t, func() { IsNil(p) })

	require.PanicsWithValue(t, "expected nil: got boom", func() { IsNil(errors.New("boom")) })
	require.PanicsWithValue(t, "expected nil: socket must be open", func() { IsNil(errors.New("boom"), "socket must be open") })
}

func TestIsNotNilDetectsTypedNil(t *testing.T) {
	var p *int
	require.PanicsWithValue(t, "unexpected nil: pointer must be set", func() { IsNotNil(p, "pointer must be set") })

	x := 1
	require.NotPanics(t, func() { IsNotNil(&x) })
}

func TestNever(t *testing.T) {
	require.PanicsWithValue(t, "unreachable code reached: kind 7", func() { Never("kind %d", 7) })
}
