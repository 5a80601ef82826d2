package pathattr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAttrsComposeOrthogonally(t *testing.T) {
	p := New("build/out.bin").WithProtected().WithTemp()

	require.True(t, p.IsProtected())
	require.True(t, p.IsTemp())
	require.False(t, p.IsDynamic())
}

func TestWithNamePreservesAttrs(t *testing.T) {
	p := ProtectedOf("a/{x}.o").WithName("a/foo.o")

	require.Equal(t, "a/foo.o", p.Name)
	require.True(t, p.IsProtected(), "expected protected to survive WithName")
}
