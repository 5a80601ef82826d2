package snakemake

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePatternNoWildcards(t *testing.T) {
	p, ok, err := ParsePattern("a/b.txt")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, "a/b.txt", p.Raw)
}

func TestParsePatternSingleWildcard(t *testing.T) {
	p, ok, err := ParsePattern("build/{name}.o")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"name"}, p.Captures)
}

func TestMatchAndExpandRoundTrip(t *testing.T) {
	p, ok, err := ParsePattern("build/{config}/{name}.o")
	require.NoError(t, err)
	require.True(t, ok)

	captures, matched := p.Match("build/debug/foo.o")
	require.True(t, matched)
	require.Equal(t, map[string]string{"config": "debug", "name": "foo"}, captures)

	require.Equal(t, "build/debug/foo.o", p.Expand(captures))
}

func TestMatchRejectsSlashInCapture(t *testing.T) {
	p, _, err := ParsePattern("build/{name}.o")
	require.NoError(t, err)

	_, matched := p.Match("build/a/b.o")
	require.False(t, matched)
}

func TestMatchRepeatedWildcardMustAgree(t *testing.T) {
	p, _, err := ParsePattern("{name}/{name}.txt")
	require.NoError(t, err)

	_, matched := p.Match("foo/bar.txt")
	require.False(t, matched, "repeated wildcard must bind consistently")

	captures, matched := p.Match("foo/foo.txt")
	require.True(t, matched)
	require.Equal(t, "foo", captures["name"])
}

func TestEmptyWildcardNameIsError(t *testing.T) {
	_, _, err := ParsePattern("build/{}.o")
	require.Error(t, err)
}
