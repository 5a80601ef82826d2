package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileIsNotError(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	require.Equal(t, 0, f.Cores)
}

func TestLoadParsesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snakemkfile.toml")
	require.NoError(t, os.WriteFile(path, []byte("cores = 4\ncluster = \"qsub\"\n"), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4, f.Cores)
	require.Equal(t, "qsub", f.Cluster)
}

func TestResolveCoresPrecedence(t *testing.T) {
	t.Setenv("SNAKEMK_CORES", "")

	require.Equal(t, 8, ResolveCores(8, &File{Cores: 2}))
	require.Equal(t, 2, ResolveCores(0, &File{Cores: 2}))
	require.Equal(t, defaultCores, ResolveCores(0, &File{}))
}

func TestResolveCoresEnvFallback(t *testing.T) {
	t.Setenv(envCores, "6")
	require.Equal(t, 6, ResolveCores(0, &File{}))
	require.Equal(t, 3, ResolveCores(3, &File{}))
}

func TestResolveCluster(t *testing.T) {
	require.Equal(t, "qsub", ResolveCluster("qsub", &File{Cluster: "srun"}))
	require.Equal(t, "srun", ResolveCluster("", &File{Cluster: "srun"}))
	require.Equal(t, "", ResolveCluster("", &File{}))
}
