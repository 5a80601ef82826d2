// Package config loads the optional snakemkfile.toml project settings
// (core budget, cluster submit command; log_level and workdir are parsed
// into File but not read by the CLI driver), parsed the way
// ternarybob-quaero loads its project TOML config, with pelletier/go-toml/v2.
// CLI flags always take precedence over the file; the file only supplies
// defaults when a flag was not given.
package config

import (
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// File is the on-disk shape of snakemkfile.toml.
type File struct {
	Cores    int    `toml:"cores"`
	Cluster  string `toml:"cluster"`
	LogLevel string `toml:"log_level"`
	Workdir  string `toml:"workdir"`
}

// defaultCores is used when neither --cores nor SNAKEMK_CORES nor the
// project file supplies a value.
const defaultCores = 1

const envCores = "SNAKEMK_CORES"

// Load reads path if present; a missing file is not an error, it simply
// yields a zero-value File so callers fall through to built-in defaults.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{}, nil
		}
		return nil, err
	}
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// ResolveCores applies the precedence flagCores > SNAKEMK_CORES > file.Cores
// > defaultCores. flagCores == 0 means "flag not given".
func ResolveCores(flagCores int, f *File) int {
	if flagCores > 0 {
		return flagCores
	}
	if v := os.Getenv(envCores); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	if f != nil && f.Cores > 0 {
		return f.Cores
	}
	return defaultCores
}

// ResolveCluster applies flagCluster > file.Cluster ("" means local scheduler).
func ResolveCluster(flagCluster string, f *File) string {
	if flagCluster != "" {
		return flagCluster
	}
	if f != nil {
		return f.Cluster
	}
	return ""
}
