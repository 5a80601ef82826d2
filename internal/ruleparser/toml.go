// Package ruleparser is a concrete implementation of the snakemake.Parser
// collaborator (out of scope for the core per spec, interface only): it
// reads a declarative TOML rules file and turns it into a series of
// AddRule calls, the way the teacher's own parse.go turns an mkfile's AST
// into rule registrations, just against a tabular surface syntax instead of
// a decorator-chained one.
package ruleparser

import (
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/tstannius/snakemake"
	"github.com/tstannius/snakemake/pathattr"
)

// Doc is the on-disk shape of a rules file.
type Doc struct {
	First string    `toml:"first"`
	Rule  []RawRule `toml:"rule"`
}

// RawRule is one [[rule]] table entry.
type RawRule struct {
	Name      string   `toml:"name"`
	Inputs    []string `toml:"inputs"`
	Outputs   []string `toml:"outputs"`
	Protected []string `toml:"protected"`
	Temp      []string `toml:"temp"`
	Threads   int      `toml:"threads"`
	Message   string   `toml:"message"`
	Shell     string   `toml:"shell"`
}

// TOMLParser implements snakemake.Parser. The map its Include returns holds,
// for each rule name, the 1-based position of that rule's [[rule]] table
// among the file's rule tables; it does not hold source line numbers.
type TOMLParser struct{}

func (TOMLParser) Include(w *snakemake.Workflow, file string) (map[string]int, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var doc Doc
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	lineMap := map[string]int{}
	for i, raw := range doc.Rule {
		r := snakemake.NewRule(raw.Name)
		if raw.Threads > 0 {
			r.SetThreads(raw.Threads)
		}
		r.SetMessage(raw.Message)
		if raw.Shell != "" {
			r.Action = snakemake.ShellAction{Template: raw.Shell}
		}

		if err := r.SetInput(raw.Inputs, nil); err != nil {
			return nil, err
		}

		outputs := make([]pathattr.Path, len(raw.Outputs))
		for k, o := range raw.Outputs {
			p := pathattr.New(o)
			if contains(raw.Protected, o) {
				p = p.WithProtected()
			}
			if contains(raw.Temp, o) {
				p = p.WithTemp()
			}
			outputs[k] = p
		}
		if err := r.SetOutput(outputs, nil); err != nil {
			return nil, err
		}

		if err := w.AddRule(r); err != nil {
			return nil, err
		}
		lineMap[raw.Name] = i + 1
	}

	if doc.First != "" {
		if err := w.SetFirst(doc.First); err != nil {
			return nil, err
		}
	}

	return lineMap, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
