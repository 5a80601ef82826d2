// Package snakemake is the core rule-and-file dependency resolver and job
// scheduler described by spec.md. It is adapted from marcelocantos/mk's flat
// root package layout (graph.go/exec.go/pattern.go), replacing mk's
// mtime-and-content-hash Makefile semantics with a rule/job model whose
// staleness check is mtime-only and whose execution is governed by a
// knapsack core budget instead of a plain goroutine-per-target fan-out.
package snakemake

import (
	"context"
	"strings"

	"github.com/tstannius/snakemake/internal/builderr"
	"github.com/tstannius/snakemake/pathattr"
)

// SourceLoc is where a rule was declared, for diagnostics (§6: the parser
// collaborator returns a rule-name -> line mapping that a caller can attach
// here; nothing in this repository sets it).
type SourceLoc struct {
	File string
	Line int
}

// Rule is the declarative transform of spec.md §3: input and output
// patterns, a thread requirement, a message template, and an opaque action.
type Rule struct {
	Name        string
	Threads     int
	MessageTmpl string
	Action      Action
	Loc         SourceLoc

	posInputs    []string
	namedInputs  map[string]string
	posOutputs   []pathattr.Path
	namedOutputs map[string]pathattr.Path

	inputSet  bool
	outputSet bool
}

// Action is the opaque collaborator that executes a rule's recipe. The core
// only ever calls Run and waits for it to return; everything about how the
// action talks to a shell or a cluster submitter is its own concern (§6).
type Action interface {
	Run(ctx context.Context, j *Job) error
}

// NewRule creates an empty rule with the default thread count of 1.
func NewRule(name string) *Rule {
	return &Rule{
		Name:         name,
		Threads:      1,
		namedInputs:  map[string]string{},
		namedOutputs: map[string]pathattr.Path{},
	}
}

// SetInput is a one-shot setter: calling it a second time on the same rule
// returns a CreateRule error and leaves the first inputs in place (§4.2).
func (r *Rule) SetInput(positional []string, named map[string]string) error {
	if r.inputSet {
		return builderr.New(builderr.CreateRule, "rule %q: set_input called more than once", r.Name)
	}
	r.posInputs = append([]string(nil), positional...)
	for k, v := range named {
		r.namedInputs[k] = v
	}
	r.inputSet = true
	return nil
}

// SetOutput is the output counterpart of SetInput.
func (r *Rule) SetOutput(positional []pathattr.Path, named map[string]pathattr.Path) error {
	if r.outputSet {
		return builderr.New(builderr.CreateRule, "rule %q: set_output called more than once", r.Name)
	}
	r.posOutputs = append([]pathattr.Path(nil), positional...)
	for k, v := range named {
		r.namedOutputs[k] = v
	}
	r.outputSet = true
	return nil
}

// SetThreads records the rule's declared thread requirement. Clamping to
// the workflow's core budget happens at scheduling time, not here (§4.2).
func (r *Rule) SetThreads(n int) {
	if n < 1 {
		n = 1
	}
	r.Threads = n
}

func (r *Rule) SetMessage(tmpl string) { r.MessageTmpl = tmpl }

// AllOutputs returns positional outputs followed by named outputs in a
// stable (sorted-by-key) order, for deterministic iteration.
func (r *Rule) AllOutputs() []pathattr.Path {
	out := append([]pathattr.Path(nil), r.posOutputs...)
	for _, k := range sortedKeysPath(r.namedOutputs) {
		out = append(out, r.namedOutputs[k])
	}
	return out
}

// AllInputs mirrors AllOutputs for input patterns.
func (r *Rule) AllInputs() []string {
	in := append([]string(nil), r.posInputs...)
	for _, k := range sortedKeysString(r.namedInputs) {
		in = append(in, r.namedInputs[k])
	}
	return in
}

// Check validates the invariants of §4.2: output patterns are non-empty,
// and every wildcard is bound symmetrically between inputs and outputs.
func (r *Rule) Check() error {
	outputs := r.AllOutputs()
	if len(outputs) == 0 {
		return builderr.New(builderr.CreateRule, "rule %q: output patterns must be non-empty", r.Name)
	}

	outWild := map[string]bool{}
	for _, o := range outputs {
		for _, w := range Wildcards(o.Name) {
			outWild[w] = true
		}
	}
	inWild := map[string]bool{}
	for _, in := range r.AllInputs() {
		for _, w := range Wildcards(in) {
			inWild[w] = true
		}
	}
	for w := range inWild {
		if !outWild[w] {
			return builderr.New(builderr.CreateRule, "rule %q: wildcard %q appears in an input but no output", r.Name, w)
		}
	}
	for w := range outWild {
		if !inWild[w] {
			return builderr.New(builderr.CreateRule, "rule %q: wildcard %q appears in an output but no input", r.Name, w)
		}
	}
	return nil
}

// IsProducer reports whether file matches one of r's output patterns under
// some wildcard binding, returning that binding.
func (r *Rule) IsProducer(file string) (map[string]string, bool) {
	for _, out := range r.AllOutputs() {
		pat, isPat, err := ParsePattern(out.Name)
		if err != nil {
			continue
		}
		if !isPat {
			if out.Name == file {
				return map[string]string{}, true
			}
			continue
		}
		if b, ok := pat.Match(file); ok {
			return b, true
		}
	}
	return nil, false
}

func sortedKeysPath(m map[string]pathattr.Path) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortStrings(keys)
	return keys
}

func sortedKeysString(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortStrings(keys)
	return keys
}

// sortStrings avoids importing "sort" in two places for one tiny insertion
// sort-sized use; named distinctly from the stdlib function to keep call
// sites unambiguous.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// bindingSignature produces a stable string key for a wildcard binding, used
// to detect a (rule, binding) pair being revisited during expansion (§4.2
// step 3a, cycle detection).
func bindingSignature(b map[string]string) string {
	keys := sortedKeysString(b)
	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(b[k])
		sb.WriteByte(';')
	}
	return sb.String()
}
