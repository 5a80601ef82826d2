package snakemake

import (
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tstannius/snakemake/internal/builderr"
	"github.com/tstannius/snakemake/internal/buildshell"
	"github.com/tstannius/snakemake/internal/fsutil"
	"github.com/tstannius/snakemake/pathattr"
)

// JobState is one of spec.md §3's completion states.
type JobState int

const (
	Pending JobState = iota
	Ready
	Running
	Done
	Failed
)

func (s JobState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

var jobSeqCounter atomic.Int64

func nextJobSeq() int { return int(jobSeqCounter.Add(1)) }

// Job is a concrete instantiation of a rule, bound to specific files
// (spec.md §3).
type Job struct {
	Seq      int
	Rule     *Rule
	Bindings map[string]string
	Inputs   []pathattr.Path
	Outputs  []pathattr.Path
	Upstream []*Job

	State    JobState
	NeedsRun bool
	Reason   string

	StartedAt  time.Time
	FinishedAt time.Time
}

// OutputKey is the stable identity of the output set this job produces,
// used both to memoise expansion (spec.md §4.2 step 5) and to enforce
// producer uniqueness (invariant 3).
func (j *Job) OutputKey() string { return outputKey(j.Outputs) }

func outputKey(outputs []pathattr.Path) string {
	names := make([]string, len(outputs))
	for i, o := range outputs {
		names[i] = o.Name
	}
	sort.Strings(names)
	return strings.Join(names, "\x00")
}

// Bind returns the wildcard bindings plus the conventional "output"/"input"/
// "inputs" keys an action template can reference, mirroring the teacher's
// Vars.Set("target", ...) / Vars.Set("inputs", ...) convention in exec.go.
func (j *Job) Bind() map[string]string {
	b := make(map[string]string, len(j.Bindings)+3)
	for k, v := range j.Bindings {
		b[k] = v
	}
	if len(j.Outputs) > 0 {
		b["output"] = j.Outputs[0].Name
	}
	if len(j.Inputs) > 0 {
		b["input"] = j.Inputs[0].Name
	}
	names := make([]string, len(j.Inputs))
	for i, in := range j.Inputs {
		names[i] = in.Name
	}
	b["inputs"] = strings.Join(names, " ")
	return b
}

// Message renders the rule's message template against this job's bindings.
func (j *Job) Message() string {
	if j.Rule.MessageTmpl == "" {
		return j.Rule.Name
	}
	return buildshell.Format(j.Rule.MessageTmpl, j.Bind())
}

// computeNeedsRun implements spec.md §4.2 step 4: the conservative reading
// of needs_run called out as an open question in §9 — any missing output,
// not just "first" output, forces a rerun.
func computeNeedsRun(outputs []pathattr.Path, inputs []string, upstreamNeedsRun bool, forced bool, forcedReason string) (bool, string) {
	if forced {
		return true, forcedReason
	}
	if upstreamNeedsRun {
		return true, "an upstream job needs to run"
	}
	for _, out := range outputs {
		if !fsutil.Exists(out.Name) {
			return true, "output " + out.Name + " does not exist"
		}
	}
	minOutputMtime := earliestMtime(outputs)
	for _, in := range inputs {
		if fsutil.Mtime(in).After(minOutputMtime) {
			return true, "input " + in + " is newer than output"
		}
	}
	return false, ""
}

func earliestMtime(outputs []pathattr.Path) time.Time {
	var min time.Time
	for i, out := range outputs {
		mt := fsutil.Mtime(out.Name)
		if i == 0 || mt.Before(min) {
			min = mt
		}
	}
	return min
}

// protectedError returns a ProtectedOutput error if any of j's outputs
// exist and are marked protected (§4.1a); checked at dispatch time, right
// before the action would overwrite anything.
func (j *Job) protectedError() error {
	for _, out := range j.Outputs {
		if out.IsProtected() && fsutil.Exists(out.Name) {
			return builderr.New(builderr.ProtectedOutput, "rule %q: output %q is protected and already exists", j.Rule.Name, out.Name)
		}
	}
	return nil
}
