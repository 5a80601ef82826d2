package snakemake

import (
	"errors"

	"github.com/tstannius/snakemake/internal/builderr"
	"github.com/tstannius/snakemake/internal/fsutil"
	"github.com/tstannius/snakemake/pathattr"
)

// Flags carries the CLI surface's run-affecting switches (§6) into
// expansion and scheduling.
type Flags struct {
	ForceAll  bool
	ForceThis map[string]bool // rule names forced to rerun even if up to date
}

func (f Flags) forceThisApplies(ruleName string) bool {
	return f.ForceThis != nil && f.ForceThis[ruleName]
}

// Resolved is the output of resolution: every job created, keyed by its
// output set, plus the jobs directly requested by the targets.
type Resolved struct {
	Jobs  map[string]*Job
	Roots []*Job
}

// RunFirstRule resolves the workflow's default target (§4.3).
func (w *Workflow) RunFirstRule(flags Flags) (*Resolved, error) {
	r, err := w.FirstRule()
	if err != nil {
		return nil, err
	}
	visited := map[string]bool{}
	jobs := map[string]*Job{}
	job, err := r.expand(w, nil, visited, jobs, flags)
	if err != nil {
		return nil, err
	}
	return &Resolved{Jobs: jobs, Roots: []*Job{job}}, nil
}

// RunRules partitions targets into rule names and file paths and resolves
// each, aggregating every failure into one composite error so the caller
// sees all problems in a single pass (§4.3).
func (w *Workflow) RunRules(targets []string, flags Flags) (*Resolved, error) {
	if len(targets) == 0 {
		return w.RunFirstRule(flags)
	}

	visited := map[string]bool{}
	jobs := map[string]*Job{}
	agg := &builderr.Aggregate{}
	var roots []*Job

	for _, t := range targets {
		if r, ok := w.Rule(t); ok {
			job, err := r.expand(w, nil, visited, jobs, flags)
			if err != nil {
				agg.Add(err)
				continue
			}
			roots = append(roots, job)
			continue
		}

		job, err := w.getFileProducer(t, visited, jobs, flags)
		if err != nil {
			agg.Add(err)
			continue
		}
		if job != nil {
			roots = append(roots, job)
		}
	}

	if err := agg.AsError(); err != nil {
		return nil, err
	}
	return &Resolved{Jobs: jobs, Roots: roots}, nil
}

// getFileProducer resolves a file-path target: it enumerates producing
// rules, trial-expands each with dryrun semantics (a throwaway copy of the
// visited/jobs state so a failing candidate leaves no trace), and applies
// §4.3's zero/one/many selection rule.
func (w *Workflow) getFileProducer(file string, visited map[string]bool, jobs map[string]*Job, flags Flags) (*Job, error) {
	producers := w.GetProducers(file)

	if len(producers) == 0 {
		if fsutil.Exists(file) {
			return nil, nil // already present, nothing to build
		}
		return nil, builderr.New(builderr.MissingRule, "no rule produces %q and it does not exist on disk", file)
	}

	if len(producers) == 1 {
		return producers[0].expand(w, &file, visited, jobs, flags)
	}

	type trial struct {
		job  *Job
		jobs map[string]*Job
	}
	var succeeded []trial
	var missingInputErrs []error

	for _, p := range producers {
		trialVisited := cloneVisited(visited)
		trialJobs := cloneJobs(jobs)
		job, err := p.expand(w, &file, trialVisited, trialJobs, flags)
		if err != nil {
			if errors.Is(err, builderr.MissingInput) {
				missingInputErrs = append(missingInputErrs, err)
				continue
			}
			missingInputErrs = append(missingInputErrs, err)
			continue
		}
		succeeded = append(succeeded, trial{job: job, jobs: trialJobs})
	}

	switch len(succeeded) {
	case 0:
		agg := &builderr.Aggregate{}
		for _, e := range missingInputErrs {
			agg.Add(e)
		}
		if agg.Empty() {
			agg.Add(builderr.New(builderr.MissingRule, "no producer of %q could be expanded", file))
		}
		return nil, agg.AsError()
	case 1:
		for k, v := range succeeded[0].jobs {
			jobs[k] = v
		}
		return succeeded[0].job, nil
	default:
		return nil, builderr.New(builderr.AmbiguousRule, "%d rules can produce %q", len(succeeded), file)
	}
}

func cloneVisited(v map[string]bool) map[string]bool {
	c := make(map[string]bool, len(v))
	for k, val := range v {
		c[k] = val
	}
	return c
}

func cloneJobs(j map[string]*Job) map[string]*Job {
	c := make(map[string]*Job, len(j))
	for k, v := range j {
		c[k] = v
	}
	return c
}

// expand is the expander of §4.2: given a requested output (nil meaning
// "use the rule's default outputs"), it binds wildcards, recursively expands
// producers of every concrete input, computes needs_run, and memoises by
// output identity.
func (r *Rule) expand(w *Workflow, requestedOutput *string, visited map[string]bool, jobs map[string]*Job, flags Flags) (*Job, error) {
	bindings := map[string]string{}

	if requestedOutput != nil {
		matched := false
		for _, out := range r.AllOutputs() {
			pat, isPat, err := ParsePattern(out.Name)
			if err != nil {
				return nil, err
			}
			if !isPat {
				if out.Name == *requestedOutput {
					matched = true
					break
				}
				continue
			}
			if b, ok := pat.Match(*requestedOutput); ok {
				bindings = b
				matched = true
				break
			}
		}
		if !matched {
			return nil, builderr.New(builderr.MissingRule, "rule %q has no output matching %q", r.Name, *requestedOutput)
		}
	}

	concreteOutputs := make([]pathattr.Path, 0, len(r.AllOutputs()))
	for _, out := range r.AllOutputs() {
		name := expandPattern(out.Name, bindings)
		concreteOutputs = append(concreteOutputs, out.WithName(name))
	}

	outKey := outputKey(concreteOutputs)
	if existing, ok := jobs[outKey]; ok {
		return existing, nil
	}

	visitKey := r.Name + "\x00" + bindingSignature(bindings)
	if visited[visitKey] {
		return nil, builderr.New(builderr.CyclicGraph, "cycle detected: rule %q revisited with the same bindings", r.Name)
	}
	visited[visitKey] = true
	defer delete(visited, visitKey)

	concreteInputs := make([]string, 0, len(r.AllInputs()))
	for _, in := range r.AllInputs() {
		concreteInputs = append(concreteInputs, expandPattern(in, bindings))
	}

	var upstream []*Job
	upstreamNeedsRun := false
	tempInputs := map[string]bool{}
	for _, input := range concreteInputs {
		producers := w.GetProducers(input)
		switch len(producers) {
		case 0:
			if !fsutil.Exists(input) {
				return nil, builderr.New(builderr.MissingInput, "rule %q: input %q has no producer and does not exist", r.Name, input)
			}
		case 1:
			pj, err := producers[0].expand(w, &input, visited, jobs, flags)
			if err != nil {
				return nil, err
			}
			upstream = append(upstream, pj)
			for _, out := range pj.Outputs {
				if out.Name == input && out.IsTemp() {
					tempInputs[input] = true
				}
			}
			if pj.NeedsRun {
				upstreamNeedsRun = true
			}
		default:
			return nil, builderr.New(builderr.AmbiguousRule, "rule %q: input %q is produced by %d rules", r.Name, input, len(producers))
		}
	}

	forced := flags.ForceAll || flags.forceThisApplies(r.Name)
	forcedReason := ""
	switch {
	case flags.ForceAll:
		forcedReason = "forceall"
	case flags.forceThisApplies(r.Name):
		forcedReason = "forcethis"
	}
	needsRun, reason := computeNeedsRun(concreteOutputs, concreteInputs, upstreamNeedsRun, forced, forcedReason)

	inputPaths := make([]pathattr.Path, len(concreteInputs))
	for i, in := range concreteInputs {
		inputPaths[i] = pathattr.New(in)
		if tempInputs[in] {
			inputPaths[i] = inputPaths[i].WithTemp()
		}
	}

	job := &Job{
		Seq:      nextJobSeq(),
		Rule:     r,
		Bindings: bindings,
		Inputs:   inputPaths,
		Outputs:  concreteOutputs,
		Upstream: upstream,
		State:    Pending,
		NeedsRun: needsRun,
		Reason:   reason,
	}
	jobs[outKey] = job
	w.onJobCreated()

	return job, nil
}

func expandPattern(s string, bindings map[string]string) string {
	pat, isPat, err := ParsePattern(s)
	if err != nil || !isPat {
		return s
	}
	return pat.Expand(bindings)
}
