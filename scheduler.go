package snakemake

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tstannius/snakemake/internal/buildlog"
	"github.com/tstannius/snakemake/internal/builderr"
	"github.com/tstannius/snakemake/internal/buildshell"
	"github.com/tstannius/snakemake/internal/fsutil"
)

// Kind selects between the two scheduler variants of §4.4. Design note §9
// prefers this closed tagged variant over subclass polymorphism since the
// set of schedulers is fixed at two.
type Kind int

const (
	Local Kind = iota
	Cluster
)

// RunMode selects among the parallel modes of §4.5. Dag is handled entirely
// by the caller (resolution only, scheduler never invoked) and has no
// RunMode value here.
type RunMode int

const (
	Normal RunMode = iota
	Dryrun
	Touch
)

// Scheduler runs a resolved job graph under a resource budget (local) or by
// delegating to an external submitter (cluster).
type Scheduler struct {
	Kind             Kind
	Cores            int    // local: hard budget; cluster: advisory only
	ClusterSubmitCmd string // cluster: submitcmd template, §4.4
	Logger           *buildlog.Logger
	Reason           bool // print --reason lines as jobs are admitted

	workflow *Workflow
}

func NewScheduler(kind Kind, cores int, clusterSubmitCmd string, logger *buildlog.Logger, workflow *Workflow) *Scheduler {
	if cores < 1 {
		cores = 1
	}
	return &Scheduler{Kind: kind, Cores: cores, ClusterSubmitCmd: clusterSubmitCmd, Logger: logger, workflow: workflow}
}

// Summary reports what happened to the resolved job set.
type Summary struct {
	Ran    []*Job
	Failed []*Job
}

type jobOutcome struct {
	job *Job
	err error
}

// Run executes resolved under mode. Suspension happens only while waiting
// for the next job completion (§5); everything else is single-threaded
// bookkeeping on the calling goroutine, matching the "coordinator thread
// does no user work" rule of §4.4.
func (s *Scheduler) Run(ctx context.Context, resolved *Resolved, mode RunMode) (*Summary, error) {
	all := jobSlice(resolved.Jobs)

	if mode == Dryrun {
		return s.runDryrun(all)
	}

	runJobs := make([]*Job, 0, len(all))
	for _, j := range all {
		if !j.NeedsRun {
			j.State = Done
			continue
		}
		runJobs = append(runJobs, j)
	}

	downstream := map[*Job][]*Job{}
	pending := map[*Job]int{}
	for _, j := range runJobs {
		cnt := 0
		for _, u := range j.Upstream {
			if u.State != Done {
				cnt++
				downstream[u] = append(downstream[u], j)
			}
		}
		pending[j] = cnt
	}

	var ready []*Job
	for _, j := range runJobs {
		if pending[j] == 0 {
			j.State = Ready
			ready = append(ready, j)
		}
	}
	sortBySeq(ready)

	completions := make(chan *jobOutcome)
	runningCount := 0
	coresInUse := 0
	failed := false
	var firstErr error

	tempRemaining := s.tempConsumerCounts(runJobs)

	for {
		if !failed {
			var admitted []*Job
			switch s.Kind {
			case Local:
				admitted = knapsackAdmit(ready, s.Cores-coresInUse, s.Cores)
			default:
				admitted = ready
			}
			ready = removeJobs(ready, admitted)

			for _, j := range admitted {
				j.State = Running
				coresInUse += effectiveThreads(j, s.Cores)
				runningCount++
				if s.Reason && s.Logger != nil {
					s.Logger.Reason(j.Seq, j.Rule.Name, j.Reason)
				}
				if s.Logger != nil {
					s.Logger.Message(j.Message())
				}
				go s.dispatch(ctx, j, mode, completions)
			}
		}

		if runningCount == 0 {
			break
		}

		outcome := <-completions
		runningCount--
		coresInUse -= effectiveThreads(outcome.job, s.Cores)

		elapsed := outcome.job.FinishedAt.Sub(outcome.job.StartedAt)

		if outcome.err != nil {
			outcome.job.State = Failed
			if s.workflow != nil {
				s.workflow.recordStats(outcome.job.Rule.Name, outcome.job.NeedsRun, true)
			}
			if s.Logger != nil {
				s.Logger.Failed(outcome.job.Seq, outcome.job.Rule.Name, jobOutputName(outcome.job), elapsed, outcome.err)
			}
			if !failed {
				failed = true
				firstErr = outcome.err
			}
			continue
		}

		outcome.job.State = Done
		if s.workflow != nil {
			s.workflow.onJobDone()
			s.workflow.recordStats(outcome.job.Rule.Name, outcome.job.NeedsRun, false)
		}
		if s.Logger != nil {
			s.Logger.Complete(outcome.job.Seq, outcome.job.Rule.Name, jobOutputName(outcome.job), elapsed)
		}
		s.releaseTempInputs(outcome.job, tempRemaining)

		for _, dep := range downstream[outcome.job] {
			pending[dep]--
			if pending[dep] == 0 && !failed {
				dep.State = Ready
				ready = append(ready, dep)
				sortBySeq(ready)
			}
		}
	}

	summary := &Summary{}
	for _, j := range runJobs {
		if j.State == Done {
			summary.Ran = append(summary.Ran, j)
		} else {
			summary.Failed = append(summary.Failed, j)
		}
	}

	if failed {
		s.cleanupUnfinished(runJobs)
		return summary, firstErr
	}
	return summary, nil
}

// dispatch runs (or simulates, per mode) a single job and posts its outcome.
func (s *Scheduler) dispatch(ctx context.Context, j *Job, mode RunMode, completions chan<- *jobOutcome) {
	j.StartedAt = time.Now()
	var err error

	switch mode {
	case Touch:
		for _, out := range j.Outputs {
			if e := fsutil.Touch(out.Name); e != nil {
				err = e
				break
			}
		}
	default:
		err = s.runNormal(ctx, j)
	}

	j.FinishedAt = time.Now()
	completions <- &jobOutcome{job: j, err: err}
}

func (s *Scheduler) runNormal(ctx context.Context, j *Job) error {
	if err := j.protectedError(); err != nil {
		return err
	}

	for _, out := range j.Outputs {
		if dir := parentDir(out.Name); dir != "" {
			if err := fsutil.MkdirP(dir); err != nil {
				return err
			}
		}
	}

	switch s.Kind {
	case Cluster:
		if err := s.runCluster(ctx, j); err != nil {
			return err
		}
	default:
		if j.Rule.Action != nil {
			if err := j.Rule.Action.Run(ctx, j); err != nil {
				return err
			}
		}
	}

	for _, out := range j.Outputs {
		if !fsutil.Exists(out.Name) {
			return builderr.New(builderr.MissingOutput, "rule %q exited successfully but output %q is missing", j.Rule.Name, out.Name)
		}
	}
	return nil
}

// runCluster submits j via the configured ClusterSubmitCmd template. When
// the rule's action implements Commander it supplies the submitted command
// line; otherwise the action just runs in-process and the submit template is
// ignored, matching §4.4's requirement that a cluster scheduler not invent
// submission semantics for actions that don't support it.
func (s *Scheduler) runCluster(ctx context.Context, j *Job) error {
	if s.ClusterSubmitCmd == "" || j.Rule.Action == nil {
		if j.Rule.Action != nil {
			return j.Rule.Action.Run(ctx, j)
		}
		return nil
	}
	if commander, ok := j.Rule.Action.(Commander); ok {
		cmd := commander.SubmitCommand(j, s.ClusterSubmitCmd)
		res, err := buildshell.Run(ctx, cmd)
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("rule %q: cluster submit exited %d: %s", j.Rule.Name, res.ExitCode, res.Stderr)
		}
		return nil
	}
	return j.Rule.Action.Run(ctx, j)
}

// runDryrun prints each needs-run job's message in topological order without
// dispatching anything (§4.5).
func (s *Scheduler) runDryrun(all []*Job) (*Summary, error) {
	var runJobs []*Job
	for _, j := range all {
		if j.NeedsRun {
			runJobs = append(runJobs, j)
		}
	}
	order := topoOrder(runJobs)
	for _, j := range order {
		if s.Reason && s.Logger != nil {
			s.Logger.Reason(j.Seq, j.Rule.Name, j.Reason)
		}
		if s.Logger != nil {
			s.Logger.Message(j.Message())
		}
	}
	return &Summary{Ran: order}, nil
}

func topoOrder(jobs []*Job) []*Job {
	set := map[*Job]bool{}
	for _, j := range jobs {
		set[j] = true
	}
	indeg := map[*Job]int{}
	downstream := map[*Job][]*Job{}
	for _, j := range jobs {
		indeg[j] = 0
	}
	for _, j := range jobs {
		for _, u := range j.Upstream {
			if set[u] {
				indeg[j]++
				downstream[u] = append(downstream[u], j)
			}
		}
	}
	var queue []*Job
	for _, j := range jobs {
		if indeg[j] == 0 {
			queue = append(queue, j)
		}
	}
	sortBySeq(queue)

	var order []*Job
	for len(queue) > 0 {
		j := queue[0]
		queue = queue[1:]
		order = append(order, j)
		var freed []*Job
		for _, d := range downstream[j] {
			indeg[d]--
			if indeg[d] == 0 {
				freed = append(freed, d)
			}
		}
		sortBySeq(freed)
		queue = append(queue, freed...)
	}
	return order
}

// cleanupUnfinished deletes outputs of any job that never reached Done
// (§5 cancellation policy, §7 cleanup policy): protected outputs are never
// deleted.
func (s *Scheduler) cleanupUnfinished(runJobs []*Job) {
	for _, j := range runJobs {
		if j.State == Done {
			continue
		}
		for _, out := range j.Outputs {
			if out.IsProtected() {
				continue
			}
			if err := fsutil.Unlink(out.Name); err != nil && s.Logger != nil {
				s.Logger.Warnf("cleanup: could not remove %q: %v", out.Name, err)
			}
		}
	}
}

// tempConsumerCounts counts, for every temp output, how many scheduled
// consumer jobs still need to finish before it can be deleted (§4.1b).
func (s *Scheduler) tempConsumerCounts(runJobs []*Job) map[string]int {
	counts := map[string]int{}
	for _, j := range runJobs {
		for _, in := range j.Inputs {
			if in.IsTemp() {
				counts[in.Name]++
			}
		}
	}
	// Also count temp outputs with zero scheduled consumers so they are
	// deleted immediately once their producer finishes.
	for _, j := range runJobs {
		for _, out := range j.Outputs {
			if out.IsTemp() {
				if _, ok := counts[out.Name]; !ok {
					counts[out.Name] = 0
				}
			}
		}
	}
	return counts
}

func (s *Scheduler) releaseTempInputs(finished *Job, remaining map[string]int) {
	for _, in := range finished.Inputs {
		if !in.IsTemp() {
			continue
		}
		remaining[in.Name]--
		if remaining[in.Name] <= 0 {
			if err := fsutil.Unlink(in.Name); err != nil && s.Logger != nil {
				s.Logger.Warnf("temp cleanup: could not remove %q: %v", in.Name, err)
			}
		}
	}
	for _, out := range finished.Outputs {
		if out.IsTemp() && remaining[out.Name] == 0 {
			if err := fsutil.Unlink(out.Name); err != nil && s.Logger != nil {
				s.Logger.Warnf("temp cleanup: could not remove %q: %v", out.Name, err)
			}
		}
	}
}

func effectiveThreads(j *Job, cores int) int {
	t := j.Rule.Threads
	if t < 1 {
		t = 1
	}
	if t > cores {
		t = cores
	}
	return t
}

// knapsackAdmit chooses the subset of ready maximising total thread demand
// satisfied without exceeding avail, breaking ties by lower sequence number
// (§4.4, §8 property 7). ready must already be sorted by Seq ascending.
func knapsackAdmit(ready []*Job, avail, cores int) []*Job {
	if avail <= 0 || len(ready) == 0 {
		return nil
	}
	n := len(ready)
	weights := make([]int, n)
	for i, j := range ready {
		weights[i] = effectiveThreads(j, cores)
	}

	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, avail+1)
	}
	for i := 1; i <= n; i++ {
		w := weights[i-1]
		for c := 0; c <= avail; c++ {
			dp[i][c] = dp[i-1][c]
			if w <= c {
				if cand := dp[i-1][c-w] + w; cand > dp[i][c] {
					dp[i][c] = cand
				}
			}
		}
	}

	var chosen []*Job
	c := avail
	for i := n; i >= 1; i-- {
		if dp[i][c] != dp[i-1][c] {
			chosen = append(chosen, ready[i-1])
			c -= weights[i-1]
		}
	}
	sortBySeq(chosen)
	return chosen
}

func removeJobs(from []*Job, remove []*Job) []*Job {
	if len(remove) == 0 {
		return from
	}
	skip := map[*Job]bool{}
	for _, j := range remove {
		skip[j] = true
	}
	out := from[:0:0]
	for _, j := range from {
		if !skip[j] {
			out = append(out, j)
		}
	}
	return out
}

func jobSlice(m map[string]*Job) []*Job {
	out := make([]*Job, 0, len(m))
	seen := map[*Job]bool{}
	for _, j := range m {
		if !seen[j] {
			seen[j] = true
			out = append(out, j)
		}
	}
	sortBySeq(out)
	return out
}

func sortBySeq(jobs []*Job) {
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].Seq < jobs[k].Seq })
}

// jobOutputName is the primary output name attached to a job's log entries.
func jobOutputName(j *Job) string {
	if len(j.Outputs) == 0 {
		return ""
	}
	return j.Outputs[0].Name
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return ""
}
