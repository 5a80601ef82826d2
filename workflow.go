package snakemake

import (
	"sync"

	"github.com/tstannius/snakemake/internal/builderr"
	"github.com/tstannius/snakemake/internal/fsutil"
)

// RuleStats is the per-rule runtime statistic the controller maintains
// across a process's lifetime (§4.6).
type RuleStats struct {
	Invocations   int
	LastNeedsRun  bool
	LastRunFailed bool
}

// JobCounter is the aggregate progress display of §3: incremented on job
// creation and on job completion, with done/total and percent derived.
type JobCounter struct {
	mu         sync.Mutex
	total      int
	done       int
}

func (c *JobCounter) incTotal() {
	c.mu.Lock()
	c.total++
	c.mu.Unlock()
}

func (c *JobCounter) incDone() {
	c.mu.Lock()
	c.done++
	c.mu.Unlock()
}

// Snapshot returns done, total, and percent complete (0 when total is 0).
func (c *JobCounter) Snapshot() (done, total int, percent float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.total == 0 {
		return 0, 0, 0
	}
	return c.done, c.total, 100 * float64(c.done) / float64(c.total)
}

// Parser is the §6 out-of-scope surface-syntax collaborator: translating a
// rules file into a series of rule registrations against w, in declaration
// order, returning a rule-name -> source-line map for diagnostics. Design
// note §9 calls for passing the workflow explicitly rather than injecting it
// through a process-wide global, which is what Include does here.
type Parser interface {
	Include(w *Workflow, file string) (lineMap map[string]int, err error)
}

// Workflow is the insertion-ordered registry of rules plus workflow-wide
// settings (§3, §4.6). It spans the whole process; Rules within it are
// created at load time and never mutated after load completes.
type Workflow struct {
	mu sync.Mutex

	rules  []*Rule
	byName map[string]*Rule

	first    string
	firstSet bool

	workdir    string
	workdirSet bool

	cores int

	stats map[string]*RuleStats

	counter *JobCounter
}

func NewWorkflow() *Workflow {
	return &Workflow{
		byName:  map[string]*Rule{},
		stats:   map[string]*RuleStats{},
		counter: &JobCounter{},
		cores:   1,
	}
}

// AddRule registers r. The first rule successfully added becomes the
// default target unless a later call to SetFirst explicitly overwrites it.
func (w *Workflow) AddRule(r *Rule) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.byName[r.Name]; exists {
		return builderr.New(builderr.CreateRule, "rule %q already registered", r.Name)
	}
	if err := r.Check(); err != nil {
		return err
	}

	w.byName[r.Name] = r
	w.rules = append(w.rules, r)
	w.stats[r.Name] = &RuleStats{}
	if !w.firstSet {
		w.first = r.Name
		w.firstSet = true
	}
	return nil
}

// SetFirst explicitly overwrites the default target. Inclusion of further
// rule files preserves the existing first-rule pointer unless a caller
// elects to call this (§4.6).
func (w *Workflow) SetFirst(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.byName[name]; !ok {
		return builderr.New(builderr.UnknownRule, "cannot set first rule: %q is not registered", name)
	}
	w.first = name
	w.firstSet = true
	return nil
}

func (w *Workflow) Rule(name string) (*Rule, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.byName[name]
	return r, ok
}

// FirstRule returns the workflow's default target rule.
func (w *Workflow) FirstRule() (*Rule, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.firstSet {
		return nil, builderr.New(builderr.NoRules, "workflow has no rules")
	}
	return w.byName[w.first], nil
}

// GetProducers returns every registered rule whose output patterns match
// file under some wildcard binding, in declaration order.
func (w *Workflow) GetProducers(file string) []*Rule {
	w.mu.Lock()
	rules := append([]*Rule(nil), w.rules...)
	w.mu.Unlock()

	var out []*Rule
	for _, r := range rules {
		if _, ok := r.IsProducer(file); ok {
			out = append(out, r)
		}
	}
	return out
}

// Workdir is idempotent: the first caller creates the directory (if absent)
// and changes the process's current directory into it; subsequent calls are
// no-ops (§4.6).
func (w *Workflow) Workdir(path string, chdir func(string) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.workdirSet {
		return nil
	}
	if err := fsutil.MkdirP(path); err != nil {
		return err
	}
	if chdir != nil {
		if err := chdir(path); err != nil {
			return err
		}
	}
	w.workdir = path
	w.workdirSet = true
	return nil
}

// SetCores records the workflow-wide core budget, read back by Cores. The
// Scheduler clamps rule thread requirements against its own Cores field,
// not this value.
func (w *Workflow) SetCores(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n < 1 {
		n = 1
	}
	w.cores = n
}

func (w *Workflow) Cores() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cores
}

// Include invokes the parser collaborator to translate file into a series
// of AddRule calls against w.
func (w *Workflow) Include(file string, p Parser) (map[string]int, error) {
	return p.Include(w, file)
}

func (w *Workflow) recordStats(name string, needsRun, failed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	st, ok := w.stats[name]
	if !ok {
		st = &RuleStats{}
		w.stats[name] = st
	}
	st.Invocations++
	st.LastNeedsRun = needsRun
	st.LastRunFailed = failed
}

func (w *Workflow) RuleStats(name string) (RuleStats, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	st, ok := w.stats[name]
	if !ok {
		return RuleStats{}, false
	}
	return *st, true
}

func (w *Workflow) onJobCreated() { w.counter.incTotal() }
func (w *Workflow) onJobDone()    { w.counter.incDone() }

func (w *Workflow) Counter() *JobCounter { return w.counter }
