package snakemake

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tstannius/snakemake/internal/fsutil"
	"github.com/tstannius/snakemake/pathattr"
)

// fnAction is a test-only Action that calls an arbitrary func, avoiding a
// dependency on a real shell for scenario tests.
type fnAction struct {
	fn func(j *Job) error
}

func (a fnAction) Run(ctx context.Context, j *Job) error { return a.fn(j) }

func writeAction(t *testing.T) Action {
	t.Helper()
	return fnAction{fn: func(j *Job) error {
		for _, out := range j.Outputs {
			if err := os.WriteFile(out.Name, []byte(j.Rule.Name), 0o644); err != nil {
				return err
			}
		}
		return nil
	}}
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(old) })
	return dir
}

// S1: linear chain a <- b <- c, all missing, all should run in order.
func TestScenarioLinearChain(t *testing.T) {
	chdirTemp(t)

	w := NewWorkflow()
	rc := NewRule("make_c")
	require.NoError(t, rc.SetOutput([]pathattr.Path{pathattr.New("c.txt")}, nil))
	require.NoError(t, rc.SetInput(nil, nil))
	rc.Action = writeAction(t)
	require.NoError(t, w.AddRule(rc))

	rb := NewRule("make_b")
	require.NoError(t, rb.SetOutput([]pathattr.Path{pathattr.New("b.txt")}, nil))
	require.NoError(t, rb.SetInput([]string{"c.txt"}, nil))
	rb.Action = writeAction(t)
	require.NoError(t, w.AddRule(rb))

	ra := NewRule("make_a")
	require.NoError(t, ra.SetOutput([]pathattr.Path{pathattr.New("a.txt")}, nil))
	require.NoError(t, ra.SetInput([]string{"b.txt"}, nil))
	ra.Action = writeAction(t)
	require.NoError(t, w.AddRule(ra))

	resolved, err := w.RunRules([]string{"a.txt"}, Flags{})
	require.NoError(t, err)
	require.Len(t, resolved.Jobs, 3)

	sched := NewScheduler(Local, 2, "", nil, w)
	summary, err := sched.Run(context.Background(), resolved, Normal)
	require.NoError(t, err)
	require.Len(t, summary.Ran, 3)
	require.Empty(t, summary.Failed)

	require.True(t, fsutil.Exists("a.txt"))
	require.True(t, fsutil.Exists("b.txt"))
	require.True(t, fsutil.Exists("c.txt"))
}

// S2: diamond dependency; the shared ancestor must be expanded exactly once.
func TestScenarioDiamondMemoizes(t *testing.T) {
	chdirTemp(t)

	w := NewWorkflow()

	base := NewRule("make_base")
	require.NoError(t, base.SetOutput([]pathattr.Path{pathattr.New("base.txt")}, nil))
	require.NoError(t, base.SetInput(nil, nil))
	base.Action = writeAction(t)
	require.NoError(t, w.AddRule(base))

	left := NewRule("make_left")
	require.NoError(t, left.SetOutput([]pathattr.Path{pathattr.New("left.txt")}, nil))
	require.NoError(t, left.SetInput([]string{"base.txt"}, nil))
	left.Action = writeAction(t)
	require.NoError(t, w.AddRule(left))

	right := NewRule("make_right")
	require.NoError(t, right.SetOutput([]pathattr.Path{pathattr.New("right.txt")}, nil))
	require.NoError(t, right.SetInput([]string{"base.txt"}, nil))
	right.Action = writeAction(t)
	require.NoError(t, w.AddRule(right))

	top := NewRule("make_top")
	require.NoError(t, top.SetOutput([]pathattr.Path{pathattr.New("top.txt")}, nil))
	require.NoError(t, top.SetInput([]string{"left.txt", "right.txt"}, nil))
	top.Action = writeAction(t)
	require.NoError(t, w.AddRule(top))

	resolved, err := w.RunRules([]string{"top.txt"}, Flags{})
	require.NoError(t, err)
	require.Len(t, resolved.Jobs, 4)

	var baseJob *Job
	for _, j := range resolved.Jobs {
		if j.Rule.Name == "make_base" {
			if baseJob == nil {
				baseJob = j
			} else {
				require.Same(t, baseJob, j, "base must be expanded once and shared")
			}
		}
	}
	require.NotNil(t, baseJob)

	sched := NewScheduler(Local, 4, "", nil, w)
	summary, err := sched.Run(context.Background(), resolved, Normal)
	require.NoError(t, err)
	require.Len(t, summary.Ran, 4)
}

// S3: two rules claim to produce the same file -> ambiguous.
func TestScenarioAmbiguousProducer(t *testing.T) {
	chdirTemp(t)

	w := NewWorkflow()
	r1 := NewRule("r1")
	require.NoError(t, r1.SetOutput([]pathattr.Path{pathattr.New("out.txt")}, nil))
	require.NoError(t, r1.SetInput(nil, nil))
	require.NoError(t, w.AddRule(r1))

	r2 := NewRule("r2")
	require.NoError(t, r2.SetOutput([]pathattr.Path{pathattr.New("out.txt")}, nil))
	require.NoError(t, r2.SetInput(nil, nil))
	require.NoError(t, w.AddRule(r2))

	_, err := w.RunRules([]string{"out.txt"}, Flags{})
	require.Error(t, err)
}

// S4: a rule whose input is its own output, directly, is a cycle.
func TestScenarioCycleDetected(t *testing.T) {
	chdirTemp(t)

	w := NewWorkflow()
	r := NewRule("self")
	require.NoError(t, r.SetOutput([]pathattr.Path{pathattr.New("{x}.out")}, nil))
	require.NoError(t, r.SetInput([]string{"{x}.out"}, nil))
	require.NoError(t, w.AddRule(r))

	_, err := w.RunRules([]string{"a.out"}, Flags{})
	require.Error(t, err)
}

// S5: outputs already newer than inputs dispatch zero jobs.
func TestScenarioUpToDateDispatchesNothing(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "in.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "out.txt"), []byte("y"), 0o644))

	w := NewWorkflow()
	r := NewRule("build")
	require.NoError(t, r.SetOutput([]pathattr.Path{pathattr.New("out.txt")}, nil))
	require.NoError(t, r.SetInput([]string{"in.txt"}, nil))
	ran := false
	r.Action = fnAction{fn: func(j *Job) error { ran = true; return nil }}
	require.NoError(t, w.AddRule(r))

	resolved, err := w.RunFirstRule(Flags{})
	require.NoError(t, err)

	sched := NewScheduler(Local, 1, "", nil, w)
	summary, err := sched.Run(context.Background(), resolved, Normal)
	require.NoError(t, err)
	require.Empty(t, summary.Ran)
	require.False(t, ran)
}

// S6: --forceall reruns even up-to-date jobs.
func TestScenarioForceAll(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "in.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "out.txt"), []byte("y"), 0o644))

	w := NewWorkflow()
	r := NewRule("build")
	require.NoError(t, r.SetOutput([]pathattr.Path{pathattr.New("out.txt")}, nil))
	require.NoError(t, r.SetInput([]string{"in.txt"}, nil))
	ran := false
	r.Action = fnAction{fn: func(j *Job) error { ran = true; return nil }}
	require.NoError(t, w.AddRule(r))

	resolved, err := w.RunFirstRule(Flags{ForceAll: true})
	require.NoError(t, err)

	sched := NewScheduler(Local, 1, "", nil, w)
	summary, err := sched.Run(context.Background(), resolved, Normal)
	require.NoError(t, err)
	require.Len(t, summary.Ran, 1)
	require.True(t, ran)
}

// S7: dispatch onto an existing protected output fails and leaves it intact.
func TestScenarioProtectedOutputRefusesOverwrite(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "in.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "out.txt"), []byte("stale"), 0o644))
	// make input newer so needs_run is true despite the protected output
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "in.txt"), future, future))

	w := NewWorkflow()
	r := NewRule("build")
	require.NoError(t, r.SetOutput([]pathattr.Path{pathattr.ProtectedOf("out.txt")}, nil))
	require.NoError(t, r.SetInput([]string{"in.txt"}, nil))
	r.Action = writeAction(t)
	require.NoError(t, w.AddRule(r))

	resolved, err := w.RunFirstRule(Flags{})
	require.NoError(t, err)

	sched := NewScheduler(Local, 1, "", nil, w)
	summary, err := sched.Run(context.Background(), resolved, Normal)
	require.Error(t, err)
	require.Len(t, summary.Failed, 1)

	content, readErr := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, readErr)
	require.Equal(t, "stale", string(content))
}
