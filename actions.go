package snakemake

import (
	"context"
	"fmt"

	"github.com/tstannius/snakemake/internal/buildshell"
)

// ShellAction runs a rule's recipe as a shell command template, the
// baseline Action of §6. The template is expanded against the job's
// bindings exactly as message templates are (Job.Bind/Job.Message).
type ShellAction struct {
	Template string
}

func (a ShellAction) Run(ctx context.Context, j *Job) error {
	cmd := buildshell.Format(a.Template, j.Bind())
	res, err := buildshell.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("rule %q: command exited %d: %s", j.Rule.Name, res.ExitCode, res.Stderr)
	}
	return nil
}

// Commander is the optional collaborator a cluster-mode Action can satisfy
// to supply the command line submitted to an external scheduler (§4.4). When
// a rule's Action does not implement Commander, the cluster scheduler runs
// the action in-process and the submit command template is not used.
type Commander interface {
	SubmitCommand(j *Job, submitTmpl string) string
}

func (a ShellAction) SubmitCommand(j *Job, submitTmpl string) string {
	cmd := buildshell.Format(a.Template, j.Bind())
	bindings := j.Bind()
	bindings["cmd"] = cmd
	return buildshell.Format(submitTmpl, bindings)
}
