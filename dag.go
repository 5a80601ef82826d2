package snakemake

import (
	"fmt"
	"io"
)

// PrintDAG renders resolved's job graph as DOT, grounded on the teacher's
// Graph.PrintGraph/printGraph: one node per job, identified by its rule name
// and sequence number and labelled with its rule name and first output, one
// edge per upstream dependency, and needs-run jobs filled so a reader can
// spot them at a glance. Protected outputs are not styled differently.
func PrintDAG(w io.Writer, resolved *Resolved) error {
	fmt.Fprintln(w, "digraph snakemake {")
	fmt.Fprintln(w, "  rankdir=LR;")

	visited := map[int]bool{}
	for _, root := range resolved.Roots {
		if err := printJobNode(w, root, visited); err != nil {
			return err
		}
	}
	fmt.Fprintln(w, "}")
	return nil
}

func printJobNode(w io.Writer, j *Job, visited map[int]bool) error {
	if visited[j.Seq] {
		return nil
	}
	visited[j.Seq] = true

	style := "shape=box"
	if j.NeedsRun {
		style += ",style=filled,fillcolor=lightyellow"
	}
	fmt.Fprintf(w, "  %q [%s,label=%q];\n", nodeID(j), style, nodeLabel(j))

	for _, up := range j.Upstream {
		fmt.Fprintf(w, "  %q -> %q;\n", nodeID(j), nodeID(up))
		if err := printJobNode(w, up, visited); err != nil {
			return err
		}
	}
	return nil
}

func nodeID(j *Job) string {
	return fmt.Sprintf("%s#%d", j.Rule.Name, j.Seq)
}

func nodeLabel(j *Job) string {
	if len(j.Outputs) == 0 {
		return j.Rule.Name
	}
	return fmt.Sprintf("%s\\n%s", j.Rule.Name, j.Outputs[0].Name)
}
