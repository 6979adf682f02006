package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/steveyegge/mergewatch/internal/branchstate"
)

// RenderBranchState renders a node and its outgoing edges as a small tree:
//
//	MAIN  idle  last CL 12
//	  ├─ ✓ DEV-PERKIN  last CL 12
//	  ├─ ⚠ DEV-PINTA  last CL 10
//	  └─ ✗ RELEASE  blocked on CL 9
//
// An unblocked, ungated edge behind the node's last change is marked as
// lagging.
func RenderBranchState(bs *branchstate.BranchState) string {
	var b strings.Builder

	status := RenderPass("idle")
	switch {
	case bs.IsBlocked():
		status = RenderFail("blocked")
	case len(bs.Queue()) > 0:
		status = RenderWarn(fmt.Sprintf("queue %v", bs.Queue()))
	case bs.IsActive():
		status = RenderWarn("active")
	}
	fmt.Fprintf(&b, "%s  %s  %s", RenderNode(bs.Name()), status, RenderMuted(fmt.Sprintf("last CL %d", bs.LastCL())))
	if msg := bs.StatusMessage(); msg != "" {
		fmt.Fprintf(&b, "  %s", RenderMuted(msg))
	}
	b.WriteString("\n")

	targets := bs.EdgeTargets()
	for i, target := range targets {
		edge, err := bs.Edge(target)
		if err != nil {
			continue
		}
		branch := treeChild
		if i == len(targets)-1 {
			branch = treeLast
		}
		b.WriteString(treeIndent + branch + renderEdge(edge, bs.LastCL()) + "\n")
	}
	return b.String()
}

func renderEdge(e *branchstate.EdgeState, nodeCL int) string {
	if e.IsBlocked() {
		detail := "blocked"
		if cl, ok := e.ConflictCL(); ok {
			detail = fmt.Sprintf("blocked on CL %d", cl)
		}
		return fmt.Sprintf("%s %s  %s", RenderFailIcon(), e.Target(), RenderFail(detail))
	}
	icon, last := RenderPassIcon(), RenderMuted(fmt.Sprintf("last CL %d", e.LastCL()))
	if e.LastCL() < nodeCL && !e.Gated() {
		icon, last = RenderLagIcon(), RenderWarn(fmt.Sprintf("last CL %d", e.LastCL()))
	}
	line := fmt.Sprintf("%s %s  %s", icon, e.Target(), last)
	if gate, ok := e.LastGoodCL(); ok {
		line += "  " + RenderAccent(fmt.Sprintf("gate %d", gate))
	}
	return line
}

// Outcome is one scenario's result as shown in the run summary.
type Outcome struct {
	Name     string
	Err      error
	Skipped  bool
	Duration time.Duration
}

// WriteSummary prints one line per outcome followed by a totals line, and
// reports whether every outcome passed or was skipped.
func WriteSummary(w io.Writer, outcomes []Outcome) bool {
	var passed, failed, skipped int
	for _, o := range outcomes {
		dur := RenderMuted(o.Duration.Round(time.Millisecond).String())
		switch {
		case o.Skipped:
			skipped++
			fmt.Fprintf(w, "%s %s %s\n", RenderSkipIcon(), o.Name, RenderMuted("skipped"))
		case o.Err != nil:
			failed++
			fmt.Fprintf(w, "%s %s %s\n%s%s\n", RenderFailIcon(), o.Name, dur, treeIndent+treeLast, RenderFail(o.Err.Error()))
		default:
			passed++
			fmt.Fprintf(w, "%s %s %s\n", RenderPassIcon(), o.Name, dur)
		}
	}
	fmt.Fprintln(w, renderSeparator())
	totals := fmt.Sprintf("%d passed, %d failed, %d skipped", passed, failed, skipped)
	if failed > 0 {
		fmt.Fprintln(w, RenderFail(totals))
		return false
	}
	fmt.Fprintln(w, RenderPass(totals))
	return true
}
