package trace

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/reflow/wordwrap"

	"github.com/vinayprograms/gyre/internal/session"
)

const wrapWidth = 80

// Renderer writes a human-readable timeline of one run's event log.
type Renderer struct {
	output io.Writer
}

// NewRenderer creates a renderer targeting the given writer.
func NewRenderer(output io.Writer) *Renderer {
	return &Renderer{output: output}
}

// Render prints the run header, every event in sequence order, and a
// status footer.
func (r *Renderer) Render(run *session.Run) {
	fmt.Fprintln(r.output, divider)
	fmt.Fprintf(r.output, "%s %s\n", titleStyle.Render("RUN"), valueStyle.Render(run.ID))
	fmt.Fprintf(r.output, "%s %s\n", dimStyle.Render("task:"), valueStyle.Render(run.Task))
	fmt.Fprintf(r.output, "%s %s\n", dimStyle.Render("started:"), dimStyle.Render(run.CreatedAt.Format("2006-01-02 15:04:05")))
	fmt.Fprintln(r.output, divider)

	lastIteration := 0
	for i := range run.Events {
		r.formatEvent(&run.Events[i], &lastIteration)
	}

	fmt.Fprintln(r.output, divider)
	status := run.Status
	switch status {
	case session.StatusComplete:
		fmt.Fprintln(r.output, successStyle.Render("COMPLETE"))
	case session.StatusBlocked:
		fmt.Fprintf(r.output, "%s %s\n", errorStyle.Render("BLOCKED"), dimStyle.Render(run.Error))
	default:
		fmt.Fprintf(r.output, "%s %s\n", warnStyle.Render(strings.ToUpper(status)), dimStyle.Render(run.Error))
	}
}

func (r *Renderer) formatEvent(event *session.Event, lastIteration *int) {
	if event.Iteration > 0 && event.Iteration != *lastIteration {
		fmt.Fprintln(r.output)
		fmt.Fprintf(r.output, "%s\n", titleStyle.Render(fmt.Sprintf("ITERATION %d", event.Iteration)))
		*lastIteration = event.Iteration
	}

	seq := seqStyle.Render(fmt.Sprintf("%d", event.SeqID))
	ts := timeStyle.Render(event.Timestamp.Format("15:04:05"))

	switch event.Type {
	case session.EventTransition:
		label := transitionStyle.Render(fmt.Sprintf("%s -> %s", event.From, event.To))
		fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seq, ts, label, dimStyle.Render(event.Reason))
	case session.EventExecutorCall:
		fmt.Fprintf(r.output, "%s │ %s │ %s\n", seq, ts, executorStyle.Render("EXECUTOR CALL"))
	case session.EventExecutorResult:
		r.fmtOutcome(seq, ts, executorStyle.Render("EXECUTOR RESULT"), event)
	case session.EventWriteDenied:
		fmt.Fprintf(r.output, "%s │ %s │ %s %s %s\n", seq, ts,
			warnStyle.Render("WRITE DENIED"), valueStyle.Render(event.Path), dimStyle.Render("("+event.Reason+")"))
	case session.EventPrune:
		fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seq, ts,
			warnStyle.Render("PRUNED"), valueStyle.Render(event.Path))
	case session.EventGateTier:
		label := gateStyle.Render("GATE " + strings.ToUpper(event.Tier))
		r.fmtOutcome(seq, ts, label, event)
	case session.EventCheckpoint:
		fmt.Fprintf(r.output, "%s │ %s │ %s\n", seq, ts, successStyle.Render("CHECKPOINT"))
	default:
		fmt.Fprintf(r.output, "%s │ %s │ %s\n", seq, ts, dimStyle.Render(event.Type))
	}
}

func (r *Renderer) fmtOutcome(seq, ts, label string, event *session.Event) {
	outcome := ""
	switch {
	case event.Success == nil:
	case *event.Success:
		outcome = successStyle.Render("ok")
	default:
		outcome = errorStyle.Render("failed")
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seq, ts, label, outcome)
	if event.Command != "" {
		fmt.Fprintf(r.output, "      %s\n", dimStyle.Render("$ "+event.Command))
	}
	if event.Error != "" {
		for _, line := range strings.Split(wordwrap.String(event.Error, wrapWidth), "\n") {
			fmt.Fprintf(r.output, "      %s\n", errorStyle.Render(line))
		}
	}
}
