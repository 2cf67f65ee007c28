package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/testworker/internal/domain"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	States []string
}

// EventsResult is the output of the events command.
type EventsResult struct {
	Events []domain.WorkerEvent `json:"events"`
}

func (r EventsResult) String() string {
	if len(r.Events) == 0 {
		return "No worker events"
	}
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tTYPE\tSTATE\tLABEL\tREFERENCE")
	for _, e := range r.Events {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", e.SequenceNumber, e.Type(), e.State, e.Label, e.Reference)
	}
	w.Flush()
	return strings.TrimRight(b.String(), "\n")
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List worker events by sequence number",
		Long: `List the WorkerEvents recorded for the job in sequence order.

Examples:
  worker events --db ./worker.db
  worker events --db ./worker.db --state queued --state sending
  worker events --db ./worker.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.States, "state", nil, "only list events in these delivery states")

	return cmd
}

var workerEventStates = []domain.WorkerEventState{
	domain.WorkerEventStateAwaiting,
	domain.WorkerEventStateQueued,
	domain.WorkerEventStateSending,
	domain.WorkerEventStateFailed,
	domain.WorkerEventStateComplete,
}

func runEvents(opts *EventsOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	states := make([]domain.WorkerEventState, 0, len(opts.States))
	for _, s := range opts.States {
		state := domain.WorkerEventState(s)
		if !isWorkerEventState(state) {
			msg := fmt.Sprintf("invalid state %q: must be one of %v", s, workerEventStates)
			_ = formatter.Error(ErrCodeGeneric, msg, nil)
			return NewExitError(ExitCommandError, msg)
		}
		states = append(states, state)
	}

	st, err := opts.openStore(formatter)
	if err != nil {
		return err
	}
	defer st.Close()

	events, err := st.WorkerEvents(context.Background(), states...)
	if err != nil {
		return storeFailure(formatter, "failed to list worker events", err)
	}
	return formatter.Success(EventsResult{Events: events})
}

func isWorkerEventState(s domain.WorkerEventState) bool {
	for _, known := range workerEventStates {
		if s == known {
			return true
		}
	}
	return false
}
