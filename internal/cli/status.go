package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/testworker/internal/domain"
	"github.com/roach88/testworker/internal/progress"
	"github.com/roach88/testworker/internal/store"
)

// JobSummary is the job part of a status result.
type JobSummary struct {
	Label           string           `json:"label"`
	MaximumDuration int64            `json:"maximum_duration_in_seconds"`
	TestPaths       []string         `json:"test_paths"`
	EndState        *domain.EndState `json:"end_state"`
}

// StatusResult is the output of the status command.
type StatusResult struct {
	Job   *JobSummary       `json:"job"`
	State progress.Snapshot `json:"state"`
}

func (r StatusResult) String() string {
	var b strings.Builder
	if r.Job == nil {
		b.WriteString("job:            none\n")
	} else {
		endState := "-"
		if r.Job.EndState != nil {
			endState = string(*r.Job.EndState)
		}
		fmt.Fprintf(&b, "job:            %s (%d tests, max %ds)\n", r.Job.Label, len(r.Job.TestPaths), r.Job.MaximumDuration)
		fmt.Fprintf(&b, "end state:      %s\n", endState)
	}
	fmt.Fprintf(&b, "application:    %s\n", r.State.Application)
	fmt.Fprintf(&b, "compilation:    %s\n", r.State.Compilation)
	fmt.Fprintf(&b, "execution:      %s\n", r.State.Execution)
	fmt.Fprintf(&b, "event delivery: %s", r.State.EventDelivery)
	return b.String()
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the job and application state",
		Long: `Show the job and the progress of compilation, execution and event
delivery, read from the worker database.

Examples:
  worker status --db ./worker.db
  worker status --db ./worker.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := opts.formatter(cmd)

	st, err := opts.openStore(formatter)
	if err != nil {
		return err
	}
	defer st.Close()

	result := StatusResult{}
	job, ok, err := st.FindJob(ctx)
	if err != nil {
		return storeFailure(formatter, "failed to read job", err)
	}
	if ok {
		result.Job = &JobSummary{
			Label:           job.Label,
			MaximumDuration: job.MaximumDuration,
			TestPaths:       job.TestPaths,
			EndState:        job.EndState,
		}
	}

	result.State, err = progress.NewApplication(st).Snapshot(ctx)
	if err != nil {
		return storeFailure(formatter, "failed to compute application state", err)
	}
	return formatter.Success(result)
}

// openStore opens an existing worker database for inspection.
func (o *RootOptions) openStore(formatter *OutputFormatter) (*store.Store, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return nil, err
	}
	if _, err := os.Stat(cfg.Database); errors.Is(err, os.ErrNotExist) {
		msg := fmt.Sprintf("database not found: %s", cfg.Database)
		_ = formatter.Error(ErrCodeNotFound, msg, nil)
		return nil, NewExitError(ExitCommandError, msg)
	}
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, storeFailure(formatter, "failed to open database", err)
	}
	return st, nil
}

func storeFailure(formatter *OutputFormatter, msg string, err error) error {
	_ = formatter.Error(ErrCodeStore, msg, err.Error())
	return WrapExitError(ExitCommandError, msg, err)
}
