package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/javanstorm/hvctl/internal/render"
	"github.com/javanstorm/hvctl/pkg/cim"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect and wait for jobs",
}

var jobShowCmd = &cobra.Command{
	Use:   "show <job-path>",
	Short: "Show a job's state",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobShow,
}

var jobWaitCmd = &cobra.Command{
	Use:   "wait <job-path>",
	Short: "Wait for a job to finish",
	Long: `Poll a job until it completes or fails. The wait is bounded by the
configured job_timeout.`,
	Args: cobra.ExactArgs(1),
	RunE: runJobWait,
}

func init() {
	jobCmd.AddCommand(jobShowCmd)
	jobCmd.AddCommand(jobWaitCmd)
}

type jobRow struct {
	Path        string `json:"path"`
	State       string `json:"state"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"error_description,omitempty"`
}

func openJob(ctx context.Context, s *session, path string) (*cim.Job, error) {
	obj, err := s.host.Scope().Resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	return cim.AsJob(obj)
}

func runJobShow(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		job, err := openJob(ctx, s, args[0])
		if err != nil {
			return err
		}
		return printJob(cmd, job)
	})
}

func runJobWait(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		job, err := openJob(ctx, s, args[0])
		if err != nil {
			return err
		}
		werr := s.host.Engine().WaitJob(ctx, job)
		var jobErr *cim.JobError
		if werr != nil && !errors.As(werr, &jobErr) {
			return werr
		}
		if err := printJob(cmd, job); err != nil {
			return err
		}
		return werr
	})
}

func printJob(cmd *cobra.Command, job *cim.Job) error {
	state, err := job.State()
	if err != nil {
		return err
	}
	code, _ := cim.GetInt(job, "ErrorCode")
	row := jobRow{
		Path:        job.Path(),
		State:       state.String(),
		ErrorCode:   code,
		Description: cim.GetString(job, "ErrorDescription"),
	}
	return emit(cmd, row, func() *render.Table {
		t := render.NewTable("Job", "State", "Error Code", "Description")
		t.Row(row.Path, row.State, row.ErrorCode, row.Description)
		return t
	})
}
