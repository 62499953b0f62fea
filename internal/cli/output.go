package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/javanstorm/hvctl/internal/render"
	"github.com/javanstorm/hvctl/internal/timing"
)

// withSession connects, runs fn and closes the connection. The phases
// are logged at debug level, and reported on stderr with --timing.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	timer := timing.New()
	defer func() {
		slog.Debug("command finished", "command", cmd.CommandPath(), "timing", timer, "error", err)
		if showTiming {
			timer.Report(cmd.ErrOrStderr())
		}
	}()

	s, err := connect(ctx)
	if err != nil {
		return err
	}
	timer.Mark("connect")
	err = fn(ctx, s)
	timer.Mark("command")
	if cerr := s.Close(); cerr != nil && err == nil {
		err = cerr
	}
	timer.Mark("close")
	return err
}

// emit writes v as JSON, or the table built by tbl.
func emit(cmd *cobra.Command, v any, tbl func() *render.Table) error {
	switch output {
	case render.FormatJSON:
		return render.JSON(cmd.OutOrStdout(), v)
	case render.FormatDOT:
		return fmt.Errorf("%s does not support dot output", cmd.CommandPath())
	}
	return tbl().Write(cmd.OutOrStdout())
}

// say prints a status line unless JSON output is selected.
func say(cmd *cobra.Command, format string, args ...any) {
	if output == render.FormatJSON {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), format+"\n", args...)
}
