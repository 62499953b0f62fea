package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/javanstorm/hvctl/internal/render"
)

var switchCmd = &cobra.Command{
	Use:   "switch",
	Short: "Inspect virtual switches",
}

var switchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the host's virtual switches",
	Args:  cobra.NoArgs,
	RunE:  runSwitchList,
}

var switchShowCmd = &cobra.Command{
	Use:   "show <switch>",
	Short: "Show a switch's properties",
	Args:  cobra.ExactArgs(1),
	RunE:  runSwitchShow,
}

func init() {
	switchCmd.AddCommand(switchListCmd)
	switchCmd.AddCommand(switchShowCmd)
}

func runSwitchList(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		switches, err := s.host.Switches(ctx)
		if err != nil {
			return err
		}
		type row struct {
			Name string `json:"name"`
			ID   string `json:"id"`
		}
		rows := make([]row, len(switches))
		for i, sw := range switches {
			rows[i] = row{sw.Name(), sw.ID()}
		}
		return emit(cmd, rows, func() *render.Table {
			t := render.NewTable("Name", "ID")
			for _, r := range rows {
				t.Row(r.Name, r.ID)
			}
			return t
		})
	})
}

func runSwitchShow(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		sw, err := s.host.Switch(ctx, args[0])
		if err != nil {
			return err
		}
		if output == render.FormatJSON {
			return render.JSON(cmd.OutOrStdout(), render.ToRecord(sw.Object()))
		}
		return render.Properties(cmd.OutOrStdout(), sw.Object())
	})
}
