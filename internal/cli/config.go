package cli

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/javanstorm/hvctl/internal/config"
	"github.com/javanstorm/hvctl/internal/render"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show every effective setting after merging the config file, HVCTL_*
environment variables and flags, and report validation problems.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show where configuration and data are kept",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	settings := config.Settings()
	problems := config.ValidateConfig(config.Global, !config.Global.Simulator.Enabled)
	if output == render.FormatJSON {
		return render.JSON(cmd.OutOrStdout(), map[string]any{
			"file":     config.ConfigFileUsed(),
			"settings": settings,
			"problems": problems,
		})
	}

	file := config.ConfigFileUsed()
	if file == "" {
		file = "(none, using defaults)"
	}
	say(cmd, "Config file: %s", file)

	t := render.NewTable("Setting", "Value")
	for _, key := range flatten("", settings) {
		t.Row(key.name, key.value)
	}
	if err := t.Write(cmd.OutOrStdout()); err != nil {
		return err
	}
	if len(problems) > 0 {
		say(cmd, "\n%s", config.FormatValidationErrors(problems))
	}
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	paths, err := config.GetPaths()
	if err != nil {
		return err
	}
	return emit(cmd, paths, func() *render.Table {
		t := render.NewTable("Name", "Path")
		t.Row("Config directory", paths.ConfigDir)
		t.Row("Data directory", paths.DataDir)
		t.Row("Config file", paths.ConfigFile)
		t.Row("Hosts", paths.HostsFile)
		t.Row("Templates", paths.TemplatesDir)
		return t
	})
}

type setting struct {
	name  string
	value any
}

// flatten turns nested settings into dotted keys, sorted.
func flatten(prefix string, m map[string]any) []setting {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []setting
	for _, k := range keys {
		name := k
		if prefix != "" {
			name = prefix + "." + k
		}
		if sub, ok := m[k].(map[string]any); ok {
			out = append(out, flatten(name, sub)...)
			continue
		}
		out = append(out, setting{name, m[k]})
	}
	return out
}
