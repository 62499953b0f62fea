package cli

import (
	"github.com/spf13/cobra"

	"github.com/javanstorm/hvctl/internal/render"
)

var templatesCmd = &cobra.Command{
	Use:   "templates [name]",
	Short: "List path templates, or show one",
	Long: `List the path templates usable with "hvctl traverse". Templates are built
in, or loaded from YAML files in the templates directory; a file there
replaces built-in templates of the same name.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTemplates,
}

type templateRow struct {
	Name        string `json:"name"`
	From        string `json:"from,omitempty"`
	Description string `json:"description,omitempty"`
	Path        string `json:"path"`
	Source      string `json:"source"`
}

func runTemplates(cmd *cobra.Command, args []string) error {
	c, err := catalog()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		t, err := c.Get(args[0])
		if err != nil {
			return err
		}
		path, err := t.Compile()
		if err != nil {
			return err
		}
		row := templateRow{t.Name, t.From, t.Description, path.String(), t.Source}
		return emit(cmd, row, func() *render.Table {
			tbl := render.NewTable("Property", "Value")
			tbl.Row("Name", row.Name)
			tbl.Row("From", row.From)
			tbl.Row("Description", row.Description)
			tbl.Row("Path", row.Path)
			tbl.Row("Source", row.Source)
			return tbl
		})
	}

	var rows []templateRow
	for _, t := range c.Templates() {
		path, err := t.Compile()
		if err != nil {
			return err
		}
		rows = append(rows, templateRow{t.Name, t.From, t.Description, path.String(), t.Source})
	}
	return emit(cmd, rows, func() *render.Table {
		tbl := render.NewTable("Name", "From", "Description")
		for _, r := range rows {
			tbl.Row(r.Name, r.From, r.Description)
		}
		return tbl
	})
}
