package cli

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/javanstorm/hvctl/internal/config"
	"github.com/javanstorm/hvctl/internal/pathspec"
	"github.com/javanstorm/hvctl/internal/render"
	"github.com/javanstorm/hvctl/pkg/cim"
)

var traverseCmd = &cobra.Command{
	Use:   "traverse <root> <path>",
	Short: "Walk the object graph from an object",
	Long: `Walk the object graph from root along path and print every complete trail.

root is a machine name or ID, or an object path. path is a list of steps
separated by "/", or template names:

  hvctl traverse web01 @com-ports
  hvctl traverse web01 'settings/related:CIM_ResourceAllocationSettingData[ResourceType in [3, 4]]'
  hvctl traverse web01 adapter-switches -o dot | dot -Tsvg > web01.svg

Use "hvctl templates" to list the templates.`,
	Args: cobra.ExactArgs(2),
	RunE: runTraverse,
}

var traverseLeaves bool

func init() {
	traverseCmd.Flags().BoolVar(&traverseLeaves, "leaves", false, "Print only the last object of each trail")
}

// catalog returns the built-in templates plus those in the templates
// directory, which defaults to ~/.hvctl/templates.
func catalog() (*pathspec.Catalog, error) {
	c, err := pathspec.Builtin()
	if err != nil {
		return nil, err
	}
	dir := config.Global.Templates
	if dir == "" {
		paths, err := config.GetPaths()
		if err != nil {
			return nil, err
		}
		dir = paths.TemplatesDir
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err := c.Load(dir); err != nil {
		return nil, err
	}
	return c, nil
}

func runTraverse(cmd *cobra.Command, args []string) error {
	c, err := catalog()
	if err != nil {
		return err
	}
	path, err := c.Resolve(args[1])
	if err != nil {
		return err
	}

	return withSession(cmd, func(ctx context.Context, s *session) error {
		root, err := s.object(ctx, args[0])
		if err != nil {
			return err
		}
		results, err := s.host.Engine().Traverse(ctx, root, path)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		switch {
		case output == render.FormatDOT:
			return render.DOT(w, root, path, results)
		case traverseLeaves && output == render.FormatJSON:
			return render.JSON(w, render.ToRecords(cim.Leaves(results)))
		case traverseLeaves:
			return render.Objects(w, cim.Leaves(results), "ElementName")
		case output == render.FormatJSON:
			trails := make([][]render.Record, len(results))
			for i, trail := range results {
				trails[i] = render.ToRecords(trail)
			}
			return render.JSON(w, trails)
		}
		if len(results) == 0 {
			say(cmd, "No objects at %s", path)
			return nil
		}
		return render.Trails(w, path, results)
	})
}
