package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/javanstorm/hvctl/internal/render"
	"github.com/javanstorm/hvctl/internal/vhd"
)

var diskCmd = &cobra.Command{
	Use:   "disk",
	Short: "Inspect and clone virtual hard disks",
}

var diskInfoCmd = &cobra.Command{
	Use:   "info <path>",
	Short: "Show a disk's format, type and sizes",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiskInfo,
}

var diskCloneCmd = &cobra.Command{
	Use:   "clone <source> <destination>",
	Short: "Copy a disk",
	Long: `Copy a disk in full, or with --differencing create a child disk whose
parent is the source. The destination's extension selects the format of a
full copy.`,
	Args: cobra.ExactArgs(2),
	RunE: runDiskClone,
}

var (
	diskCloneDifferencing bool
	diskCloneType         string
)

func init() {
	diskCloneCmd.Flags().BoolVarP(&diskCloneDifferencing, "differencing", "d", false, "Create a differencing disk instead of a full copy")
	diskCloneCmd.Flags().StringVarP(&diskCloneType, "type", "t", "", "Type of a full copy: fixed or dynamic (default: the source's)")

	diskCmd.AddCommand(diskInfoCmd)
	diskCmd.AddCommand(diskCloneCmd)
}

func runDiskInfo(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		info, err := s.disks.Info(ctx, args[0])
		if err != nil {
			return err
		}
		return printDisk(cmd, info)
	})
}

func runDiskClone(cmd *cobra.Command, args []string) error {
	opts := vhd.CloneOptions{Differencing: diskCloneDifferencing}
	if diskCloneType != "" {
		t, err := vhd.ParseType(diskCloneType)
		if err != nil {
			return err
		}
		opts.Type = t
	}
	return withSession(cmd, func(ctx context.Context, s *session) error {
		info, err := s.disks.Clone(ctx, args[0], args[1], opts)
		if err != nil {
			return err
		}
		return printDisk(cmd, info)
	})
}

func printDisk(cmd *cobra.Command, info *vhd.Info) error {
	return emit(cmd, info, func() *render.Table {
		t := render.NewTable("Property", "Value")
		t.Row("Path", info.Path)
		t.Row("Format", info.Format)
		t.Row("Type", info.Type)
		t.Row("Size", info.Size)
		t.Row("File Size", info.FileSize)
		t.Row("Block Size", info.BlockSize)
		t.Row("Parent", info.ParentPath)
		t.Row("Identifier", info.DiskIdentifier)
		t.Row("Attached", info.Attached)
		return t
	})
}
