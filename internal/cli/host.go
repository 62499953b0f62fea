package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javanstorm/hvctl/internal/config"
	"github.com/javanstorm/hvctl/internal/hosts"
	"github.com/javanstorm/hvctl/internal/render"
	"github.com/javanstorm/hvctl/internal/terminal"
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Manage registered management hosts",
	Long: `Register Hyper-V hosts under short names and select the one used when
--host is not given.`,
}

var hostAddCmd = &cobra.Command{
	Use:   "add <name> [address]",
	Short: "Register a host",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runHostAdd,
}

var hostListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registered hosts",
	Args:    cobra.NoArgs,
	RunE:    runHostList,
}

var hostUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Select the active host",
	Args:  cobra.ExactArgs(1),
	RunE:  runHostUse,
}

var hostRemoveCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Remove a registered host",
	Args:    cobra.ExactArgs(1),
	RunE:    runHostRemove,
}

var (
	hostAddUser      string
	hostAddPort      int
	hostAddKey       string
	hostAddNamespace string
	hostAddUse       bool

	hostRemoveYes bool
)

func init() {
	hostAddCmd.Flags().StringVarP(&hostAddUser, "user", "u", "", "SSH user (default: ssh.user)")
	hostAddCmd.Flags().IntVarP(&hostAddPort, "port", "p", 0, "SSH port (default: ssh.port)")
	hostAddCmd.Flags().StringVarP(&hostAddKey, "key", "i", "", "Private key file (default: ssh.key_path)")
	hostAddCmd.Flags().StringVar(&hostAddNamespace, "namespace", "", "Management namespace (default: namespace)")
	hostAddCmd.Flags().BoolVar(&hostAddUse, "use", false, "Make the host active")

	hostRemoveCmd.Flags().BoolVarP(&hostRemoveYes, "yes", "y", false, "Do not ask for confirmation")

	hostCmd.AddCommand(hostAddCmd)
	hostCmd.AddCommand(hostListCmd)
	hostCmd.AddCommand(hostUseCmd)
	hostCmd.AddCommand(hostRemoveCmd)
}

func registry() (*hosts.Registry, error) {
	paths, err := config.GetPaths()
	if err != nil {
		return nil, err
	}
	return hosts.NewRegistry(paths.DataDir), nil
}

func runHostAdd(cmd *cobra.Command, args []string) error {
	reg, err := registry()
	if err != nil {
		return err
	}
	entry := hosts.Entry{
		Name:      args[0],
		User:      hostAddUser,
		Port:      hostAddPort,
		KeyPath:   hostAddKey,
		Namespace: hostAddNamespace,
	}
	if len(args) == 2 {
		entry.Address = args[1]
	}
	if err := reg.Add(entry); err != nil {
		return err
	}
	say(cmd, "Added host %s", entry.Name)

	active, err := reg.GetActive()
	if err != nil {
		return err
	}
	if hostAddUse || active == "" {
		if err := reg.SetActive(entry.Name); err != nil {
			return err
		}
		say(cmd, "Active host: %s", entry.Name)
	}
	return nil
}

func runHostList(cmd *cobra.Command, args []string) error {
	reg, err := registry()
	if err != nil {
		return err
	}
	entries, err := reg.List()
	if err != nil {
		return err
	}
	active, err := reg.GetActive()
	if err != nil {
		return err
	}
	if len(entries) == 0 && output != render.FormatJSON {
		say(cmd, "No hosts registered. Add one with: hvctl host add <name> <address>")
		return nil
	}
	return emit(cmd, entries, func() *render.Table {
		t := render.NewTable("", "Name", "Address", "User", "Namespace")
		for _, e := range entries {
			mark := ""
			if e.Name == active {
				mark = "*"
			}
			t.Row(mark, e.Name, e.Target(), e.User, e.Namespace)
		}
		return t
	})
}

func runHostUse(cmd *cobra.Command, args []string) error {
	reg, err := registry()
	if err != nil {
		return err
	}
	if err := reg.SetActive(args[0]); err != nil {
		return err
	}
	say(cmd, "Active host: %s", args[0])
	return nil
}

func runHostRemove(cmd *cobra.Command, args []string) error {
	reg, err := registry()
	if err != nil {
		return err
	}
	if _, err := reg.Get(args[0]); err != nil {
		return err
	}
	if !hostRemoveYes {
		p := terminal.Prompter{In: cmd.InOrStdin(), Out: cmd.ErrOrStderr()}
		ok, err := p.Confirm(fmt.Sprintf("Remove host %s?", args[0]))
		if errors.Is(err, terminal.ErrNoInput) {
			return errors.New("confirmation needed: pass --yes")
		}
		if err != nil {
			return err
		}
		if !ok {
			say(cmd, "Cancelled")
			return nil
		}
	}
	if err := reg.Remove(args[0]); err != nil {
		return err
	}
	say(cmd, "Removed host %s", args[0])
	return nil
}
