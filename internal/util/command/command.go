package command

import (
	"github.com/spf13/cobra"
)

// NewSubcommandGroup returns a command that only groups subcommands and prints
// its help when called on its own.
func NewSubcommandGroup(name string, subCommands ...*cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name,
		Short: name + " related subcommands",
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}
	cmd.AddCommand(subCommands...)
	return cmd
}
