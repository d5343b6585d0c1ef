package db

import (
	"github.com/spf13/cobra"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/util/command"
)

func New() *cobra.Command {
	return command.NewSubcommandGroup("db",
		newMigrate(),
	)
}
