package generate

import (
	"github.com/quennic/rconx/cmd/generate/config"
	"github.com/quennic/rconx/cmd/generate/password"
	"github.com/spf13/cobra"
)

var (
	Cmd = &cobra.Command{
		Use:   "generate",
		Short: "Generate resources",
		Args:  cobra.NoArgs,
	}
)

func init() {
	Cmd.AddCommand(config.Cmd)
	Cmd.AddCommand(password.Cmd)
}
