package exec

import (
	"context"
	"fmt"
	"time"

	"github.com/quennic/rconx/client"
	"github.com/quennic/rconx/config"
	"github.com/quennic/rconx/tools"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configFile   = tools.GetenvDefault(config.EnvPrefix+"CONFIG", "config.yaml")
	priorityName string
	timeout      time.Duration

	Cmd = &cobra.Command{
		Use:   "exec <command>",
		Short: "Execute a single command and exit",
		Args:  cobra.ExactArgs(1),
		RunE:  runExec,
	}
)

func init() {
	Cmd.Flags().StringVarP(&configFile, "config", "c", configFile, "path of config file")
	Cmd.Flags().StringVarP(&priorityName, "priority", "p", "normal", "command priority: low, normal, high or critical")
	Cmd.Flags().DurationVarP(&timeout, "timeout", "t", time.Minute, "overall deadline for connect and execute")
}

func runExec(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadClientConfig(configFile)
	if err != nil {
		return err
	}

	priority, err := client.ParsePriority(priorityName)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	rcon, err := client.New(cfg, log.Logger)
	if err != nil {
		return err
	}
	defer rcon.Close()

	if err := rcon.Connect(ctx); err != nil {
		return err
	}

	resp, err := rcon.SendCommand(ctx, args[0], priority)
	if err != nil {
		return err
	}
	if resp != "" {
		fmt.Println(resp)
	}
	return nil
}
