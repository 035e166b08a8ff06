package check

import (
	"context"
	"fmt"

	"github.com/quennic/rconx/config"
	"github.com/quennic/rconx/netcheck"
	"github.com/quennic/rconx/tools"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configFile = tools.GetenvDefault(config.EnvPrefix+"CONFIG", "config.yaml")
	Cmd        = &cobra.Command{
		Use:   "check",
		Short: "Run the network health probes against the configured server",
		Args:  cobra.NoArgs,
		RunE:  runCheck,
	}
)

func init() {
	Cmd.Flags().StringVarP(&configFile, "config", "c", configFile, "path of config file")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadClientConfig(configFile)
	if err != nil {
		return err
	}

	report := netcheck.New(log.Logger).Check(context.Background(), cfg.Server)

	fmt.Printf("overall:     %s\n", report.Overall)
	fmt.Printf("latency:     %s\n", report.Latency)
	fmt.Printf("packet loss: %.0f%%\n", report.PacketLoss*100)
	fmt.Printf("resolved:    %d address(es)\n", report.Resolved)
	fmt.Printf("interfaces:  %d up\n", report.Interfaces)
	for _, issue := range report.Issues {
		fmt.Printf(" - %s\n", issue)
	}

	if report.Overall == netcheck.HealthPoor {
		return fmt.Errorf("network health is poor, connection attempts would be rejected")
	}
	return nil
}
