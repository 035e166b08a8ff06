package run

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/quennic/rconx/client"
	"github.com/quennic/rconx/config"
	"github.com/quennic/rconx/eventbus"
	"github.com/quennic/rconx/tools"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configFile = tools.GetenvDefault(config.EnvPrefix+"CONFIG", "config.yaml")
	Cmd        = &cobra.Command{
		Use:   "run",
		Short: "Run the interactive RCON console",
		Args:  cobra.NoArgs,
		RunE:  runConsole,
	}
)

func init() {
	Cmd.Flags().StringVarP(&configFile, "config", "c", configFile, "path of config file")
}

func runConsole(cmd *cobra.Command, args []string) error {
	logger := log.With().Str("com", "console").Logger()

	logger.Info().Str("config", configFile).Msg("loading configuration")
	cfg, err := config.LoadClientConfig(configFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	rcon, err := client.New(cfg, log.Logger)
	if err != nil {
		return err
	}

	bus := rcon.Events()
	bus.Subscribe(eventbus.TypeMessage, func(evt eventbus.Event) error {
		fmt.Println(evt.(eventbus.Message).Text)
		return nil
	})
	bus.Subscribe(eventbus.TypeServerError, func(evt eventbus.Event) error {
		e := evt.(eventbus.ServerError)
		logger.Warn().Uint32("code", e.Code).Str("message", e.Message).Msg("server error")
		return nil
	})
	bus.Subscribe(eventbus.TypeDisconnected, func(evt eventbus.Event) error {
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn().Str("reason", evt.(eventbus.Disconnected).Reason).Msg("connection lost, reconnecting")
		go func() {
			if err := rcon.ConnectWithRetry(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("reconnection failed, shutting down")
				sigCh <- syscall.SIGTERM
			}
		}()
		return nil
	})

	if err := rcon.ConnectWithRetry(ctx); err != nil {
		return err
	}
	logger.Info().Str("server", cfg.Server).Msg("console ready, type commands or 'exit'")

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "exit" || line == "quit" {
				sigCh <- syscall.SIGTERM
				return
			}
			resp, err := rcon.SendCommand(ctx, line, client.PriorityNormal)
			if err != nil {
				logger.Error().Err(err).Str("command", line).Msg("command failed")
				continue
			}
			if resp != "" {
				fmt.Println(resp)
			}
		}
	}()

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	cancel()

	if err := rcon.Close(); err != nil {
		logger.Warn().Err(err).Msg("shutdown error")
	}
	logger.Info().Msg("console stopped")
	return nil
}
