package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/tagbot/backend/internal/config"
	"github.com/zhouzirui/tagbot/backend/internal/logging"
)

// commandContext loads configuration and the logger once per invocation.
type commandContext struct {
	cfg    *config.Config
	logger *zap.Logger
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) ensureLogger() *zap.Logger {
	if c.logger != nil {
		return c.logger
	}
	logger := zap.NewNop()
	if c.cfg != nil {
		if built, err := logging.New(c.cfg.Log); err == nil {
			logger = built
		}
	}
	c.logger = logger
	return logger
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "tagtool",
		Short:         "Retag audio files and manage the thanks list",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil {
				log.Printf("warning: failed to load .env file: %v", err)
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newRetagCommand(ctx))
	rootCmd.AddCommand(newLedgerCommand(ctx))
	return rootCmd
}
