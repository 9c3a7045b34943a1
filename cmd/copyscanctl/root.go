package main

import (
	"context"
	"encoding/json"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/creatorhub/copyscan/internal/app"
	"github.com/creatorhub/copyscan/internal/config"
	"github.com/creatorhub/copyscan/internal/observability"
)

type commandContext struct {
	configPath string
	jsonOutput bool
	logLevel   string

	svc *app.Services
}

// services loads config and connects on first use.
func (c *commandContext) services(ctx context.Context) (*app.Services, error) {
	if c.svc != nil {
		return c.svc, nil
	}
	_ = godotenv.Load()
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	observability.SetupLogger(c.logLevel, "text")

	svc, err := app.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.svc = svc
	return svc, nil
}

func (c *commandContext) close() {
	if c.svc != nil {
		c.svc.Close()
		c.svc = nil
	}
}

func newRootCommand() *cobra.Command {
	cc := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "copyscanctl",
		Short:         "Operate the copyscan matching engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			cc.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cc.configPath, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&cc.jsonOutput, "json", false, "Print JSON instead of tables")
	rootCmd.PersistentFlags().StringVar(&cc.logLevel, "log-level", "warn", "Log level for engine output")

	rootCmd.AddCommand(newScanCommand(cc))
	rootCmd.AddCommand(newActionCommand(cc))
	rootCmd.AddCommand(newMatchCommand(cc))
	rootCmd.AddCommand(newMatchesCommand(cc))
	rootCmd.AddCommand(newJobCommand(cc))

	return rootCmd
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
