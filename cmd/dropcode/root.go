package main

import (
	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/pavel-fokin/dropcode/internal/server"
)

// NewRootCommand returns the root command with all subcommands attached.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dropcode",
		Short: "Share text and files behind short numeric codes.",
		Long: `Dropcode stores a text snippet or a file and hands back a 4-digit code.
Anyone with the code can read the text or download the file until it expires.`,
		SilenceUsage: true,
	}
	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewPurgeCommand())
	return rootCmd
}

func loadConfig() (*server.Config, error) {
	cfg := &server.Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
