package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	var insecureCookies bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the maintenance jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd.OutOrStdout())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server, err := newApp(ctx, cfg, logger, appOptions{insecureCookies: insecureCookies})
			if err != nil {
				return err
			}
			defer func() {
				if cerr := server.close(); cerr != nil {
					logger.Error("failed to close storage", "error", cerr)
				}
			}()

			return server.serve(ctx, fmt.Sprintf(":%d", cfg.HTTPPort), logger)
		},
	}
	cmd.Flags().BoolVar(&insecureCookies, "insecure-cookies", false, "issue session cookies without the Secure attribute (plain HTTP development)")
	return cmd
}
