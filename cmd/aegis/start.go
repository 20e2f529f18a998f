// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newStartCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the aegis gateway",
		Long:  "Load configuration, initialize all subsystems, and start the HTTP server.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStart(cmd, v)
		},
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")

	return cmd
}

func runStart(cmd *cobra.Command, v *viper.Viper) error {
	if err := v.BindPFlag("networking.listen", cmd.Flags().Lookup("listen")); err != nil {
		return err
	}
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	logger := slog.Default()
	gw, err := WireGateway(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := gw.Close(); err != nil {
			logger.Warn("gateway shutdown", "error", err)
		}
	}()

	fs := cfg.FailSafe()
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Starting aegis %s on %s (scanner=%s, on_scan_failure=%s, on_timeout=%s)\n",
		version, cfg.Networking.Listen, cfg.Scanner.Backend, fs.OnScanFailure, fs.OnTimeout)

	ctx, stop := signal.NotifyContext(cmdContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return gw.Start(ctx)
}

// cmdContext returns the command's context, or Background when the command
// was executed without one.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
