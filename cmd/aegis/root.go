// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sigil-dev/aegis/internal/config"
	"github.com/sigil-dev/aegis/internal/secrets"
	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// secretStoreFactory creates the secrets.Store used to resolve keyring URIs
// and by the secret commands. Tests substitute an in-memory store.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyring()
}

// logOutput receives the process log. Tests redirect it.
var logOutput io.Writer = os.Stderr

// NewRootCmd creates the root aegis command with all subcommands registered.
// Each root command owns a fresh Viper instance.
func NewRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "aegis",
		Short:         "Aegis: security-scanning gateway for multi-agent chat",
		Long:          "Aegis routes chat through a multi-agent assistant and scans every prompt and response chunk at each agent boundary.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := initViper(cmd, v); err != nil {
				return err
			}
			setupLogging(v)
			return nil
		},
	}

	// Global flags; initViper maps them to viper keys.
	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newStartCmd(v),
		newStatusCmd(v),
		newVersionCmd(),
		newScanCmd(v),
		newChatCmd(v),
		newAuditCmd(v),
		newSecretCmd(),
		newConfigCmd(v),
		newDoctorCmd(v),
	)

	return root
}

// initViper sets up v with defaults, env bindings, flag bindings, and the
// config file so the standard precedence (flag > env > file > defaults) is
// handled uniformly.
func initViper(cmd *cobra.Command, v *viper.Viper) error {
	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return aegiserr.Errorf(aegiserr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType is omitted: with it set, Viper also tries the bare
		// name, which collides with an ./aegis binary.
		v.SetConfigName("aegis")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/aegis")
		v.AddConfigPath("/etc/aegis")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return aegiserr.Errorf(aegiserr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			if path, perr := config.DefaultConfigPath(); perr == nil {
				if written := config.BootstrapConfig(path); written != "" {
					v.SetConfigFile(written)
					if err := v.ReadInConfig(); err != nil {
						return aegiserr.Errorf(aegiserr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
					}
				}
			}
		}
	}

	if used := v.ConfigFileUsed(); used != "" {
		config.WarnInsecurePermissions(used)
	}

	if err := v.BindPFlag("data_dir", cmd.Root().PersistentFlags().Lookup("data-dir")); err != nil {
		return aegiserr.Errorf(aegiserr.CodeCLISetupFailure, "binding data-dir flag: %w", err)
	}
	if err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
		return aegiserr.Errorf(aegiserr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}
	return nil
}

// loadConfig resolves keyring references and decodes the validated config.
// Commands that need credentials call it; the others only read v.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	if err := secrets.ResolveViper(v, secretStoreFactory()); err != nil {
		return nil, err
	}
	return config.FromViper(v)
}

// setupLogging installs the process logger from the logging section.
// --verbose forces debug.
func setupLogging(v *viper.Viper) {
	level := slog.LevelInfo
	switch strings.ToLower(v.GetString("logging.level")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if v.GetBool("verbose") {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if v.GetString("logging.format") == "json" {
		h = slog.NewJSONHandler(logOutput, opts)
	} else {
		h = slog.NewTextHandler(logOutput, opts)
	}
	slog.SetDefault(slog.New(h))
}
