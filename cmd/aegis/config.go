// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"errors"
	"fmt"

	"github.com/sigil-dev/aegis/internal/config"
	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration as YAML with credentials masked",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runConfigShow(cmd, v)
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check the configuration and report every problem",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runConfigValidate(cmd, v)
			},
		},
	)

	return cmd
}

func runConfigShow(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	redacted := cfg.Redacted()

	out := cmd.OutOrStdout()
	if used := v.ConfigFileUsed(); used != "" {
		_, _ = fmt.Fprintf(out, "# loaded from %s\n", used)
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(redacted); err != nil {
		return aegiserr.Errorf(aegiserr.CodeCLISetupFailure, "encoding config: %w", err)
	}
	return enc.Close()
}

func runConfigValidate(cmd *cobra.Command, v *viper.Viper) error {
	out := cmd.OutOrStdout()

	var problems []error
	if used := v.ConfigFileUsed(); used != "" {
		problems = append(problems, config.CheckPermissions(used)...)
	}
	if _, err := loadConfig(v); err != nil {
		problems = append(problems, err)
	}

	if len(problems) == 0 {
		_, _ = fmt.Fprintln(out, "Configuration is valid.")
		return nil
	}
	for _, p := range problems {
		_, _ = fmt.Fprintf(out, "- %v\n", p)
	}
	return aegiserr.Wrap(errors.Join(problems...), aegiserr.CodeConfigValidateInvalidValue,
		fmt.Sprintf("%d configuration problem(s)", len(problems)))
}
