// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bufio"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/sigil-dev/aegis/internal/secrets"
	"github.com/sigil-dev/aegis/internal/security/scanner"
	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets stored in the OS keyring",
		Long: "Store credentials in the operating system keyring and reference them from the config as " +
			secrets.URI(secrets.DefaultService, "<name>") + ".",
	}

	cmd.PersistentFlags().String("service", secrets.DefaultService, "keyring service name")
	cmd.AddCommand(
		newSecretSetCmd(),
		newSecretGetCmd(),
		newSecretListCmd(),
		newSecretDeleteCmd(),
	)

	return cmd
}

func newSecretSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> [value]",
		Short: "Store a secret; the value is read from stdin when omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runSecretSet,
	}
}

func newSecretGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Show whether a secret is stored",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecretGet,
	}
	cmd.Flags().Bool("reveal", false, "print the secret value")
	return cmd
}

func newSecretListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all stored secret names",
		RunE:  runSecretList,
	}
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a secret by name",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecretDelete,
	}
}

func serviceFlag(cmd *cobra.Command) string {
	s, _ := cmd.Flags().GetString("service")
	return s
}

func runSecretSet(cmd *cobra.Command, args []string) error {
	name := args[0]
	var value string
	if len(args) == 2 {
		value = args[1]
	} else {
		v, err := readSecretValue(cmd, name)
		if err != nil {
			return err
		}
		value = v
	}
	if value == "" {
		return aegiserr.Errorf(aegiserr.CodeCLIInputInvalid, "secret %q has an empty value", name)
	}

	service := serviceFlag(cmd)
	if err := secretStoreFactory().Set(service, name, value); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stored secret %s (reference it as %s)\n", name, secrets.URI(service, name))
	return nil
}

// readSecretValue prompts without echo when stdin is a terminal and
// otherwise reads the first line of stdin.
func readSecretValue(cmd *cobra.Command, name string) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Value for %s: ", name)
		raw, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", aegiserr.Errorf(aegiserr.CodeCLIInputInvalid, "reading secret: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}

	sc := bufio.NewScanner(cmd.InOrStdin())
	var value string
	if sc.Scan() {
		value = strings.TrimSpace(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return "", aegiserr.Errorf(aegiserr.CodeCLIInputInvalid, "reading secret from stdin: %w", err)
	}
	return value, nil
}

func runSecretGet(cmd *cobra.Command, args []string) error {
	name := args[0]
	value, err := secretStoreFactory().Get(serviceFlag(cmd), name)
	if err != nil {
		if aegiserr.HasCode(err, aegiserr.CodeSecretNotFound) {
			return aegiserr.Errorf(aegiserr.CodeSecretNotFound, "secret %q not found", name)
		}
		return err
	}

	if reveal, _ := cmd.Flags().GetBool("reveal"); !reveal {
		value = scanner.MaskToken
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, value)
	return nil
}

func runSecretList(cmd *cobra.Command, _ []string) error {
	keys, err := secretStoreFactory().List(serviceFlag(cmd))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		_, _ = fmt.Fprintln(out, "No secrets stored.")
		return nil
	}

	slices.Sort(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintln(out, k)
	}
	return nil
}

func runSecretDelete(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := secretStoreFactory().Delete(serviceFlag(cmd), name); err != nil {
		if aegiserr.HasCode(err, aegiserr.CodeSecretNotFound) {
			return aegiserr.Errorf(aegiserr.CodeSecretNotFound, "secret %q not found", name)
		}
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted secret: %s\n", name)
	return nil
}
