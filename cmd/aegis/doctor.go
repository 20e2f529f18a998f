// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/sigil-dev/aegis/internal/config"
	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/secrets"
	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"
)

// keyCheckClient validates provider keys. Overridden in tests.
var keyCheckClient = &http.Client{Timeout: 10 * time.Second}

func newDoctorCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check the binary, config file, scanner settings, provider keys, gateway and disk space.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, v)
		},
	}

	addAddressFlag(cmd)
	cmd.Flags().Bool("check-keys", false, "call each provider's API to confirm its key is accepted")

	return cmd
}

func runDoctor(cmd *cobra.Command, v *viper.Viper) error {
	w := cmd.OutOrStdout()
	ctx := cmdContext(cmd)
	addr := gatewayAddr(cmd, v)
	checkKeys, _ := cmd.Flags().GetBool("check-keys")
	dataDir := resolveDataDir(v)

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", func() string { return checkConfig(v) }},
		{"Scanner", func() string { return checkScanner(v) }},
		{"Gateway", func() string { return checkGateway(ctx, addr) }},
		{"Data Dir", func() string { return dataDir }},
		{"Disk Space", func() string { return checkDiskSpace(dataDir) }},
	}
	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	for _, name := range []provider.Name{provider.NameGoogle, provider.NameAnthropic, provider.NameOpenAI} {
		label := fmt.Sprintf("Provider %s:", name)
		if _, err := fmt.Fprintf(w, "%-20s %s\n", label, checkProvider(ctx, v, name, checkKeys)); err != nil {
			return err
		}
	}
	return nil
}

// resolveDataDir returns the data directory from viper or the default.
func resolveDataDir(v *viper.Viper) string {
	if dir := v.GetString("data_dir"); dir != "" {
		return dir
	}
	dir, err := config.DefaultDataDir()
	if err != nil {
		return "."
	}
	return dir
}

func checkBinary() string {
	return fmt.Sprintf("aegis %s (commit %s)", version, commit)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkConfig(v *viper.Viper) string {
	used := v.ConfigFileUsed()
	if used == "" {
		return "using defaults (no config file found)"
	}
	problems := config.CheckPermissions(used)
	if len(problems) == 0 {
		return fmt.Sprintf("loaded from %s", used)
	}
	msgs := make([]string, 0, len(problems))
	for _, p := range problems {
		msgs = append(msgs, p.Error())
	}
	return fmt.Sprintf("loaded from %s; WARNING: %s", used, strings.Join(msgs, "; "))
}

func checkScanner(v *viper.Viper) string {
	switch backend := v.GetString("scanner.backend"); backend {
	case config.BackendLocal:
		rules, err := localRules(v.GetString("scanner.rules_file"))
		if err != nil {
			return fmt.Sprintf("local rules unusable: %s", err)
		}
		return fmt.Sprintf("local (%d rules)", len(rules))
	case config.BackendRemote:
		var missing []string
		if v.GetString("scanner.api_key") == "" {
			missing = append(missing, "api_key")
		}
		if v.GetString("scanner.profile") == "" {
			missing = append(missing, "profile")
		}
		if len(missing) > 0 {
			return fmt.Sprintf("remote %s, missing %s", v.GetString("scanner.endpoint"), strings.Join(missing, ", "))
		}
		return fmt.Sprintf("remote %s (profile %s)", v.GetString("scanner.endpoint"), v.GetString("scanner.profile"))
	default:
		return fmt.Sprintf("unknown backend %q", backend)
	}
}

func checkProvider(ctx context.Context, v *viper.Viper, name provider.Name, validate bool) string {
	prefix := "agents.providers." + string(name)
	raw := v.GetString(prefix + ".api_key")
	if raw == "" {
		return "not configured"
	}
	key, err := secrets.Resolve(secretStoreFactory(), raw)
	if err != nil {
		return fmt.Sprintf("key unavailable: %s", err)
	}
	if !validate {
		if secrets.IsURI(raw) {
			return "configured (keyring)"
		}
		return "configured"
	}
	if err := provider.ValidateKeyAt(ctx, keyCheckClient, name, key, v.GetString(prefix+".endpoint")); err != nil {
		return fmt.Sprintf("key rejected: %s", err)
	}
	return "key accepted"
}

func checkGateway(ctx context.Context, addr string) string {
	var body struct {
		Status string `json:"status"`
	}
	if err := newGatewayClient(addr).getJSON(ctx, "/api/v1/status", nil, &body); err != nil {
		if aegiserr.HasCode(err, aegiserr.CodeCLIGatewayNotRunning) {
			return fmt.Sprintf("not running at %s (run 'aegis start')", addr)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s at %s", body.Status, addr)
}

func checkDiskSpace(dataDir string) string {
	path := dataDir
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Fall back to home directory if data dir doesn't exist yet.
		path, _ = os.UserHomeDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
