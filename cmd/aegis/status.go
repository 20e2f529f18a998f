// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/sigil-dev/aegis/internal/security/intercept"
	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type providerStatus struct {
	Provider  string `json:"provider" yaml:"provider"`
	Available bool   `json:"available" yaml:"available"`
	Message   string `json:"message" yaml:"message"`
}

type gatewayStatus struct {
	Status    string                     `json:"status" yaml:"status"`
	Version   string                     `json:"version" yaml:"version"`
	Providers []providerStatus           `json:"providers" yaml:"providers"`
	Security  *intercept.MetricsSnapshot `json:"security,omitempty" yaml:"security,omitempty"`
}

func newStatusCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show gateway status",
		Long:  "Query the running gateway for provider health and scan counters.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, v)
		},
	}

	addAddressFlag(cmd)
	addOutputFlag(cmd)

	return cmd
}

func runStatus(cmd *cobra.Command, v *viper.Viper) error {
	addr := gatewayAddr(cmd, v)
	out := cmd.OutOrStdout()

	var st gatewayStatus
	if err := newGatewayClient(addr).getJSON(cmdContext(cmd), "/api/v1/status", nil, &st); err != nil {
		if aegiserr.HasCode(err, aegiserr.CodeCLIGatewayNotRunning) {
			_, _ = fmt.Fprintf(out, "Gateway at %s is not running (connection refused)\n", addr)
			return nil
		}
		return err
	}

	return render(cmd, st, func(w io.Writer) error {
		return writeStatus(w, addr, st)
	})
}

func writeStatus(w io.Writer, addr string, st gatewayStatus) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Gateway at %s: %s (aegis %s)\n", addr, st.Status, st.Version)
	for _, p := range st.Providers {
		state := "unavailable"
		if p.Available {
			state = "available"
		}
		fmt.Fprintf(&b, "  provider %-10s %s", p.Provider, state)
		if p.Message != "" {
			fmt.Fprintf(&b, " (%s)", p.Message)
		}
		b.WriteString("\n")
	}
	if m := st.Security; m != nil {
		fmt.Fprintf(&b, "Scans: %d total, %d allowed, %d blocked, %d redacted, %d errors\n",
			m.TotalScans, m.Allowed, m.Blocked, m.Redacted, m.Errors)
		fmt.Fprintf(&b, "Block rate: %.2f%%, average scan %.2f ms\n", m.BlockRatePercent, m.AverageScanMs)
		fmt.Fprintf(&b, "Fail-safe: on_scan_failure=%s on_timeout=%s block=%s\n",
			m.OnScanFailure, m.OnTimeout, strings.Join(m.BlockCategories, ","))
		if h := m.ScannerHealth; h != nil {
			state := "available"
			if !h.Available {
				state = "unavailable"
			}
			fmt.Fprintf(&b, "Scan service: %s (%d failures)\n", state, h.FailureCount)
		}
		if m.FailOpenAllowed > 0 || m.AuditDropped > 0 {
			fmt.Fprintf(&b, "Warnings: %d fail-open allows, %d dropped audit events\n", m.FailOpenAllowed, m.AuditDropped)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
