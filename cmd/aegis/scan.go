// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sigil-dev/aegis/internal/agent"
	"github.com/sigil-dev/aegis/internal/audit"
	"github.com/sigil-dev/aegis/internal/security/intercept"
	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/sigil-dev/aegis/pkg/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// scanReport is the outcome of one CLI scan. It never repeats the input,
// only the text the gateway would pass on.
type scanReport struct {
	Direction  types.Direction `json:"direction" yaml:"direction"`
	Action     types.Action    `json:"action" yaml:"action"`
	Category   types.Category  `json:"category" yaml:"category"`
	ScanID     string          `json:"scan_id,omitempty" yaml:"scan_id,omitempty"`
	ReasonCode string          `json:"reason_code,omitempty" yaml:"reason_code,omitempty"`
	Failure    string          `json:"failure,omitempty" yaml:"failure,omitempty"`
	DurationMs int64           `json:"duration_ms" yaml:"duration_ms"`
	Notice     string          `json:"notice,omitempty" yaml:"notice,omitempty"`
	Text       string          `json:"text" yaml:"text"`
}

// lastEvent keeps the most recent audit event of a one-shot scan.
type lastEvent struct {
	ev audit.Event
}

func (l *lastEvent) Record(_ context.Context, ev audit.Event) error {
	l.ev = ev
	return nil
}

func newScanCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [text...]",
		Short: "Scan text with the configured scanner",
		Long: "Run text through the interception middleware and print the decision. " +
			"Text comes from the arguments or, when none are given, from stdin. " +
			"Nothing is written to the audit log.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, v, args)
		},
	}

	cmd.Flags().String("direction", string(types.DirectionIngress), "scan as a prompt (ingress) or a response (egress)")
	cmd.Flags().String("backend", "", "override scanner.backend (remote or local)")
	cmd.Flags().String("conversation", "cli", "conversation id sent with the scan")
	addOutputFlag(cmd)

	return cmd
}

func runScan(cmd *cobra.Command, v *viper.Viper, args []string) error {
	dir, _ := cmd.Flags().GetString("direction")
	direction := types.Direction(dir)
	if !direction.Valid() {
		return aegiserr.Errorf(aegiserr.CodeCLIInputInvalid, "--direction must be ingress or egress, got %q", dir)
	}
	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		v.Set("scanner.backend", backend)
	}

	text, err := scanInput(cmd, args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	client, err := newScanClient(cfg, slog.Default())
	if err != nil {
		return err
	}

	rec := &lastEvent{}
	mw := intercept.New(client, cfg.FailSafe(), intercept.WithAudit(rec), intercept.WithLogger(slog.Default()))
	conversation, _ := cmd.Flags().GetString("conversation")
	ctx := cmdContext(cmd)

	report := scanReport{Direction: direction}
	switch direction {
	case types.DirectionIngress:
		decision, out := mw.ScanBefore(ctx, text, conversation)
		report.Text = out
		report.Notice = decision.Notice
	case types.DirectionEgress:
		for chunk, err := range mw.ScanStream(ctx, agent.Single(text), conversation) {
			if err != nil {
				return err
			}
			report.Text += chunk
		}
	}

	report.Action = rec.ev.Action
	report.Category = rec.ev.Category
	report.ScanID = rec.ev.ScanID
	report.ReasonCode = rec.ev.ReasonCode
	report.Failure = rec.ev.Failure
	report.DurationMs = rec.ev.DurationMs
	if report.Action == types.ActionBlock && report.Notice == "" {
		report.Notice = report.Text
	}

	return render(cmd, report, func(w io.Writer) error {
		return writeScanReport(w, report)
	})
}

// scanInput joins the arguments, or reads stdin when there are none.
func scanInput(cmd *cobra.Command, args []string) (string, error) {
	text := strings.Join(args, " ")
	if len(args) == 0 {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", aegiserr.Errorf(aegiserr.CodeCLIInputInvalid, "reading stdin: %w", err)
		}
		text = strings.TrimRight(string(raw), "\r\n")
	}
	if strings.TrimSpace(text) == "" {
		return "", aegiserr.New(aegiserr.CodeCLIInputInvalid, "nothing to scan: pass text as arguments or on stdin")
	}
	return text, nil
}

func writeScanReport(w io.Writer, r scanReport) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Action:    %s\n", r.Action)
	fmt.Fprintf(&b, "Category:  %s", r.Category)
	if r.ReasonCode != "" {
		fmt.Fprintf(&b, " (%s)", r.ReasonCode)
	}
	b.WriteString("\n")
	if r.ScanID != "" {
		fmt.Fprintf(&b, "Scan ID:   %s\n", r.ScanID)
	}
	if r.Failure != "" {
		fmt.Fprintf(&b, "Failure:   %s\n", r.Failure)
	}
	fmt.Fprintf(&b, "Duration:  %d ms\n", r.DurationMs)
	fmt.Fprintf(&b, "\n%s\n", r.Text)
	_, err := io.WriteString(w, b.String())
	return err
}
