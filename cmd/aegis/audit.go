// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"text/tabwriter"

	"github.com/sigil-dev/aegis/internal/audit"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type auditList struct {
	Events []audit.Event `json:"events" yaml:"events"`
}

func newAuditCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recent scan events",
		Long:  "Fetch recent audit events from the running gateway, newest first. Events never contain scanned text.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAudit(cmd, v)
		},
	}

	addAddressFlag(cmd)
	addOutputFlag(cmd)
	cmd.Flags().String("conversation", "", "only events of this conversation")
	cmd.Flags().String("action", "", "only events with this action (allow, block, redact)")
	cmd.Flags().String("direction", "", "only events in this direction (ingress, egress)")
	cmd.Flags().IntP("limit", "n", 50, "maximum number of events")

	return cmd
}

func runAudit(cmd *cobra.Command, v *viper.Viper) error {
	q := url.Values{}
	for flag, param := range map[string]string{
		"conversation": "conversation_id",
		"action":       "action",
		"direction":    "direction",
	} {
		if val, _ := cmd.Flags().GetString(flag); val != "" {
			q.Set(param, val)
		}
	}
	limit, _ := cmd.Flags().GetInt("limit")
	q.Set("limit", strconv.Itoa(limit))

	var list auditList
	if err := newGatewayClient(gatewayAddr(cmd, v)).getJSON(cmdContext(cmd), "/api/v1/audit", q, &list); err != nil {
		return err
	}

	return render(cmd, list, func(w io.Writer) error {
		return writeAuditTable(w, list.Events)
	})
}

func writeAuditTable(w io.Writer, events []audit.Event) error {
	if len(events) == 0 {
		_, err := fmt.Fprintln(w, "No scan events recorded.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIME\tCONVERSATION\tAGENT\tDIRECTION\tACTION\tCATEGORY\tSCAN ID\tMS")
	for _, ev := range events {
		category := string(ev.Category)
		if ev.Failure != "" {
			category += " (" + ev.Failure + ")"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			ev.Timestamp.Local().Format("2006-01-02 15:04:05"),
			ev.ConversationID,
			orDash(ev.Agent),
			ev.Direction,
			ev.Action,
			category,
			orDash(ev.ScanID),
			ev.DurationMs,
		)
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
