// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newChatCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message...]",
		Short: "Chat with the assistant through the gateway",
		Long: "Send a message to the running gateway and stream the scanned response. " +
			"Without a message, reads one message per line from stdin until EOF or \"exit\".",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, v, args)
		},
	}

	addAddressFlag(cmd)
	cmd.Flags().String("conversation", "", "continue an existing conversation")

	return cmd
}

func runChat(cmd *cobra.Command, v *viper.Viper, args []string) error {
	gw := newGatewayClient(gatewayAddr(cmd, v))
	conversation, _ := cmd.Flags().GetString("conversation")
	ctx := cmdContext(cmd)
	out := cmd.OutOrStdout()

	if len(args) > 0 {
		_, err := sendTurn(ctx, gw, out, conversation, strings.Join(args, " "))
		return err
	}

	sc := bufio.NewScanner(cmd.InOrStdin())
	for {
		_, _ = fmt.Fprint(out, "> ")
		if !sc.Scan() {
			_, _ = fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		id, err := sendTurn(ctx, gw, out, conversation, line)
		if err != nil {
			return err
		}
		conversation = id
	}
}

// sendTurn streams one turn to out and returns the conversation id the
// gateway used.
func sendTurn(ctx context.Context, gw *gatewayClient, out io.Writer, conversation, message string) (string, error) {
	body := map[string]string{"message": message}
	if conversation != "" {
		body["conversation_id"] = conversation
	}

	var id string
	err := gw.streamChat(ctx, body, func(ev sseEvent) error {
		switch ev.Event {
		case "text_delta":
			var d struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(ev.Data, &d); err != nil {
				return aegiserr.Errorf(aegiserr.CodeCLIResponseInvalid, "decoding text_delta: %w", err)
			}
			_, err := io.WriteString(out, d.Text)
			return err
		case "done":
			var d struct {
				ConversationID string `json:"conversation_id"`
			}
			_ = json.Unmarshal(ev.Data, &d)
			id = d.ConversationID
			_, err := fmt.Fprintln(out)
			return err
		case "error":
			var d struct {
				Error string `json:"error"`
				Code  string `json:"code"`
			}
			_ = json.Unmarshal(ev.Data, &d)
			_, _ = fmt.Fprintln(out)
			return aegiserr.Errorf(aegiserr.CodeCLIRequestFailure, "chat failed: %s (%s)", d.Error, d.Code)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if id == "" {
		id = conversation
	}
	return id, nil
}
