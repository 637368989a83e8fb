// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rise-fleet/rise/internal/model"
	"github.com/rise-fleet/rise/internal/transport"
)

func newFirewallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "firewall",
		Short: "Apply, confirm, or roll back a firewall rule set (§4.7)",
	}
	cmd.AddCommand(newFirewallApplyCmd(), newFirewallConfirmCmd(), newFirewallRollbackCmd())
	return cmd
}

func newFirewallApplyCmd() *cobra.Command {
	var rulesPath string
	cmd := &cobra.Command{
		Use:   "apply <host-id>",
		Short: "Push a new rule set; it self-reverts unless confirmed within the commit window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := svc.store.GetHost(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(rulesPath)
			if err != nil {
				return fmt.Errorf("read rule set: %w", err)
			}
			var rules []model.FirewallRule
			if err := json.Unmarshal(raw, &rules); err != nil {
				return fmt.Errorf("decode rule set: %w", err)
			}

			sess, err := svc.manager.Connect(cmd.Context(), h, transport.AuthHint{KeyRegistered: true})
			if err != nil {
				return err
			}
			if err := svc.firewall.Apply(cmd.Context(), sess, h, rules); err != nil {
				return err
			}
			_ = svc.store.AppendAudit(cmd.Context(), model.AuditLogEntry{Timestamp: time.Now(), Action: "FIREWALL_APPLY", Details: fmt.Sprintf("%s: %d rule(s)", h.ID, len(rules))})
			fmt.Fprintf(cmd.OutOrStdout(), "applied; confirm within the commit window or it rolls back automatically\n")
			return nil
		},
	}
	cmd.Flags().StringVar(&rulesPath, "rules", "", "path to a JSON rule-set file")
	_ = cmd.MarkFlagRequired("rules")
	return cmd
}

func newFirewallConfirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <host-id>",
		Short: "Confirm a pending apply, cancelling its automatic rollback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := svc.store.GetHost(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			sess, err := svc.manager.Connect(cmd.Context(), h, transport.AuthHint{KeyRegistered: true})
			if err != nil {
				return err
			}
			if err := svc.firewall.Confirm(cmd.Context(), sess, h.ID); err != nil {
				if merr, ok := err.(*model.Error); ok && merr.Kind == model.KindPendingExpired {
					fmt.Fprintln(cmd.OutOrStdout(), "the pending change was already reverted; re-apply to try again")
					return nil
				}
				return err
			}
			_ = svc.store.AppendAudit(cmd.Context(), model.AuditLogEntry{Timestamp: time.Now(), Action: "FIREWALL_CONFIRM", Details: h.ID})
			fmt.Fprintln(cmd.OutOrStdout(), "confirmed")
			return nil
		},
	}
}

func newFirewallRollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <host-id>",
		Short: "Manually roll back a pending apply before the commit window elapses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := svc.store.GetHost(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			sess, err := svc.manager.Connect(cmd.Context(), h, transport.AuthHint{KeyRegistered: true})
			if err != nil {
				return err
			}
			if err := svc.firewall.Rollback(cmd.Context(), sess, h.ID); err != nil {
				return err
			}
			_ = svc.store.AppendAudit(cmd.Context(), model.AuditLogEntry{Timestamp: time.Now(), Action: "FIREWALL_ROLLBACK", Details: h.ID})
			fmt.Fprintln(cmd.OutOrStdout(), "rolled back")
			return nil
		},
	}
}
