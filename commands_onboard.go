// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rise-fleet/rise/internal/model"
	"github.com/rise-fleet/rise/internal/transport"
)

func newOnboardCmd() *cobra.Command {
	var (
		displayName string
		addr        string
		port        int
		username    string
		mode        string
		forceRoot   bool
	)

	cmd := &cobra.Command{
		Use:   "onboard <host-id>",
		Short: "Bring a host under management",
		Long: `Probes the host over SSH, then installs, registers this device's key,
or simply attaches to an already-managed host, depending on what it finds
there (§4.8's three-branch decision tree).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h := model.Host{
				ID:           args[0],
				DisplayName:  displayName,
				Host:         addr,
				Port:         port,
				Username:     username,
				SecurityMode: model.SecurityMode(mode),
			}
			if h.DisplayName == "" {
				h.DisplayName = h.ID
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Onboarding password for %s: ", h)
			pw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}

			_, err = svc.onboard.Run(cmd.Context(), h, pw, forceRoot)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s onboarded in %s mode\n", h.ID, h.SecurityMode)
			return nil
		},
	}

	cmd.Flags().StringVar(&displayName, "name", "", "human-readable display name, defaults to the host id")
	cmd.Flags().StringVar(&addr, "addr", "", "SSH address")
	cmd.Flags().IntVar(&port, "port", 22, "SSH port")
	cmd.Flags().StringVar(&username, "user", "root", "SSH username")
	cmd.Flags().StringVar(&mode, "mode", string(model.Hybrid), "access-policy mode: permissive, hybrid, key-only")
	cmd.Flags().BoolVar(&forceRoot, "force-root-no-key", false, "apply hybrid/key-only even when the root account has no pinned key")
	_ = cmd.MarkFlagRequired("addr")
	return cmd
}

func newTrustHostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trust-host <host-id>",
		Short: "Re-run TOFU verification for an already-onboarded host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := svc.store.GetHost(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			hint := transport.AuthHint{KeyRegistered: true}
			sess, err := svc.manager.Connect(cmd.Context(), h, hint)
			if merr, ok := err.(*model.Error); ok && merr.Kind == model.KindNewHost {
				sess, err = svc.manager.AcceptAndConnect(cmd.Context(), h, hint)
			}
			if err != nil {
				return err
			}
			defer sess.Close()
			_ = svc.store.AppendAudit(cmd.Context(), model.AuditLogEntry{Timestamp: time.Now(), Action: "TRUST_HOST", Details: h.ID})
			fmt.Fprintf(cmd.OutOrStdout(), "%s trusted\n", h.ID)
			return nil
		},
	}
}

func newLangCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lang [code]",
		Short: "Show or switch the active CLI display language",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				svc.lang.SetLang(args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "active: %s\n", svc.lang.GetLang())
			if available := svc.lang.AvailableLocales(); len(available) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "bundles loaded: %v\n", available)
			}
			return nil
		},
	}
	return cmd
}

func newListHostsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-hosts",
		Short: "List every managed host",
		RunE: func(cmd *cobra.Command, args []string) error {
			hosts, err := svc.store.ListHosts(cmd.Context())
			if err != nil {
				return err
			}
			for _, h := range hosts {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-30s %s\n", h.ID, h, h.SecurityMode)
			}
			return nil
		},
	}
}

func newRotateDeviceKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-device-key",
		Short: "Generate a fresh device keypair, replacing the cached one",
		Long: `The old key remains registered on every host until each is
individually re-onboarded (run-as-add-device) with the new public key;
this command only replaces the local keystore.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc.keystore.Clear()
			if err := svc.keystore.Ensure("rise-device"); err != nil {
				return err
			}
			pub, err := svc.keystore.GetPublicKey()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "new device key: %s\n", pub)
			return nil
		},
	}
}
