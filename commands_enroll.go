// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/rise-fleet/rise/internal/logging"
	"github.com/rise-fleet/rise/internal/onboarding"
	"github.com/rise-fleet/rise/internal/transport"
)

// newEnrollDeviceCmd implements the device-A side of §4.8's out-of-band
// device enrollment: mint a rolling 30s code on an already-authenticated
// channel and display (and, where available, clipboard-copy) it until the
// operator cancels.
func newEnrollDeviceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enroll-device <host-id>",
		Short: "Display a rolling enrollment code a second device can use to register itself",
		Long: `Mints a 6-digit, 30-second rolling code on the host (regenerated every
29s) that a second device can supply as its onboarding password to run a
single "add-device" operation. Cancel with Ctrl-C; the remote's own ~90s
timer cleans up the code regardless (§4.8).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := svc.store.GetHost(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			sess, err := svc.manager.Connect(cmd.Context(), h, transport.AuthHint{KeyRegistered: true})
			if err != nil {
				return err
			}
			defer sess.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			fmt.Fprintln(cmd.OutOrStdout(), "enrollment code active; press Ctrl-C to cancel")
			ticker := time.NewTicker(onboarding.RollingCodeInterval)
			defer ticker.Stop()

			display := func() {
				code, err := svc.onboard.GenerateRollingCode(ctx, sess, h.ID)
				if err != nil {
					logging.Debugf("enroll-device: generate code: %v", err)
					return
				}
				fmt.Fprintf(cmd.OutOrStdout(), "code: %s (valid ~30s)\n", code)
				if err := clipboard.WriteAll(code); err != nil {
					logging.Debugf("enroll-device: clipboard unavailable: %v", err)
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "(copied to clipboard)")
				}
			}
			display()
			for {
				select {
				case <-ctx.Done():
					fmt.Fprintln(cmd.OutOrStdout(), "\ncancelled")
					return nil
				case <-ticker.C:
					display()
				}
			}
		},
	}
}

// newAddDeviceCmd implements the device-B side: authenticate once with the
// rolling code as the onboarding password and register this device's
// public key.
func newAddDeviceCmd() *cobra.Command {
	var (
		addr     string
		port     int
		username string
		code     string
	)
	cmd := &cobra.Command{
		Use:   "add-device <host-id>",
		Short: "Register this device's key against a host using a rolling enrollment code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := svc.store.GetHost(cmd.Context(), args[0])
			if err != nil {
				h.ID = args[0]
				h.Host = addr
				h.Port = port
				h.Username = username
			}
			if code == "" {
				fmt.Fprint(cmd.OutOrStdout(), "enrollment code: ")
				if _, err := fmt.Fscanln(cmd.InOrStdin(), &code); err != nil {
					return fmt.Errorf("read code: %w", err)
				}
			}
			if err := svc.onboard.AddDeviceOutOfBand(cmd.Context(), h, code); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: device registered\n", h.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "SSH address, if host-id is not already known locally")
	cmd.Flags().IntVar(&port, "port", 22, "SSH port")
	cmd.Flags().StringVar(&username, "user", "", "restricted administrative account username")
	cmd.Flags().StringVar(&code, "code", "", "rolling enrollment code; prompted for if omitted")
	return cmd
}
