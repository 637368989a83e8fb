// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rise-fleet/rise/internal/logging"
	"github.com/rise-fleet/rise/internal/scheduler"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch the manifest once and cache any changed artifacts (§4.5)",
		RunE: func(cmd *cobra.Command, args []string) error {
			changed, err := svc.cache.SyncChanges(cmd.Context())
			if err != nil {
				return err
			}
			if len(changed) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "already up to date")
				return nil
			}
			for _, entry := range changed {
				fmt.Fprintf(cmd.OutOrStdout(), "updated %s to %s\n", entry.Name, entry.Version)
			}
			return nil
		},
	}
}

func newServeUpdatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve-updates",
		Short: "Run the background resync/notify/push loop until interrupted (§4.10)",
		RunE: func(cmd *cobra.Command, args []string) error {
			interval := svc.cfg.SyncInterval
			if interval <= 0 {
				interval = scheduler.DefaultInterval
			}
			sched := scheduler.New(svc.cache, svc.pusher, svc.manager, svc.store, func() bool { return svc.cfg.AutoUpdatePrograms }, interval, svc.sink)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			sched.Start(ctx)
			logging.Infof("serve-updates: running, interval %s", interval)
			<-ctx.Done()
			sched.Stop()
			return nil
		},
	}
}
