// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rise-fleet/rise/internal/store"
)

func newBackupCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export host entries, known-host pins, and the audit log to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := svc.store.ExportDataForBackup(cmd.Context(), svc.knownHosts.All())
			if err != nil {
				return err
			}
			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("create %s: %w", outPath, err)
			}
			defer f.Close()
			if err := store.WriteBackup(data, f); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote backup for %d host(s) to %s\n", len(data.Hosts), outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "rise-backup.zst", "output file path")
	return cmd
}

func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Restore host entries, known-host pins, and the audit log from a backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()
			data, err := store.ReadBackup(f)
			if err != nil {
				return err
			}
			if err := svc.store.ImportDataFromBackup(cmd.Context(), data); err != nil {
				return err
			}
			for _, rec := range data.KnownHosts {
				if err := svc.knownHosts.AddHost(rec.Host, rec.Port, rec.Fingerprint, rec.Algorithm); err != nil {
					return fmt.Errorf("restore known-host pin for %s: %w", rec.Host, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d host(s), %d known-host pin(s)\n", len(data.Hosts), len(data.KnownHosts))
			return nil
		},
	}
	return cmd
}

func newRemoveHostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-host <host-id>",
		Short: "Forget a host entry (leaves its known-host pin and remote state untouched)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := svc.store.DeleteHost(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s removed\n", args[0])
			return nil
		},
	}
}
