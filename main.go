// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

// Command-line entrypoint for RISE.
//
// Usage:
//
//	go run . [command] [flags]
//	./rise [command] [flags]
//
// See --help for the full command tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	clog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rise-fleet/rise/internal/cache"
	"github.com/rise-fleet/rise/internal/config"
	"github.com/rise-fleet/rise/internal/events"
	"github.com/rise-fleet/rise/internal/firewall"
	"github.com/rise-fleet/rise/internal/i18n"
	"github.com/rise-fleet/rise/internal/keystore"
	"github.com/rise-fleet/rise/internal/knownhosts"
	"github.com/rise-fleet/rise/internal/logging"
	"github.com/rise-fleet/rise/internal/model"
	"github.com/rise-fleet/rise/internal/onboarding"
	"github.com/rise-fleet/rise/internal/scheduler"
	"github.com/rise-fleet/rise/internal/state"
	"github.com/rise-fleet/rise/internal/store"
	"github.com/rise-fleet/rise/internal/tofu"
	"github.com/rise-fleet/rise/internal/transport"
	"github.com/rise-fleet/rise/internal/updater"
)

var version = "dev"   // set by the linker
var gitCommit = "dev" // set at build time with the short commit SHA

var cfgFile string
var verbose bool
var showVersionFlag bool

// services bundles the composition root's wired components, built once in
// setupDefaultServices and shared by every subcommand.
type services struct {
	cfg         config.Config
	store       *store.Store
	knownHosts  *knownhosts.Store
	keystore    *keystore.Store
	verifier    *tofu.Verifier
	passwords   *state.PasswordCache
	manager     *transport.Manager
	exec        *transport.Executor
	cache       *cache.Engine
	pusher      *updater.Pusher
	firewall    *firewall.Coordinator
	onboard     *onboarding.Coordinator
	sink        events.Sink
	lang        *i18n.Manager
}

var svc services

func setupDefaultServices(cmd *cobra.Command, args []string) error {
	if showVersionFlag {
		fmt.Printf("rise version %s (%s)\n", version, gitCommit)
		os.Exit(0)
	}
	if verbose {
		logging.SetDebug(true)
	}

	defaults := map[string]any{
		"database.type":         "sqlite",
		"database.dsn":          "./rise.db",
		"language":              "en",
		"auto_update_programs":  false,
		"sync_interval":         scheduler.DefaultInterval,
	}

	var optionalPath *string
	if cfgFile != "" {
		optionalPath = &cfgFile
	}
	cfg, err := config.LoadConfig[config.Config](cmd, defaults, optionalPath)
	if errors.As(err, &viper.ConfigFileNotFoundError{}) {
		if writeErr := config.WriteConfigFile(&cfg, false); writeErr != nil {
			logging.Warnf("could not write default config file: %v", writeErr)
		}
	} else if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc.cfg = cfg

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.Database.Type, cfg.Database.Dsn)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	svc.store = st

	cfgPath, err := config.GetConfigPath(false)
	if err != nil {
		return err
	}
	khPath := filepath.Join(filepath.Dir(cfgPath), "known_hosts.json")
	kh, err := knownhosts.Open(khPath)
	if err != nil {
		return fmt.Errorf("open known-hosts store: %w", err)
	}
	svc.knownHosts = kh

	svc.verifier = tofu.NewVerifier(kh)

	keystoreDir := cfg.CacheRoot
	if keystoreDir == "" {
		userCfg, err := os.UserConfigDir()
		if err != nil {
			return err
		}
		keystoreDir = filepath.Join(userCfg, "rise")
	}
	svc.keystore = keystore.New(filepath.Join(keystoreDir, "keys"))

	svc.passwords = state.NewPasswordCache()
	svc.sink = events.SinkFunc(func(e any) { logging.Debugf("event: %+v", e) })

	svc.manager = transport.NewManager(svc.keystore, svc.verifier, svc.passwords.Get)
	svc.exec = transport.NewExecutor(svc.manager)

	cacheRoot := cfg.CacheRoot
	if cacheRoot == "" {
		cacheRoot = "./rise-cache"
	}
	svc.cache = cache.New(cacheRoot, cfg.ContentSourceURL, svc.sink)

	svc.pusher = updater.NewPusher(svc.manager, svc.sink)
	svc.firewall = firewall.NewCoordinator(svc.exec, svc.sink)
	svc.onboard = onboarding.NewCoordinator(svc.manager, svc.exec, svc.keystore, svc.pusher, svc.cache, svc.store, svc.passwords, svc.sink)

	svc.lang = i18n.NewManager()
	if bundle, err := svc.cache.Localize(cfg.Language); err == nil {
		if err := svc.lang.LoadBundle(bundle); err != nil {
			logging.Debugf("load locale bundle %q: %v", cfg.Language, err)
		}
	}
	svc.lang.SetLang(cfg.Language)

	return nil
}

var rootCmd = &cobra.Command{
	Use:   "rise",
	Short: "RISE manages a fleet of Debian hosts over SSH",
	Long: `RISE is a fleet-management control plane that onboards, updates, and
audits remote Debian hosts by driving six administrative shell programs
over SSH: onboard, setup-env, firewall, and their companions.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupDefaultServices,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to rise.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&showVersionFlag, "version", "V", false, "print version and exit")

	rootCmd.AddCommand(
		newOnboardCmd(),
		newTrustHostCmd(),
		newListHostsCmd(),
		newRotateDeviceKeyCmd(),
		newFirewallCmd(),
		newSyncCmd(),
		newServeUpdatesCmd(),
		newEnrollDeviceCmd(),
		newAddDeviceCmd(),
		newBackupCmd(),
		newRestoreCmd(),
		newRemoveHostCmd(),
		newLangCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		var merr *model.Error
		if errors.As(err, &merr) && merr.Warning() {
			clog.Warnf("rise: %v", merr)
			return
		}
		clog.Errorf("rise: %v", err)
		os.Exit(1)
	}
}
