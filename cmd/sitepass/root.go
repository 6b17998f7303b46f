// Package main provides the sitepass CLI commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/forest6511/sitepass/internal/config"
	"github.com/forest6511/sitepass/internal/logging"
	"github.com/forest6511/sitepass/pkg/breach"
	"github.com/forest6511/sitepass/pkg/hashengine"
	"github.com/forest6511/sitepass/pkg/persist"
	"github.com/forest6511/sitepass/pkg/session"
	"github.com/forest6511/sitepass/pkg/sitestore"
)

// MasterKeyEnv lets scripts supply the master key without a prompt.
const MasterKeyEnv = "SITEPASS_MASTER_KEY"

var (
	cfgFile string
	cfg     *config.Config
	logger  = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "sitepass",
	Short: "sitepass derives per-site passwords from one master key",
	Long: `sitepass derives a distinct password for every site from a single master key.
Nothing secret is stored: only the generation settings of each site are saved.`,
	SilenceUsage: true,
	// PersistentPreRunE runs before the root command and all subcommands.
	// This loads the configuration and builds the logger.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "completion" {
			return nil
		}
		v, err := config.New(cfgFile)
		if err != nil {
			return err
		}
		if cfg, err = config.Load(v); err != nil {
			return err
		}
		if logger, err = logging.New(cfg.Log.Level, cfg.Log.Format); err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ~/.sitepass/config.yaml)")
}

// app holds what a command needs to work with the saved sites.
type app struct {
	store   *sitestore.Store
	sess    *session.Session
	closers []func() error
}

// Close releases the store and its backend.
func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("failed to close", zap.Error(err))
		}
	}
}

// openApp opens the configured backend. With watch set, the store reloads
// whenever another process changes the saved sites.
func openApp(ctx context.Context, watch bool, storeOpts ...sitestore.Option) (*app, error) {
	a := &app{}
	opts := []sitestore.Option{
		sitestore.WithStorageKey(cfg.StorageKey),
		sitestore.WithLogger(logger),
	}

	var storage persist.Storage
	switch cfg.Backend {
	case config.BackendSQLite:
		db, err := persist.OpenSQLite(filepath.Join(cfg.DataDir, persist.SQLiteFileName), persist.WithSQLiteLogger(logger))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		storage = db
		if watch {
			w, err := db.Watch(cfg.StorageKey, cfg.SQLite.PollInterval)
			if err != nil {
				a.Close()
				return nil, err
			}
			if err := w.Start(ctx); err != nil {
				a.Close()
				return nil, err
			}
			a.closers = append(a.closers, w.Close)
			opts = append(opts, sitestore.WithNotifier(w))
		}
	default:
		f, err := persist.NewFile(cfg.DataDir, persist.WithFileLogger(logger))
		if err != nil {
			return nil, err
		}
		storage = f
		if watch {
			w, err := f.Watch(cfg.StorageKey)
			if err != nil {
				return nil, err
			}
			if err := w.Start(ctx); err != nil {
				w.Close()
				return nil, err
			}
			a.closers = append(a.closers, w.Close)
			opts = append(opts, sitestore.WithNotifier(w))
		}
	}

	a.store = sitestore.New(session.NewSchema(), storage, append(opts, storeOpts...)...)

	sessOpts := []session.Option{session.WithLogger(logger)}
	if cfg.Breach.Enabled {
		checker := breach.NewPwnedClient(cfg.Breach.Timeout,
			breach.WithEndpoint(cfg.Breach.Endpoint),
			breach.WithLogger(logger))
		sessOpts = append(sessOpts, session.WithChecker(checker))
	}
	a.sess = session.New(a.store, hashengine.NewArgon2Engine(hashengine.DefaultParams()), sessOpts...)
	return a, nil
}

// readMasterKey takes the master key from MasterKeyEnv or prompts for it
// without echo. The environment variable is cleared after reading.
func readMasterKey() (string, error) {
	if key, ok := os.LookupEnv(MasterKeyEnv); ok {
		os.Unsetenv(MasterKeyEnv)
		if strings.TrimSpace(key) != "" {
			return key, nil
		}
	}
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", fmt.Errorf("no terminal to prompt for the master key: set %s", MasterKeyEnv)
	}

	fmt.Fprint(os.Stderr, "Enter master key: ")
	keyBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read master key: %w", err)
	}
	if strings.TrimSpace(string(keyBytes)) == "" {
		return "", errors.New("master key cannot be empty")
	}
	return string(keyBytes), nil
}

// unlock reads the master key into the session and warns when it is known
// to be compromised.
func unlock(ctx context.Context, sess *session.Session) error {
	key, err := readMasterKey()
	if err != nil {
		return err
	}
	res := sess.SetMasterKey(ctx, key)
	if res.Status == breach.StatusCompromised {
		fmt.Fprintf(os.Stderr, "warning: master key: %s\n", res.Message)
	}
	return nil
}
