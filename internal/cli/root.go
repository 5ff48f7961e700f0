// ABOUTME: Root command for smsrelay-admin, the offline directory tool
// ABOUTME: Opens the relay's SQLite database directly and edits contacts and groups

package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/2389/smsrelay/internal/config"
	"github.com/2389/smsrelay/internal/store"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	DBPath     string
	Format     string

	// Open returns the store at path. Defaults to store.NewSQLiteStore.
	Open func(path string) (store.Store, error)
}

// NewRootCommand creates the smsrelay-admin command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smsrelay-admin",
		Short: "Manage the smsrelay contact directory",
		Long: `Manage contacts, groups, thread bindings and the broadcast log of an
smsrelay database. Works against the database file directly, so the relay
does not need to be running.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default "+config.DefaultPath()+")")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "database path, overrides the config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newContactsCommand(opts))
	cmd.AddCommand(newGroupsCommand(opts))
	cmd.AddCommand(newBindingsCommand(opts))
	cmd.AddCommand(newBroadcastsCommand(opts))
	cmd.AddCommand(newSeedCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))

	return cmd
}

// openStore resolves the database path from --db, then the config file.
func (o *RootOptions) openStore() (store.Store, error) {
	path := o.DBPath
	if path == "" {
		cfg, err := o.loadConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.Database.Path
	}

	open := o.Open
	if open == nil {
		open = func(p string) (store.Store, error) { return store.NewSQLiteStore(p) }
	}
	s, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return s, nil
}

func (o *RootOptions) loadConfig() (*config.Config, error) {
	path := o.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// withStore opens the store for the duration of fn.
func (o *RootOptions) withStore(fn func(store.Store) error) error {
	s, err := o.openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}
