package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// defaultAdminPassword gates the delete-all operation when no password
// is configured. Shared-cart access itself is intentionally open.
const defaultAdminPassword = "Lunchbox"

type Config struct {
	adminPassword string
	bind          string
	dataDir       string
	databaseURL   string
	debounce      time.Duration
	heartbeat     time.Duration
	port          int
	prefix        string
	profile       bool
	store         string
	storePath     string
	tlsCert       string
	tlsKey        string
	verbose       bool
	version       bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.heartbeat <= 0 {
		return fmt.Errorf("invalid heartbeat interval: %s", c.heartbeat)
	}
	if c.debounce < 0 {
		return fmt.Errorf("invalid debounce window: %s", c.debounce)
	}

	switch c.store {
	case "memory", "file", "sqlite":
	case "postgres":
		if c.databaseURL == "" {
			return errors.New("--store postgres requires --database-url")
		}
	default:
		return fmt.Errorf("invalid store (must be one of memory, file, sqlite, postgres): %s", c.store)
	}

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// adminSecret returns the configured delete-all password, falling back
// to the documented default when none is set.
func (c *Config) adminSecret() string {
	if c.adminPassword == "" {
		return defaultAdminPassword
	}
	return c.adminPassword
}

// selectionsPath derives the on-disk location for the file and sqlite
// backends when --store-path is not given.
func (c *Config) selectionsPath() string {
	if c.storePath != "" {
		return c.storePath
	}

	switch c.store {
	case "sqlite":
		return filepath.Join(c.dataDir, "selections.db")
	default:
		return filepath.Join(c.dataDir, "selections.json")
	}
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("LUNCHBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "lunchbox...",
		Short:         "A group food-ordering webapp with a real-time shared cart.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVar(&cfg.adminPassword, "admin-password", "", "password gating the delete-all operation, fixed fallback \"Lunchbox\" (env: LUNCHBOX_ADMIN_PASSWORD)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: LUNCHBOX_BIND)")
	fs.StringVarP(&cfg.dataDir, "data-dir", "d", "data", "directory holding menu.json and per-eatery menu files (env: LUNCHBOX_DATA_DIR)")
	fs.StringVar(&cfg.databaseURL, "database-url", "", "postgres DSN for --store postgres (env: LUNCHBOX_DATABASE_URL)")
	fs.DurationVar(&cfg.debounce, "debounce", 0, "quiet window for coalescing push notifications, 0 to disable (env: LUNCHBOX_DEBOUNCE)")
	fs.DurationVar(&cfg.heartbeat, "heartbeat", 30*time.Second, "keep-alive interval for push connections (env: LUNCHBOX_HEARTBEAT)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: LUNCHBOX_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: LUNCHBOX_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: LUNCHBOX_PROFILE)")
	fs.StringVar(&cfg.store, "store", "file", "selection store backend: memory, file, sqlite, or postgres (env: LUNCHBOX_STORE)")
	fs.StringVar(&cfg.storePath, "store-path", "", "path for the file/sqlite store, defaults into the data directory (env: LUNCHBOX_STORE_PATH)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: LUNCHBOX_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: LUNCHBOX_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: LUNCHBOX_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: LUNCHBOX_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("lunchbox v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
