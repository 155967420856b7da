package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jmcleod/storefront/storefront"
	"github.com/jmcleod/storefront/tokenstore/bbolt"
)

// Version is the CLI version, overridable at link time.
var Version = "dev"

var (
	apiURL  string
	dataDir string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "storefront",
	Short: "Storefront is a command-line client for the storefront API",
	Long: `A command-line storefront client: sign in, browse the catalog, and manage
your cart. The session token is kept locally; the cart always lives on the
server and is re-fetched once a session is ready.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	defaultURL := os.Getenv("STOREFRONT_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "Storefront API base URL (env: STOREFRONT_API_URL)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDataDir(), "Directory for the local session database")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".storefront"
	}
	return filepath.Join(home, ".storefront")
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openStorefront assembles the client core against the configured API
// origin, with the session token persisted in a bbolt database under the
// data directory. The returned cleanup closes the database.
func openStorefront() (*storefront.Storefront, func(), error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := bbolt.NewStoreFromFile(filepath.Join(dataDir, "session.db"), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session store: %w", err)
	}
	sf := storefront.New(apiURL, store, storefront.WithLogger(newLogger()))
	return sf, func() { store.Close() }, nil
}
