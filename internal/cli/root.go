// Package cli provides the command-line interface for vessel-agent.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vesselhq/vessel-agent/internal/config"
	"github.com/vesselhq/vessel-agent/internal/constants"
	"github.com/vesselhq/vessel-agent/internal/logging"
	"github.com/vesselhq/vessel-agent/internal/store"
	"github.com/vesselhq/vessel-agent/internal/version"
)

var (
	// Global flags
	cfgFile    string
	apiBaseURL string
	storePath  string
	verbose    bool

	// Global logger
	logger *logging.Logger

	// Root context cancelled on SIGINT/SIGTERM
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vessel-agent",
		Short: "Vessel backup agent",
		Long: `Vessel backup agent ` + version.Version + ` - Built: ` + version.BuildTime + `
Scans designated directories, chunks and hashes files, and uploads them
to remote storage via the Vessel control plane.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultLogger()
			if verbose {
				logging.SetGlobalLevel(0) // zerolog.DebugLevel
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api-url", "", "control-plane base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "local store path (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newEnrollCmd())
	rootCmd.AddCommand(newBackupCmd())
	rootCmd.AddCommand(newDaemonCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newProvidersCmd())
	rootCmd.AddCommand(newRootsCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// Execute runs the CLI and returns a process exit code.
func Execute() int {
	rootContext, cancelFunc = signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancelFunc()

	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCodeFor(err)
	}
	return constants.ExitOK
}

// loadEnvironment opens the configuration and the store, applying flag
// overrides and any settings the control plane pushed earlier.
func loadEnvironment() (*config.Config, *store.Store, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, &configError{err}
	}
	if apiBaseURL != "" {
		cfg.APIBaseURL = apiBaseURL
	}
	if storePath != "" {
		cfg.StorePath = storePath
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.ApplyStoreSettings(st); err != nil {
		st.Close()
		return nil, nil, err
	}
	return cfg, st, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("vessel-agent %s (built %s)\n", version.Version, version.BuildTime)
		},
	}
}
