package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vesselhq/vessel-agent/internal/agent"
	"github.com/vesselhq/vessel-agent/internal/api"
)

func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Run a single backup cycle",
		Long: `Backup scans every enabled backup root, uploads new and changed files,
and resumes any interrupted multipart uploads. Exits when the cycle
finishes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := loadEnvironment()
			if err != nil {
				return err
			}
			defer st.Close()

			a, err := agent.New(cfg, st, logger)
			if err != nil {
				return err
			}

			if err := a.RunOnce(rootContext); err != nil {
				return err
			}
			fmt.Println("Backup cycle complete.")
			return nil
		},
	}
}

func newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the agent as a long-lived daemon",
		Long: `Daemon runs continuous backup cycles with periodic heartbeats and
status pushes. Stops cleanly on SIGINT/SIGTERM; interrupted uploads
resume on the next start.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := loadEnvironment()
			if err != nil {
				return err
			}
			defer st.Close()

			a, err := agent.New(cfg, st, logger)
			if err != nil {
				return err
			}

			client, err := api.NewClient(cfg, st, logger)
			if err != nil {
				return err
			}
			if !client.HasClientToken() {
				client.Close()
				return api.ErrEnrollmentRequired
			}
			client.Close()

			return a.Run(rootContext)
		},
	}
}
