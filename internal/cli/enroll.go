package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vesselhq/vessel-agent/internal/api"
	"github.com/vesselhq/vessel-agent/internal/constants"
)

func newEnrollCmd() *cobra.Command {
	var deploymentKey string

	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Enroll this agent with the control plane",
		Long: `Enroll registers the agent using a one-shot deployment key and stores
the issued client token locally. Safe to repeat; a server that reports the
agent as already installed leaves existing credentials in place.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := loadEnvironment()
			if err != nil {
				return err
			}
			defer st.Close()

			if deploymentKey != "" {
				if err := st.SetSetting(constants.SettingDeploymentKey, deploymentKey); err != nil {
					return err
				}
			}

			client, err := api.NewClient(cfg, st, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.InstallClient(); err != nil {
				return err
			}
			fmt.Println("Enrollment complete.")
			return nil
		},
	}

	cmd.Flags().StringVar(&deploymentKey, "deployment-key", "", "deployment key issued by the control plane")
	return cmd
}
