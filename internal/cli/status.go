package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vesselhq/vessel-agent/internal/api"
	"github.com/vesselhq/vessel-agent/internal/constants"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show local agent state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := loadEnvironment()
			if err != nil {
				return err
			}
			defer st.Close()

			token, _, err := st.GetSetting(constants.SettingClientToken)
			if err != nil {
				return err
			}
			userID, _, err := st.GetSetting(constants.SettingUserID)
			if err != nil {
				return err
			}
			roots, err := st.EnabledBackupRoots()
			if err != nil {
				return err
			}
			providers, err := st.ProvidersByPriority()
			if err != nil {
				return err
			}

			enrolled := "no"
			if token != "" {
				enrolled = "yes (user " + userID + ")"
			}
			fmt.Printf("Control plane:  %s\n", cfg.APIBaseURL)
			fmt.Printf("Store:          %s\n", cfg.StorePath)
			fmt.Printf("Enrolled:       %s\n", enrolled)
			fmt.Printf("Chunk size:     %d bytes\n", cfg.ChunkSize)
			fmt.Printf("Backup roots:   %d\n", len(roots))
			fmt.Printf("Providers:      %d\n", len(providers))
			return nil
		},
	}
}

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List known storage providers by priority",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := loadEnvironment()
			if err != nil {
				return err
			}
			defer st.Close()

			client, err := api.NewClient(cfg, st, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			recs, err := st.ProvidersByPriority()
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				return api.ErrNoProviders
			}

			active, err := client.GetStorageProvider()
			if err != nil && err != api.ErrNoProviders {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tPRIORITY\tENABLED\tACTIVE")
			for _, rec := range recs {
				mark := ""
				if active != nil && active.ID == rec.ID {
					mark = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\n", rec.ID, rec.Type, rec.Priority, rec.Enabled, mark)
			}
			return w.Flush()
		},
	}
}

func newRootsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roots",
		Short: "Manage backup roots",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <path>",
		Short: "Designate a directory for protection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := loadEnvironment()
			if err != nil {
				return err
			}
			defer st.Close()

			root, err := st.AddBackupRoot(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Added backup root %d: %s\n", root.ID, root.Path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List enabled backup roots",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := loadEnvironment()
			if err != nil {
				return err
			}
			defer st.Close()

			roots, err := st.EnabledBackupRoots()
			if err != nil {
				return err
			}
			for _, root := range roots {
				fmt.Printf("%d\t%s\n", root.ID, root.Path)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <path>",
		Short: "Stop protecting a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := loadEnvironment()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.DisableBackupRoot(args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed backup root: %s\n", args[0])
			return nil
		},
	})

	return cmd
}
