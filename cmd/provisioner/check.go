package provisioner

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify that the configured credential is accepted by Grafana",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		rt, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer rt.Close(ctx)

		org, err := rt.client.CurrentOrg(ctx)
		if err != nil {
			return fmt.Errorf("grafana rejected %s: %w", rt.credential, err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Connected to %s as %s (org %d %q)\n", rt.cfg.Grafana.URL, rt.credential, org.ID, org.Name)
		return nil
	},
}
