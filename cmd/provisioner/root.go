package provisioner

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "provisioner",
	Short: "Provision private Grafana dashboard folders for newly registered users",
	Long: `provisioner receives user-registration webhooks from the identity provider and creates a
dashboard folder in Grafana that only the new user (and the platform admin) can manage.

Running without a subcommand starts the webhook server.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(provisionCmd)
	RootCmd.AddCommand(checkCmd)
}

func Cli() {
	if err := RootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
