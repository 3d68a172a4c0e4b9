package provisioner

import (
	"fmt"

	"github.com/freekieb7/grafana-provisioner/internal/provision"
	"github.com/freekieb7/grafana-provisioner/internal/telemetry"
	"github.com/freekieb7/grafana-provisioner/internal/webhook"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Provision the dashboard folder for one user without going through the webhook",
	Example: `  provisioner provision --email jane@example.com
  provisioner provision --email jane@example.com --first-name Jane --last-name Doe`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return provisionCmdFunc(cmd)
	},
}

func init() {
	provisionCmd.Flags().String("email", "", "email of the registered user (required)")
	provisionCmd.Flags().String("first-name", "", "first name, used when the user has to be created")
	provisionCmd.Flags().String("last-name", "", "last name, used when the user has to be created")
	_ = provisionCmd.MarkFlagRequired("email")
}

func provisionCmdFunc(cmd *cobra.Command) error {
	ctx := cmd.Context()

	email, err := cmd.Flags().GetString("email")
	if err != nil {
		return err
	}
	firstName, _ := cmd.Flags().GetString("first-name")
	lastName, _ := cmd.Flags().GetString("last-name")

	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return err
	}
	manager := provision.NewManager(rt.logger, rt.client, webhook.NewValidator(), metrics, provision.OptionsFromConfig(rt.cfg))

	result, err := manager.Provision(ctx, &webhook.UserRegisteredEvent{
		Type: webhook.EventTypeUserRegistered,
		Event: &webhook.Event{User: &webhook.User{
			Email:     email,
			FirstName: firstName,
			LastName:  lastName,
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to provision folder for %s: %w", email, err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	return nil
}
