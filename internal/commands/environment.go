package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/illmade-knight/apim-deploy-manager/pkg/apimanager"
	"github.com/illmade-knight/apim-deploy-manager/pkg/provision"
)

var envForce bool

var environmentCmd = &cobra.Command{
	Use:   "environment",
	Short: "Provision or tear down the APIM environment itself",
}

var environmentApplyCmd = &cobra.Command{
	Use:   "apply <environment>",
	Short: "Create or update the environment's network and APIM service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provisioner, params, ctx, stop, err := newProvisioner(args[0])
		if err != nil {
			return err
		}
		defer stop()

		result, err := provisioner.Apply(ctx, params)
		if err != nil {
			return err
		}
		fmt.Printf("Environment '%s' provisioned.\nservice: %s\nnetwork: %s\n",
			args[0], result.ServiceResourceID, result.NetworkResourceID)
		return nil
	},
}

var environmentDestroyCmd = &cobra.Command{
	Use:   "destroy <environment>",
	Short: "Delete the environment's resource group and everything in it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provisioner, params, ctx, stop, err := newProvisioner(args[0])
		if err != nil {
			return err
		}
		defer stop()

		if !envForce {
			prompt := fmt.Sprintf("Destroy resource group '%s' and every resource in it?", params.ResourceGroup)
			if !apimanager.StdinConfirm(prompt) {
				return fmt.Errorf("environment destroy aborted by operator")
			}
		}
		if err := provisioner.Destroy(ctx, params); err != nil {
			return err
		}
		fmt.Printf("Environment '%s' destroyed.\n", args[0])
		return nil
	},
}

func init() {
	environmentDestroyCmd.Flags().BoolVar(&envForce, "force", false, "skip the confirmation prompt")
	environmentCmd.AddCommand(environmentApplyCmd)
	environmentCmd.AddCommand(environmentDestroyCmd)
	rootCmd.AddCommand(environmentCmd)
}

// newProvisioner loads the environment's parameter document and wires the ARM
// provisioner, returning an interrupt-cancelled context.
func newProvisioner(environment string) (provision.Provisioner, provision.EnvironmentParams, context.Context, func(), error) {
	logger := newLogger()

	subscriptionID := viper.GetString("subscription_id")
	if subscriptionID == "" {
		return nil, provision.EnvironmentParams{}, nil, nil, fmt.Errorf("target subscription not configured: set APIM_SUBSCRIPTION_ID")
	}

	params, err := provision.LoadParams(filepath.Join(configDir, environment, "environment.yaml"))
	if err != nil {
		return nil, provision.EnvironmentParams{}, nil, nil, err
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, provision.EnvironmentParams{}, nil, nil, fmt.Errorf("failed to acquire Azure credentials: %w", err)
	}
	provisioner, err := provision.NewARMProvisioner(subscriptionID, cred, logger)
	if err != nil {
		return nil, provision.EnvironmentParams{}, nil, nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return provisioner, params, ctx, stop, nil
}
