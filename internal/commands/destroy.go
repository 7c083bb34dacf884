package commands

import (
	"github.com/spf13/cobra"

	"github.com/illmade-knight/apim-deploy-manager/pkg/apimanager"
)

var (
	destroyForce  bool
	destroyDryRun bool
)

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Remove resources from an environment",
}

var destroyApisCmd = &cobra.Command{
	Use:   "apis <environment>",
	Short: "Delete every configured API from the service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		environment := args[0]

		manager, ctx, cleanup, err := newSyncManager(environment)
		if err != nil {
			return err
		}
		defer cleanup()

		summary, err := manager.DestroyApis(ctx, apimanager.SyncOptions{
			Environment: environment,
			ConfigPath:  environmentConfigPath(environment),
		}, apimanager.DeleteOptions{
			DryRun: destroyDryRun,
			Force:  destroyForce,
		})
		if err != nil {
			return err
		}
		return finishRun(summary)
	},
}

func init() {
	destroyApisCmd.Flags().BoolVar(&destroyForce, "force", false, "skip the confirmation prompt")
	destroyApisCmd.Flags().BoolVar(&destroyDryRun, "dry-run", false, "report intended deletions without deleting")
	destroyCmd.AddCommand(destroyApisCmd)
}
