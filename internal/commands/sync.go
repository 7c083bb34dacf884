package commands

import (
	"github.com/spf13/cobra"

	"github.com/illmade-knight/apim-deploy-manager/pkg/apimanager"
)

var (
	syncForce    bool
	syncForceAll bool
	syncDryRun   bool
)

var syncCmd = &cobra.Command{
	Use:   "sync <environment>",
	Short: "Deploy only the APIs whose configuration or spec changed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		environment := args[0]

		manager, ctx, cleanup, err := newSyncManager(environment)
		if err != nil {
			return err
		}
		defer cleanup()

		summary, err := manager.Sync(ctx, apimanager.SyncOptions{
			Environment: environment,
			ConfigPath:  environmentConfigPath(environment),
			Force:       syncForce || syncForceAll,
			DryRun:      syncDryRun,
		})
		if err != nil {
			return err
		}
		return finishRun(summary)
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "redeploy every API regardless of detected changes")
	syncCmd.Flags().BoolVar(&syncForceAll, "force-all", false, "alias for --force")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "report classifications without deploying")
}
