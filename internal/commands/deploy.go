package commands

import (
	"github.com/spf13/cobra"

	"github.com/illmade-knight/apim-deploy-manager/pkg/apimanager"
)

var (
	deployParallel bool
	deployDryRun   bool
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy resources to an environment",
}

var deployApisCmd = &cobra.Command{
	Use:   "apis <environment>",
	Short: "Deploy every configured API, without change detection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		environment := args[0]

		manager, ctx, cleanup, err := newSyncManager(environment)
		if err != nil {
			return err
		}
		defer cleanup()

		summary, err := manager.DeployApis(ctx, apimanager.SyncOptions{
			Environment: environment,
			ConfigPath:  environmentConfigPath(environment),
			DryRun:      deployDryRun,
			Parallel:    deployParallel,
		})
		if err != nil {
			return err
		}
		return finishRun(summary)
	},
}

func init() {
	deployApisCmd.Flags().BoolVar(&deployParallel, "parallel", false, "deploy all APIs concurrently")
	deployApisCmd.Flags().BoolVar(&deployDryRun, "dry-run", false, "validate API definitions and spec files without deploying")
	deployCmd.AddCommand(deployApisCmd)
}
