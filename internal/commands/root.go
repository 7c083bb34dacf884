package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/illmade-knight/apim-deploy-manager/pkg/apimanager"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
)

var (
	configDir string
	verbose   bool
	debug     bool
)

var rootCmd = &cobra.Command{
	Use:   "apimctl",
	Short: "Deploy and reconcile Azure API Management environments",
	Long: `apimctl drives declarative deployment of Azure API Management:
it loads a desired set of API definitions, compares each against the
deployed state, and only redeploys what changed.

Target service coordinates come from config or the environment:
APIM_SUBSCRIPTION_ID, APIM_RESOURCE_GROUP, APIM_SERVICE_NAME.`,
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initViper)

	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "config", "directory holding per-environment API configuration")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(versionCmd)
}

func initViper() {
	viper.SetEnvPrefix("APIM")
	viper.AutomaticEnv()
}

func newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.InfoLevel
	}
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

// serviceRef resolves the target service coordinates from viper-bound
// environment or config values.
func serviceRef() (apimanager.ServiceRef, error) {
	ref := apimanager.ServiceRef{
		SubscriptionID: viper.GetString("subscription_id"),
		ResourceGroup:  viper.GetString("resource_group"),
		ServiceName:    viper.GetString("service_name"),
	}
	if ref.SubscriptionID == "" || ref.ResourceGroup == "" || ref.ServiceName == "" {
		return ref, fmt.Errorf("target service not configured: set APIM_SUBSCRIPTION_ID, APIM_RESOURCE_GROUP and APIM_SERVICE_NAME")
	}
	return ref, nil
}

// environmentConfigPath locates the API configuration document for an
// environment. The loader handles document auto-discovery inside the
// directory.
func environmentConfigPath(environment string) string {
	return filepath.Join(configDir, environment)
}

// newSyncManager wires the full pipeline for one run and returns a context
// that is cancelled on interrupt, plus a cleanup func the caller must defer.
func newSyncManager(environment string) (*apimanager.SyncManager, context.Context, func(), error) {
	logger := newLogger()

	ref, err := serviceRef()
	if err != nil {
		return nil, nil, nil, err
	}

	client, err := apimanager.CreateAzureAPIMClient(ref.SubscriptionID, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create APIM client: %w", err)
	}

	manager, err := apimanager.NewSyncManager(client, ref, apimanager.EnvironMap(os.Environ()), apimanager.StdinConfirm, logger)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cleanup := func() {
		// Interrupted runs still sweep temporary deployment manifests.
		manager.Executor().CleanupArtifacts()
		stop()
		_ = client.Close()
	}
	return manager, ctx, cleanup, nil
}

// finishRun renders the summary and converts it into the process exit status.
func finishRun(summary *apimanager.RunSummary) error {
	fmt.Print(summary.Render())
	if summary.ExitCode() != 0 {
		return fmt.Errorf("%d API operation(s) failed", len(summary.Failed))
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("apimctl %s (%s)\n", Version, GitCommit)
	},
}
