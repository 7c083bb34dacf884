package apimanager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// SyncOptions controls one reconciliation run.
type SyncOptions struct {
	// Environment names the run in logs and the summary; it carries no
	// remote semantics.
	Environment string
	// ConfigPath is the API configuration document or a directory holding
	// one.
	ConfigPath string
	// Force redeploys every API regardless of comparison outcome.
	Force bool
	// DryRun reports classifications without deploying.
	DryRun bool
	// Parallel applies to deploy-all runs only; the sync path always
	// executes sequentially so progress logs follow input order.
	Parallel bool
}

// SyncManager wires the reconciliation pipeline: config load, baseline
// snapshot, per-API classification, deployment, and summary. All entities it
// produces are scoped to a single run; remote state is re-queried every run
// rather than persisted.
type SyncManager struct {
	client     APIMClient
	ref        ServiceRef
	loader     *ConfigLoader
	classifier *ChangeClassifier
	executor   *DeploymentExecutor
	deleter    *DeletionManager
	logger     zerolog.Logger
	clock      func() time.Time
}

// NewSyncManager creates the pipeline for one target service. The env mapping
// feeds placeholder substitution; confirm gates destructive runs.
func NewSyncManager(client APIMClient, ref ServiceRef, env map[string]string, confirm ConfirmFunc, logger zerolog.Logger) (*SyncManager, error) {
	if client == nil {
		return nil, errors.New("apim client (APIMClient interface) cannot be nil")
	}
	classifier, err := NewChangeClassifier(client, ref, logger)
	if err != nil {
		return nil, err
	}
	executor, err := NewDeploymentExecutor(client, ref, logger)
	if err != nil {
		return nil, err
	}
	deleter, err := NewDeletionManager(client, ref, confirm, logger)
	if err != nil {
		return nil, err
	}
	return &SyncManager{
		client:     client,
		ref:        ref,
		loader:     NewConfigLoader(env, logger),
		classifier: classifier,
		executor:   executor,
		deleter:    deleter,
		logger:     logger.With().Str("component", "SyncManager").Logger(),
		clock:      time.Now,
	}, nil
}

// Executor exposes the executor so callers can hook artifact cleanup into
// process interruption handling.
func (m *SyncManager) Executor() *DeploymentExecutor { return m.executor }

// Classifier exposes the classifier, primarily so tests can pin its clock.
func (m *SyncManager) Classifier() *ChangeClassifier { return m.classifier }

// Sync runs change-detection-driven deployment: only APIs classified as
// Create or UpdateNeeded are acted on. Classification and deployment
// interleave per API, strictly in input order.
func (m *SyncManager) Sync(ctx context.Context, opts SyncOptions) (*RunSummary, error) {
	started := m.clock()
	log := m.logger.With().Str("environment", opts.Environment).Logger()
	log.Info().Msg("Starting API sync run...")

	result, err := m.loader.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	sku, err := m.fetchBaseline(ctx, log)
	if err != nil {
		return nil, err
	}

	decisions := make([]SyncDecision, 0, len(result.Apis))
	outcomes := make([]DeploymentOutcome, 0, len(result.Apis))
	deployOpts := DeployOptions{DryRun: opts.DryRun, SKU: sku}

	for _, def := range result.Apis {
		decision, err := m.classifier.Classify(ctx, def, opts.Force)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, decision)
		if decision.Action == ActionUnchanged {
			continue
		}
		if opts.DryRun {
			outcomes = append(outcomes, DeploymentOutcome{
				ApiID:  def.ApiID,
				Status: StatusSkipped,
				Reason: fmt.Sprintf("dry-run: would %s (%s)", decision.Action, decision.Reason),
			})
			continue
		}
		outcomes = append(outcomes, m.executor.Deploy(ctx, def, deployOpts))
	}

	summary := Summarize(opts.Environment, decisions, outcomes, m.clock().Sub(started), opts.DryRun)
	log.Info().Int("total", summary.Total).Int("failed", len(summary.Failed)).Msg("Sync run complete.")
	return summary, nil
}

// DeployApis deploys every configured API without change detection. This is
// the bulk path; it supports parallel execution.
func (m *SyncManager) DeployApis(ctx context.Context, opts SyncOptions) (*RunSummary, error) {
	started := m.clock()
	log := m.logger.With().Str("environment", opts.Environment).Logger()
	log.Info().Bool("parallel", opts.Parallel).Msg("Starting API deploy run...")

	result, err := m.loader.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	sku, err := m.fetchBaseline(ctx, log)
	if err != nil {
		return nil, err
	}
	outcomes := m.executor.DeployAll(ctx, result.Apis, DeployOptions{
		DryRun:   opts.DryRun,
		Parallel: opts.Parallel,
		SKU:      sku,
	})

	summary := Summarize(opts.Environment, nil, outcomes, m.clock().Sub(started), opts.DryRun)
	log.Info().Int("total", summary.Total).Int("failed", len(summary.Failed)).Msg("Deploy run complete.")
	return summary, nil
}

// DestroyApis removes every configured API, sharing the loader and remote
// reader with the sync pipeline.
func (m *SyncManager) DestroyApis(ctx context.Context, opts SyncOptions, deleteOpts DeleteOptions) (*RunSummary, error) {
	started := m.clock()
	log := m.logger.With().Str("environment", opts.Environment).Logger()
	log.Info().Msg("Starting API destroy run...")

	result, err := m.loader.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	outcomes, err := m.deleter.DeleteAll(ctx, result.Apis, deleteOpts)
	if err != nil {
		return nil, err
	}

	summary := Summarize(opts.Environment, nil, outcomes, m.clock().Sub(started), deleteOpts.DryRun)
	log.Info().Int("total", summary.Total).Int("failed", len(summary.Failed)).Msg("Destroy run complete.")
	return summary, nil
}

// fetchBaseline takes the run's baseline snapshot and resolves the service
// SKU. A transient listing failure must not crash the run: it is reported and
// the run proceeds with an empty baseline, favoring eventual convergence over
// blocking. A run-fatal failure (unauthenticated, or the service itself
// absent) aborts instead: every subsequent call would fail the same way.
// Per-API lookups then drive classification.
func (m *SyncManager) fetchBaseline(ctx context.Context, log zerolog.Logger) (SKUTier, error) {
	deployed, err := m.client.ListApis(ctx, m.ref)
	if IsRunFatal(err) {
		log.Error().Err(err).Msg("Target service unreachable, aborting run.")
		return SKUUnknown, err
	}
	if err != nil {
		log.Warn().Err(err).Msg("Could not list deployed APIs, proceeding with empty baseline.")
	} else {
		log.Info().Int("deployed", len(deployed)).Msg("Fetched baseline snapshot of deployed APIs.")
	}

	sku, err := m.client.ServiceSKU(ctx, m.ref)
	if IsRunFatal(err) {
		log.Error().Err(err).Msg("Target service unreachable, aborting run.")
		return SKUUnknown, err
	}
	if err != nil {
		log.Warn().Err(err).Msg("Could not determine service SKU, capability restrictions not applied.")
		return SKUUnknown, nil
	}
	log.Info().Str("sku", string(sku)).Msg("Resolved target service SKU.")
	return sku, nil
}
