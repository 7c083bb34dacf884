package apimanager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// remoteCallTimeout bounds every create-or-update call. A timeout surfaces as
// a Failed outcome for that API only.
const remoteCallTimeout = 90 * time.Second

// DeployOptions controls one executor run.
type DeployOptions struct {
	// DryRun validates preconditions and logs the intended action without
	// issuing any remote mutation.
	DryRun bool
	// Parallel fires all deployments concurrently and joins on completion.
	// The sync pipeline always runs sequentially for deterministic logs.
	Parallel bool
	// SKU is the target service tier, used to apply platform capability
	// restrictions. SKUUnknown applies none.
	SKU SKUTier
}

// DeploymentExecutor performs idempotent create-or-update calls for APIs that
// were classified as needing action. Failures never propagate past its
// boundary; every path returns a DeploymentOutcome.
type DeploymentExecutor struct {
	client      APIMClient
	ref         ServiceRef
	logger      zerolog.Logger
	artifactDir string

	mu        sync.Mutex
	artifacts map[string]struct{}
}

// NewDeploymentExecutor creates an executor targeting the given service.
func NewDeploymentExecutor(client APIMClient, ref ServiceRef, logger zerolog.Logger) (*DeploymentExecutor, error) {
	if client == nil {
		return nil, errors.New("apim client (APIMClient interface) cannot be nil")
	}
	return &DeploymentExecutor{
		client:      client,
		ref:         ref,
		logger:      logger.With().Str("component", "DeploymentExecutor").Logger(),
		artifactDir: os.TempDir(),
		artifacts:   make(map[string]struct{}),
	}, nil
}

// DeployAll processes the definitions either sequentially in input order or
// concurrently with a join barrier. A failure for one API never blocks the
// others; aggregation is bucketed by outcome, not by position.
func (e *DeploymentExecutor) DeployAll(ctx context.Context, defs []ApiDefinition, opts DeployOptions) []DeploymentOutcome {
	if !opts.Parallel {
		outcomes := make([]DeploymentOutcome, 0, len(defs))
		for _, def := range defs {
			outcomes = append(outcomes, e.Deploy(ctx, def, opts))
		}
		return outcomes
	}

	var wg sync.WaitGroup
	outcomeChan := make(chan DeploymentOutcome, len(defs))
	for _, def := range defs {
		wg.Add(1)
		go func(d ApiDefinition) {
			defer wg.Done()
			outcomeChan <- e.Deploy(ctx, d, opts)
		}(def)
	}
	wg.Wait()
	close(outcomeChan)

	outcomes := make([]DeploymentOutcome, 0, len(defs))
	for outcome := range outcomeChan {
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// Deploy performs one create-or-update. Preconditions are checked before any
// remote call is made.
func (e *DeploymentExecutor) Deploy(ctx context.Context, def ApiDefinition, opts DeployOptions) (outcome DeploymentOutcome) {
	log := e.logger.With().Str("api", def.ApiID).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Deployment panicked.")
			outcome = DeploymentOutcome{
				ApiID:  def.ApiID,
				Status: StatusFailed,
				Err:    fmt.Errorf("deployment of '%s' panicked: %v", def.ApiID, r),
			}
		}
	}()

	specValue, err := e.resolveSpec(def)
	if err != nil {
		log.Error().Err(err).Msg("Spec document is not readable, skipping remote call.")
		return DeploymentOutcome{ApiID: def.ApiID, Status: StatusFailed, Reason: "spec not found", Err: err}
	}

	params := e.buildParams(def, specValue, opts, log)

	if opts.DryRun {
		log.Info().Str("path", def.Path).Msg("Dry run: validation passed, no remote call issued.")
		return DeploymentOutcome{ApiID: def.ApiID, Status: StatusSkipped, Reason: "dry-run: validation passed"}
	}

	e.checkAssociations(ctx, params, log)

	manifestPath, err := e.writeManifest(params)
	if err != nil {
		// The manifest is an audit artifact; deployment proceeds without it.
		log.Warn().Err(err).Msg("Could not write deployment manifest.")
	} else {
		defer e.removeManifest(manifestPath)
	}

	callCtx, cancel := context.WithTimeout(ctx, remoteCallTimeout)
	defer cancel()

	log.Info().Str("display_name", params.DisplayName).Str("path", params.Path).Msg("Deploying API...")
	if err := e.client.CreateOrUpdateApi(callCtx, e.ref, params); err != nil {
		log.Error().Err(err).Msg("Deployment failed.")
		return DeploymentOutcome{ApiID: def.ApiID, Status: StatusFailed, Reason: "create-or-update failed", Err: err}
	}

	log.Info().Msg("API deployed successfully.")
	return DeploymentOutcome{ApiID: def.ApiID, Status: StatusDeployed}
}

// CleanupArtifacts removes any manifests still on disk. Called on process
// interruption so in-flight deployments do not leak temporary files.
func (e *DeploymentExecutor) CleanupArtifacts() {
	e.mu.Lock()
	paths := make([]string, 0, len(e.artifacts))
	for p := range e.artifacts {
		paths = append(paths, p)
	}
	e.mu.Unlock()

	for _, p := range paths {
		e.removeManifest(p)
	}
}

// resolveSpec returns the value to send: link formats pass the reference
// through, inline formats require a readable local document.
func (e *DeploymentExecutor) resolveSpec(def ApiDefinition) (string, error) {
	if def.Format.IsLink() {
		return def.SpecPath, nil
	}
	content, err := os.ReadFile(def.SpecPath)
	if err != nil {
		return "", fmt.Errorf("spec document '%s' is not readable: %w", def.SpecPath, err)
	}
	return string(content), nil
}

// buildParams merges the definition into the typed parameter set, applying
// platform capability restrictions.
func (e *DeploymentExecutor) buildParams(def ApiDefinition, specValue string, opts DeployOptions, log zerolog.Logger) ApiDeploymentParams {
	params := ApiDeploymentParams{
		ApiID:                def.ApiID,
		DisplayName:          def.DisplayName,
		Path:                 def.Path,
		Format:               def.Format,
		ServiceURL:           def.ServiceURL,
		Protocols:            def.Protocols,
		SubscriptionRequired: def.SubscriptionRequired,
		ProductIDs:           def.ProductIDs,
		GatewayNames:         def.GatewayNames,
		Tags:                 def.Tags,
		ApiType:              def.ApiType,
		SpecValue:            specValue,
		Policies:             def.Policies,
	}

	// V2 tiers do not support self-hosted gateway association at all. This
	// is a platform capability constraint, not a user error, so the
	// association is dropped rather than failing the API.
	if opts.SKU.IsV2() && len(params.GatewayNames) > 0 {
		log.Warn().
			Str("sku", string(opts.SKU)).
			Strs("requested_gateways", params.GatewayNames).
			Msg("Target SKU is a V2 tier: self-hosted gateway association is unsupported, overriding gateway list to empty.")
		params.GatewayNames = []string{}
	}

	return params
}

// checkAssociations best-effort verifies referenced gateways and products.
// A missing reference is a warning, not an abort: association failures are
// reported by the platform during deployment anyway.
func (e *DeploymentExecutor) checkAssociations(ctx context.Context, params ApiDeploymentParams, log zerolog.Logger) {
	for _, gateway := range params.GatewayNames {
		if gateway == ManagedGateway {
			continue
		}
		exists, err := e.client.GatewayExists(ctx, e.ref, gateway)
		if err != nil {
			log.Warn().Err(err).Str("gateway", gateway).Msg("Could not verify gateway existence.")
			continue
		}
		if !exists {
			log.Warn().Str("gateway", gateway).Msg("Referenced gateway does not exist on the service.")
		}
	}
	for _, product := range params.ProductIDs {
		exists, err := e.client.ProductExists(ctx, e.ref, product)
		if err != nil {
			log.Warn().Err(err).Str("product", product).Msg("Could not verify product existence.")
			continue
		}
		if !exists {
			log.Warn().Str("product", product).Msg("Referenced product does not exist on the service.")
		}
	}
}

// writeManifest records the merged parameter set as a transient per-API
// artifact. Each API gets a distinct path, so parallel deployments never
// contend.
func (e *DeploymentExecutor) writeManifest(params ApiDeploymentParams) (string, error) {
	payload, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(e.artifactDir, fmt.Sprintf("apim-manifest-%s-%s.json", params.ApiID, uuid.New().String()[:8]))
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return "", err
	}
	e.mu.Lock()
	e.artifacts[path] = struct{}{}
	e.mu.Unlock()
	return path, nil
}

func (e *DeploymentExecutor) removeManifest(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		e.logger.Warn().Err(err).Str("path", path).Msg("Could not remove deployment manifest.")
	}
	e.mu.Lock()
	delete(e.artifacts, path)
	e.mu.Unlock()
}
