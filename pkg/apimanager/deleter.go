package apimanager

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// ErrDeletionAborted is returned when the operator declines the confirmation
// prompt. No deletions have been issued in that case.
var ErrDeletionAborted = errors.New("apim: deletion aborted by operator")

// ConfirmFunc asks the operator to approve a destructive action. It blocks
// once per run, before any deletions proceed.
type ConfirmFunc func(prompt string) bool

// StdinConfirm is the interactive ConfirmFunc used by the CLI.
func StdinConfirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

// DeleteOptions controls one deletion run.
type DeleteOptions struct {
	// DryRun short-circuits after the existence check and logs the intended
	// action without calling delete.
	DryRun bool
	// Force skips the confirmation gate.
	Force bool
}

// DeletionManager is the symmetric counterpart of the DeploymentExecutor: it
// removes remote APIs with existence pre-checks. Deletion is idempotent; an
// absent API is Skipped, never Failed.
type DeletionManager struct {
	client  APIMClient
	ref     ServiceRef
	logger  zerolog.Logger
	confirm ConfirmFunc
}

// NewDeletionManager creates a deletion manager targeting the given service.
func NewDeletionManager(client APIMClient, ref ServiceRef, confirm ConfirmFunc, logger zerolog.Logger) (*DeletionManager, error) {
	if client == nil {
		return nil, errors.New("apim client (APIMClient interface) cannot be nil")
	}
	if confirm == nil {
		confirm = StdinConfirm
	}
	return &DeletionManager{
		client:  client,
		ref:     ref,
		logger:  logger.With().Str("component", "DeletionManager").Logger(),
		confirm: confirm,
	}, nil
}

// DeleteAll removes every listed API sequentially in input order. The
// confirmation gate blocks once for the whole run; a declined prompt returns
// ErrDeletionAborted with no deletions issued.
func (d *DeletionManager) DeleteAll(ctx context.Context, defs []ApiDefinition, opts DeleteOptions) ([]DeploymentOutcome, error) {
	if !opts.DryRun && !opts.Force {
		prompt := fmt.Sprintf("About to delete %d API(s) from service %s. Continue?", len(defs), d.ref)
		if !d.confirm(prompt) {
			d.logger.Warn().Msg("Deletion not confirmed, aborting run.")
			return nil, ErrDeletionAborted
		}
	}

	outcomes := make([]DeploymentOutcome, 0, len(defs))
	for _, def := range defs {
		outcome := d.Delete(ctx, def, opts)
		if IsRunFatal(outcome.Err) {
			d.logger.Error().Err(outcome.Err).Msg("Target service unreachable, aborting run.")
			return nil, outcome.Err
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// Delete removes one API. The existence pre-check makes the operation
// idempotent: deleting an absent API records Skipped.
func (d *DeletionManager) Delete(ctx context.Context, def ApiDefinition, opts DeleteOptions) DeploymentOutcome {
	log := d.logger.With().Str("api", def.ApiID).Logger()

	callCtx, cancel := context.WithTimeout(ctx, remoteCallTimeout)
	defer cancel()

	_, err := d.client.GetApi(callCtx, d.ref, def.ApiID)
	if errors.Is(err, ErrAPINotFound) {
		log.Info().Msg("API not deployed, nothing to delete.")
		return DeploymentOutcome{ApiID: def.ApiID, Status: StatusSkipped, Reason: "not deployed"}
	}
	if err != nil {
		log.Error().Err(err).Msg("Could not check API existence.")
		return DeploymentOutcome{ApiID: def.ApiID, Status: StatusFailed, Reason: "existence check failed", Err: err}
	}

	if opts.DryRun {
		log.Info().Msg("Dry run: API exists and would be deleted.")
		return DeploymentOutcome{ApiID: def.ApiID, Status: StatusSkipped, Reason: "dry-run: would delete"}
	}

	log.Info().Msg("Deleting API...")
	if err := d.client.DeleteApi(callCtx, d.ref, def.ApiID); err != nil {
		log.Error().Err(err).Msg("Deletion failed.")
		return DeploymentOutcome{ApiID: def.ApiID, Status: StatusFailed, Reason: "delete failed", Err: err}
	}

	log.Info().Msg("API deleted successfully.")
	return DeploymentOutcome{ApiID: def.ApiID, Status: StatusDeleted}
}
