package apimanager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// SpecFreshnessWindow is the recency window used as a proxy for "the spec
// content changed since the last deploy". No content hash is persisted across
// runs, so a spec modified within this window is treated as changed. The
// heuristic has known false positives and negatives around the window edge;
// it is kept deliberately because operators depend on the current semantics.
const SpecFreshnessWindow = 24 * time.Hour

// ChangeClassifier decides, for each ApiDefinition, whether the remote state
// is absent, stale, or equivalent.
type ChangeClassifier struct {
	client APIMClient
	ref    ServiceRef
	logger zerolog.Logger
	clock  func() time.Time
}

// NewChangeClassifier creates a classifier for the given service.
func NewChangeClassifier(client APIMClient, ref ServiceRef, logger zerolog.Logger) (*ChangeClassifier, error) {
	if client == nil {
		return nil, errors.New("apim client (APIMClient interface) cannot be nil")
	}
	return &ChangeClassifier{
		client: client,
		ref:    ref,
		logger: logger.With().Str("component", "ChangeClassifier").Logger(),
		clock:  time.Now,
	}, nil
}

// WithClock overrides the time source. Used by tests to pin the freshness
// window.
func (c *ChangeClassifier) WithClock(clock func() time.Time) *ChangeClassifier {
	c.clock = clock
	return c
}

// Classify compares one desired-state definition against observed remote
// state. The comparisons short-circuit in a fixed order; the first divergence
// wins. A transient remote failure classifies conservatively as Create so a
// redeploy is attempted rather than the API being silently skipped; a
// run-fatal failure (the service itself unreachable) is returned as an error
// so the caller aborts instead of attempting doomed deployments.
func (c *ChangeClassifier) Classify(ctx context.Context, def ApiDefinition, force bool) (SyncDecision, error) {
	log := c.logger.With().Str("api", def.ApiID).Logger()

	if force {
		log.Info().Msg("Force flag set, redeploy required.")
		return SyncDecision{ApiID: def.ApiID, Action: ActionUpdate, Reason: "forced"}, nil
	}

	remote, err := c.client.GetApi(ctx, c.ref, def.ApiID)
	if errors.Is(err, ErrAPINotFound) {
		log.Info().Msg("API not deployed, create required.")
		return SyncDecision{ApiID: def.ApiID, Action: ActionCreate, Reason: "not deployed"}, nil
	}
	if IsRunFatal(err) {
		log.Error().Err(err).Msg("Target service unreachable, aborting classification.")
		return SyncDecision{}, err
	}
	if err != nil {
		log.Warn().Err(err).Msg("Could not read remote API state, attempting redeploy.")
		return SyncDecision{ApiID: def.ApiID, Action: ActionCreate, Reason: "remote state unavailable"}, nil
	}

	if def.DisplayName != remote.DisplayName {
		return c.updateNeeded(log, def.ApiID, "display name changed"), nil
	}
	if def.Path != remote.Path {
		return c.updateNeeded(log, def.ApiID, "path changed"), nil
	}
	if def.ServiceURL != remote.ServiceURL {
		return c.updateNeeded(log, def.ApiID, "service url changed"), nil
	}

	if !def.Format.IsLink() {
		info, statErr := os.Stat(def.SpecPath)
		if statErr != nil {
			// Let the executor surface the definitive per-API failure.
			return c.updateNeeded(log, def.ApiID, "spec file not readable"), nil
		}
		if age := c.clock().Sub(info.ModTime()); age < SpecFreshnessWindow {
			return c.updateNeeded(log, def.ApiID, fmt.Sprintf("spec recently modified (%s ago)", age.Round(time.Minute))), nil
		}
	}

	log.Info().Msg("API is up to date.")
	return SyncDecision{ApiID: def.ApiID, Action: ActionUnchanged}, nil
}

func (c *ChangeClassifier) updateNeeded(log zerolog.Logger, apiID, reason string) SyncDecision {
	log.Info().Str("reason", reason).Msg("Update required.")
	return SyncDecision{ApiID: apiID, Action: ActionUpdate, Reason: reason}
}
