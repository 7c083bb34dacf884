package apimanager_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/apim-deploy-manager/pkg/apimanager"
)

func TestSummarize(t *testing.T) {
	decisions := []apimanager.SyncDecision{
		{ApiID: "a1", Action: apimanager.ActionCreate, Reason: "not deployed"},
		{ApiID: "a2", Action: apimanager.ActionUpdate, Reason: "display name changed"},
		{ApiID: "a3", Action: apimanager.ActionUnchanged},
	}
	outcomes := []apimanager.DeploymentOutcome{
		{ApiID: "a1", Status: apimanager.StatusDeployed},
		{ApiID: "a2", Status: apimanager.StatusDeployed},
	}

	summary := apimanager.Summarize("dev", decisions, outcomes, 3*time.Second, false)

	require.Len(t, summary.Deployed, 2)
	assert.Equal(t, "a1", summary.Deployed[0].ApiID)
	assert.Equal(t, "a2", summary.Deployed[1].ApiID)
	require.Len(t, summary.Unchanged, 1)
	assert.Equal(t, "a3", summary.Unchanged[0].ApiID)
	assert.Empty(t, summary.Failed)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 0, summary.ExitCode())
}

func TestRunSummary_ExitCode(t *testing.T) {
	t.Run("Non-zero iff any failure", func(t *testing.T) {
		summary := apimanager.Summarize("dev", nil, []apimanager.DeploymentOutcome{
			{ApiID: "a1", Status: apimanager.StatusDeployed},
			{ApiID: "a2", Status: apimanager.StatusFailed, Err: errors.New("boom")},
		}, time.Second, false)
		assert.NotZero(t, summary.ExitCode())
	})

	t.Run("All unchanged is success, not a no-op error", func(t *testing.T) {
		summary := apimanager.Summarize("dev", []apimanager.SyncDecision{
			{ApiID: "a1", Action: apimanager.ActionUnchanged},
		}, nil, time.Second, false)
		assert.Zero(t, summary.ExitCode())
	})

	t.Run("Dry run exits zero even with discovered failures", func(t *testing.T) {
		summary := apimanager.Summarize("dev", nil, []apimanager.DeploymentOutcome{
			{ApiID: "a1", Status: apimanager.StatusFailed, Reason: "spec not found"},
		}, time.Second, true)
		assert.Zero(t, summary.ExitCode())
	})
}

func TestRunSummary_Headline(t *testing.T) {
	unchangedOnly := apimanager.Summarize("dev", []apimanager.SyncDecision{
		{ApiID: "a1", Action: apimanager.ActionUnchanged},
		{ApiID: "a2", Action: apimanager.ActionUnchanged},
	}, nil, time.Second, false)

	deployedOnly := apimanager.Summarize("dev", nil, []apimanager.DeploymentOutcome{
		{ApiID: "a1", Status: apimanager.StatusDeployed},
		{ApiID: "a2", Status: apimanager.StatusDeployed},
	}, time.Second, false)

	// Both runs exit 0 but mean different things; the operator-facing line
	// must distinguish them.
	assert.Zero(t, unchangedOnly.ExitCode())
	assert.Zero(t, deployedOnly.ExitCode())
	assert.NotEqual(t, unchangedOnly.Headline(), deployedOnly.Headline())
	assert.Contains(t, unchangedOnly.Headline(), "up to date")
	assert.Contains(t, deployedOnly.Headline(), "deployed")

	// A dry-run sync whose outcomes are all Skipped is not a delete run.
	skippedOnly := apimanager.Summarize("dev", nil, []apimanager.DeploymentOutcome{
		{ApiID: "a1", Status: apimanager.StatusSkipped, Reason: "dry-run: would create (not deployed)"},
		{ApiID: "a2", Status: apimanager.StatusSkipped, Reason: "dry-run: would update (path changed)"},
	}, time.Second, true)
	assert.NotContains(t, skippedOnly.Headline(), "deleted")
	assert.Contains(t, skippedOnly.Headline(), "skipped")

	deleteRun := apimanager.Summarize("dev", nil, []apimanager.DeploymentOutcome{
		{ApiID: "a1", Status: apimanager.StatusDeleted},
		{ApiID: "a2", Status: apimanager.StatusSkipped, Reason: "not deployed"},
	}, time.Second, false)
	assert.Contains(t, deleteRun.Headline(), "deleted")
}

func TestRunSummary_Render(t *testing.T) {
	summary := apimanager.Summarize("staging", []apimanager.SyncDecision{
		{ApiID: "a3", Action: apimanager.ActionUnchanged},
	}, []apimanager.DeploymentOutcome{
		{ApiID: "a1", Status: apimanager.StatusDeployed},
		{ApiID: "a2", Status: apimanager.StatusFailed, Reason: "create-or-update failed", Err: errors.New("429")},
	}, 1500*time.Millisecond, false)

	rendered := summary.Render()

	assert.Contains(t, rendered, "staging")
	assert.Contains(t, rendered, "DEPLOYED")
	assert.Contains(t, rendered, "FAILED")
	assert.Contains(t, rendered, "a1")
	assert.Contains(t, rendered, "a2")
	// Unchanged APIs are counted but not itemized.
	assert.NotContains(t, rendered, "UNCHANGED\ta3")
}
