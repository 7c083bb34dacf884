package apimanager_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/apim-deploy-manager/pkg/apimanager"
)

// writeSyncConfig writes an apis.yaml with one entry per (apiID, specPath)
// pair and returns its path.
func writeSyncConfig(t *testing.T, apis map[string]string) string {
	t.Helper()
	var doc string
	for _, apiID := range sortedKeys(apis) {
		doc += fmt.Sprintf(
			"- apiId: %s\n  displayName: %s API\n  path: %s\n  specPath: %s\n",
			apiID, apiID, apiID, apis[apiID])
	}
	path := filepath.Join(t.TempDir(), "apis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func remoteSnapshot(apiID, displayName string) *apimanager.RemoteApiSnapshot {
	return &apimanager.RemoteApiSnapshot{
		ApiID:       apiID,
		DisplayName: displayName,
		Path:        apiID,
	}
}

func setupSyncManagerTest(t *testing.T) (*apimanager.SyncManager, *MockAPIMClient) {
	t.Helper()
	mockClient := new(MockAPIMClient)
	confirm := func(prompt string) bool { return true }
	manager, err := apimanager.NewSyncManager(mockClient, testRef, nil, confirm, zerolog.Nop())
	require.NoError(t, err)
	return manager, mockClient
}

func expectBaseline(mockClient *MockAPIMClient) {
	mockClient.On("ListApis", mock.Anything, testRef).Return([]apimanager.RemoteApiSnapshot{}, nil).Once()
	mockClient.On("ServiceSKU", mock.Anything, testRef).Return(apimanager.SKUTier("Developer"), nil).Once()
}

func TestSyncManager_Sync(t *testing.T) {
	ctx := context.Background()

	t.Run("Mixed run deploys only changed APIs", func(t *testing.T) {
		// a1 is new, a2 has drifted display name, a3 matches remote state
		// and its spec is older than the freshness window.
		oldSpec := writeSpec(t, 48*time.Hour)
		configPath := writeSyncConfig(t, map[string]string{
			"a1": oldSpec,
			"a2": oldSpec,
			"a3": oldSpec,
		})

		manager, mockClient := setupSyncManagerTest(t)
		expectBaseline(mockClient)
		mockClient.On("GetApi", mock.Anything, testRef, "a1").Return(nil, apimanager.ErrAPINotFound).Once()
		mockClient.On("GetApi", mock.Anything, testRef, "a2").Return(remoteSnapshot("a2", "Old Name"), nil).Once()
		mockClient.On("GetApi", mock.Anything, testRef, "a3").Return(remoteSnapshot("a3", "a3 API"), nil).Once()
		mockClient.On("ProductExists", mock.Anything, testRef, apimanager.DefaultProduct).Return(true, nil)
		mockClient.On("CreateOrUpdateApi", mock.Anything, testRef, mock.Anything).Return(nil).Twice()

		summary, err := manager.Sync(ctx, apimanager.SyncOptions{Environment: "dev", ConfigPath: configPath})

		require.NoError(t, err)
		require.Len(t, summary.Deployed, 2)
		assert.Equal(t, "a1", summary.Deployed[0].ApiID)
		assert.Equal(t, "a2", summary.Deployed[1].ApiID)
		require.Len(t, summary.Unchanged, 1)
		assert.Equal(t, "a3", summary.Unchanged[0].ApiID)
		assert.Empty(t, summary.Failed)
		assert.Equal(t, 0, summary.ExitCode())
		mockClient.AssertExpectations(t)
	})

	t.Run("One failing API does not stop the rest", func(t *testing.T) {
		oldSpec := writeSpec(t, 48*time.Hour)
		configPath := writeSyncConfig(t, map[string]string{
			"a1": oldSpec,
			"a2": oldSpec,
			"a3": oldSpec,
		})

		manager, mockClient := setupSyncManagerTest(t)
		expectBaseline(mockClient)
		for _, apiID := range []string{"a1", "a2", "a3"} {
			mockClient.On("GetApi", mock.Anything, testRef, apiID).Return(nil, apimanager.ErrAPINotFound).Once()
		}
		mockClient.On("ProductExists", mock.Anything, testRef, apimanager.DefaultProduct).Return(true, nil)
		mockClient.On("CreateOrUpdateApi", mock.Anything, testRef, mock.MatchedBy(func(p apimanager.ApiDeploymentParams) bool {
			return p.ApiID == "a2"
		})).Return(errors.New("throttled")).Once()
		mockClient.On("CreateOrUpdateApi", mock.Anything, testRef, mock.Anything).Return(nil).Twice()

		summary, err := manager.Sync(ctx, apimanager.SyncOptions{Environment: "dev", ConfigPath: configPath})

		require.NoError(t, err)
		assert.Len(t, summary.Deployed, 2)
		require.Len(t, summary.Failed, 1)
		assert.Equal(t, "a2", summary.Failed[0].ApiID)
		assert.NotZero(t, summary.ExitCode())
		mockClient.AssertExpectations(t)
	})

	t.Run("Baseline listing failure does not abort the run", func(t *testing.T) {
		oldSpec := writeSpec(t, 48*time.Hour)
		configPath := writeSyncConfig(t, map[string]string{"a1": oldSpec})

		manager, mockClient := setupSyncManagerTest(t)
		mockClient.On("ListApis", mock.Anything, testRef).Return(nil, errors.New("503")).Once()
		mockClient.On("ServiceSKU", mock.Anything, testRef).Return(apimanager.SKUUnknown, errors.New("503")).Once()
		mockClient.On("GetApi", mock.Anything, testRef, "a1").Return(remoteSnapshot("a1", "a1 API"), nil).Once()

		summary, err := manager.Sync(ctx, apimanager.SyncOptions{Environment: "dev", ConfigPath: configPath})

		require.NoError(t, err)
		assert.Len(t, summary.Unchanged, 1)
		assert.Equal(t, 0, summary.ExitCode())
		mockClient.AssertExpectations(t)
	})

	t.Run("Dry run classifies without deploying", func(t *testing.T) {
		oldSpec := writeSpec(t, 48*time.Hour)
		configPath := writeSyncConfig(t, map[string]string{
			"a1": oldSpec,
			"a2": oldSpec,
		})

		manager, mockClient := setupSyncManagerTest(t)
		expectBaseline(mockClient)
		mockClient.On("GetApi", mock.Anything, testRef, "a1").Return(nil, apimanager.ErrAPINotFound).Once()
		mockClient.On("GetApi", mock.Anything, testRef, "a2").Return(remoteSnapshot("a2", "a2 API"), nil).Once()

		summary, err := manager.Sync(ctx, apimanager.SyncOptions{
			Environment: "dev",
			ConfigPath:  configPath,
			DryRun:      true,
		})

		require.NoError(t, err)
		require.Len(t, summary.Skipped, 1)
		assert.Equal(t, "a1", summary.Skipped[0].ApiID)
		assert.Contains(t, summary.Skipped[0].Reason, "dry-run")
		assert.Len(t, summary.Unchanged, 1)
		assert.Equal(t, 0, summary.ExitCode())
		mockClient.AssertNotCalled(t, "CreateOrUpdateApi", mock.Anything, mock.Anything, mock.Anything)
		mockClient.AssertExpectations(t)
	})

	t.Run("Force redeploys unchanged APIs", func(t *testing.T) {
		oldSpec := writeSpec(t, 48*time.Hour)
		configPath := writeSyncConfig(t, map[string]string{"a1": oldSpec})

		manager, mockClient := setupSyncManagerTest(t)
		expectBaseline(mockClient)
		mockClient.On("ProductExists", mock.Anything, testRef, apimanager.DefaultProduct).Return(true, nil)
		mockClient.On("CreateOrUpdateApi", mock.Anything, testRef, mock.Anything).Return(nil).Once()

		summary, err := manager.Sync(ctx, apimanager.SyncOptions{
			Environment: "dev",
			ConfigPath:  configPath,
			Force:       true,
		})

		require.NoError(t, err)
		assert.Len(t, summary.Deployed, 1)
		mockClient.AssertNotCalled(t, "GetApi", mock.Anything, mock.Anything, mock.Anything)
		mockClient.AssertExpectations(t)
	})

	t.Run("Unauthenticated baseline aborts the run", func(t *testing.T) {
		oldSpec := writeSpec(t, 48*time.Hour)
		configPath := writeSyncConfig(t, map[string]string{
			"a1": oldSpec,
			"a2": oldSpec,
		})

		manager, mockClient := setupSyncManagerTest(t)
		authErr := &apimanager.RemoteError{Kind: apimanager.RemoteErrUnauthenticated, Op: "list apis", Err: errors.New("401")}
		mockClient.On("ListApis", mock.Anything, testRef).Return(nil, authErr).Once()

		summary, err := manager.Sync(ctx, apimanager.SyncOptions{Environment: "dev", ConfigPath: configPath})

		require.ErrorAs(t, err, new(*apimanager.RemoteError))
		assert.Nil(t, summary)
		mockClient.AssertNotCalled(t, "GetApi", mock.Anything, mock.Anything, mock.Anything)
		mockClient.AssertNotCalled(t, "CreateOrUpdateApi", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Service-not-found during classification aborts without deploying", func(t *testing.T) {
		oldSpec := writeSpec(t, 48*time.Hour)
		configPath := writeSyncConfig(t, map[string]string{
			"a1": oldSpec,
			"a2": oldSpec,
		})

		manager, mockClient := setupSyncManagerTest(t)
		expectBaseline(mockClient)
		goneErr := &apimanager.RemoteError{Kind: apimanager.RemoteErrNotFound, Op: "get api", Err: errors.New("service not found")}
		mockClient.On("GetApi", mock.Anything, testRef, "a1").Return(nil, goneErr).Once()

		summary, err := manager.Sync(ctx, apimanager.SyncOptions{Environment: "dev", ConfigPath: configPath})

		require.ErrorAs(t, err, new(*apimanager.RemoteError))
		assert.Nil(t, summary)
		// The run stops at the first fatal classification; a2 is never
		// touched and no doomed deployment is attempted.
		mockClient.AssertNotCalled(t, "GetApi", mock.Anything, testRef, "a2")
		mockClient.AssertNotCalled(t, "CreateOrUpdateApi", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Unreadable config aborts before any remote call", func(t *testing.T) {
		manager, mockClient := setupSyncManagerTest(t)

		_, err := manager.Sync(ctx, apimanager.SyncOptions{
			Environment: "dev",
			ConfigPath:  filepath.Join(t.TempDir(), "missing.yaml"),
		})

		var cfgErr *apimanager.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		mockClient.AssertNotCalled(t, "ListApis", mock.Anything, mock.Anything)
	})
}

func TestSyncManager_DeployApis(t *testing.T) {
	ctx := context.Background()

	t.Run("Deploys every API without change detection", func(t *testing.T) {
		spec := writeSpec(t, time.Hour)
		configPath := writeSyncConfig(t, map[string]string{
			"a1": spec,
			"a2": spec,
		})

		manager, mockClient := setupSyncManagerTest(t)
		expectBaseline(mockClient)
		mockClient.On("ProductExists", mock.Anything, testRef, apimanager.DefaultProduct).Return(true, nil)
		mockClient.On("CreateOrUpdateApi", mock.Anything, testRef, mock.Anything).Return(nil).Twice()

		summary, err := manager.DeployApis(ctx, apimanager.SyncOptions{Environment: "dev", ConfigPath: configPath})

		require.NoError(t, err)
		assert.Len(t, summary.Deployed, 2)
		mockClient.AssertNotCalled(t, "GetApi", mock.Anything, mock.Anything, mock.Anything)
		mockClient.AssertExpectations(t)
	})
}

func TestSyncManager_DestroyApis(t *testing.T) {
	ctx := context.Background()

	t.Run("Declined confirmation aborts with no deletions", func(t *testing.T) {
		spec := writeSpec(t, time.Hour)
		configPath := writeSyncConfig(t, map[string]string{"a1": spec})

		mockClient := new(MockAPIMClient)
		decline := func(prompt string) bool { return false }
		manager, err := apimanager.NewSyncManager(mockClient, testRef, nil, decline, zerolog.Nop())
		require.NoError(t, err)

		_, err = manager.DestroyApis(ctx, apimanager.SyncOptions{Environment: "dev", ConfigPath: configPath}, apimanager.DeleteOptions{})

		require.ErrorIs(t, err, apimanager.ErrDeletionAborted)
		mockClient.AssertNotCalled(t, "DeleteApi", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Unauthenticated existence check aborts the run", func(t *testing.T) {
		spec := writeSpec(t, time.Hour)
		configPath := writeSyncConfig(t, map[string]string{
			"a1": spec,
			"a2": spec,
		})

		manager, mockClient := setupSyncManagerTest(t)
		authErr := &apimanager.RemoteError{Kind: apimanager.RemoteErrUnauthenticated, Op: "get api", Err: errors.New("401")}
		mockClient.On("GetApi", mock.Anything, testRef, "a1").Return(nil, authErr).Once()

		_, err := manager.DestroyApis(ctx, apimanager.SyncOptions{Environment: "dev", ConfigPath: configPath}, apimanager.DeleteOptions{Force: true})

		require.ErrorAs(t, err, new(*apimanager.RemoteError))
		mockClient.AssertNotCalled(t, "DeleteApi", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Deletes configured APIs and reports the run", func(t *testing.T) {
		spec := writeSpec(t, time.Hour)
		configPath := writeSyncConfig(t, map[string]string{
			"a1": spec,
			"a2": spec,
		})

		manager, mockClient := setupSyncManagerTest(t)
		mockClient.On("GetApi", mock.Anything, testRef, "a1").Return(remoteSnapshot("a1", "a1 API"), nil).Once()
		mockClient.On("GetApi", mock.Anything, testRef, "a2").Return(nil, apimanager.ErrAPINotFound).Once()
		mockClient.On("DeleteApi", mock.Anything, testRef, "a1").Return(nil).Once()

		summary, err := manager.DestroyApis(ctx, apimanager.SyncOptions{Environment: "dev", ConfigPath: configPath}, apimanager.DeleteOptions{Force: true})

		require.NoError(t, err)
		require.Len(t, summary.Deleted, 1)
		assert.Equal(t, "a1", summary.Deleted[0].ApiID)
		require.Len(t, summary.Skipped, 1)
		assert.Equal(t, "a2", summary.Skipped[0].ApiID)
		assert.Equal(t, 0, summary.ExitCode())
		mockClient.AssertExpectations(t)
	})
}
