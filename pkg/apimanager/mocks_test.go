package apimanager_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/illmade-knight/apim-deploy-manager/pkg/apimanager"
)

// MockAPIMClient is the shared testify mock for the remote control plane.
type MockAPIMClient struct{ mock.Mock }

func (m *MockAPIMClient) ListApis(ctx context.Context, ref apimanager.ServiceRef) ([]apimanager.RemoteApiSnapshot, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]apimanager.RemoteApiSnapshot), args.Error(1)
}

func (m *MockAPIMClient) GetApi(ctx context.Context, ref apimanager.ServiceRef, apiID string) (*apimanager.RemoteApiSnapshot, error) {
	args := m.Called(ctx, ref, apiID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apimanager.RemoteApiSnapshot), args.Error(1)
}

func (m *MockAPIMClient) CreateOrUpdateApi(ctx context.Context, ref apimanager.ServiceRef, params apimanager.ApiDeploymentParams) error {
	return m.Called(ctx, ref, params).Error(0)
}

func (m *MockAPIMClient) DeleteApi(ctx context.Context, ref apimanager.ServiceRef, apiID string) error {
	return m.Called(ctx, ref, apiID).Error(0)
}

func (m *MockAPIMClient) GatewayExists(ctx context.Context, ref apimanager.ServiceRef, gatewayName string) (bool, error) {
	args := m.Called(ctx, ref, gatewayName)
	return args.Bool(0), args.Error(1)
}

func (m *MockAPIMClient) ProductExists(ctx context.Context, ref apimanager.ServiceRef, productID string) (bool, error) {
	args := m.Called(ctx, ref, productID)
	return args.Bool(0), args.Error(1)
}

func (m *MockAPIMClient) ServiceSKU(ctx context.Context, ref apimanager.ServiceRef) (apimanager.SKUTier, error) {
	args := m.Called(ctx, ref)
	return args.Get(0).(apimanager.SKUTier), args.Error(1)
}

func (m *MockAPIMClient) Close() error {
	return m.Called().Error(0)
}

// testRef is the ServiceRef shared by the manager tests.
var testRef = apimanager.ServiceRef{
	SubscriptionID: "00000000-0000-0000-0000-000000000000",
	ResourceGroup:  "test-rg",
	ServiceName:    "test-apim",
}
