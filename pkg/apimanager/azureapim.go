package apimanager

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	armapimanagement "github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/apimanagement/armapimanagement/v2"
	"github.com/rs/zerolog"
)

// azureAPIMClient implements APIMClient on top of the Azure Resource Manager
// API Management clients.
type azureAPIMClient struct {
	apis        *armapimanagement.APIClient
	apiPolicies *armapimanagement.APIPolicyClient
	gateways    *armapimanagement.GatewayClient
	gatewayAPIs *armapimanagement.GatewayAPIClient
	products    *armapimanagement.ProductClient
	productAPIs *armapimanagement.ProductAPIClient
	tags        *armapimanagement.TagClient
	service     *armapimanagement.ServiceClient
	logger      zerolog.Logger
}

// CreateAzureAPIMClient builds an APIMClient authenticated through the
// default Azure credential chain (environment, workload identity, managed
// identity, CLI).
func CreateAzureAPIMClient(subscriptionID string, logger zerolog.Logger) (APIMClient, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain Azure credential: %w", err)
	}
	return NewAzureAPIMClient(subscriptionID, cred, logger)
}

// NewAzureAPIMClient builds an APIMClient from an explicit credential.
func NewAzureAPIMClient(subscriptionID string, cred azcore.TokenCredential, logger zerolog.Logger) (APIMClient, error) {
	factory, err := armapimanagement.NewClientFactory(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create API Management client factory: %w", err)
	}
	return &azureAPIMClient{
		apis:        factory.NewAPIClient(),
		apiPolicies: factory.NewAPIPolicyClient(),
		gateways:    factory.NewGatewayClient(),
		gatewayAPIs: factory.NewGatewayAPIClient(),
		products:    factory.NewProductClient(),
		productAPIs: factory.NewProductAPIClient(),
		tags:        factory.NewTagClient(),
		service:     factory.NewServiceClient(),
		logger:      logger.With().Str("component", "AzureAPIMClient").Logger(),
	}, nil
}

func (c *azureAPIMClient) ListApis(ctx context.Context, ref ServiceRef) ([]RemoteApiSnapshot, error) {
	var snapshots []RemoteApiSnapshot
	pager := c.apis.NewListByServicePager(ref.ResourceGroup, ref.ServiceName, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classifyAzureError("list apis", err)
		}
		for _, contract := range page.Value {
			if contract == nil {
				continue
			}
			snapshots = append(snapshots, snapshotFromContract(toValue(contract.Name), contract.Properties))
		}
	}
	return snapshots, nil
}

func (c *azureAPIMClient) GetApi(ctx context.Context, ref ServiceRef, apiID string) (*RemoteApiSnapshot, error) {
	resp, err := c.apis.Get(ctx, ref.ResourceGroup, ref.ServiceName, apiID, nil)
	if err != nil {
		if isAzureNotFound(err) {
			return nil, ErrAPINotFound
		}
		return nil, classifyAzureError("get api", err)
	}
	snapshot := snapshotFromContract(apiID, resp.Properties)
	return &snapshot, nil
}

func (c *azureAPIMClient) CreateOrUpdateApi(ctx context.Context, ref ServiceRef, params ApiDeploymentParams) error {
	props := &armapimanagement.APICreateOrUpdateProperties{
		DisplayName:          to.Ptr(params.DisplayName),
		Path:                 to.Ptr(params.Path),
		Format:               to.Ptr(toContentFormat(params.Format)),
		Value:                to.Ptr(params.SpecValue),
		APIType:              to.Ptr(toAPIType(params.ApiType)),
		SubscriptionRequired: to.Ptr(params.SubscriptionRequired),
		Protocols:            toProtocols(params.Protocols),
	}
	// An empty backend URL is omitted entirely, never sent as "".
	if params.ServiceURL != "" {
		props.ServiceURL = to.Ptr(params.ServiceURL)
	}

	poller, err := c.apis.BeginCreateOrUpdate(ctx, ref.ResourceGroup, ref.ServiceName, params.ApiID,
		armapimanagement.APICreateOrUpdateParameter{Properties: props}, nil)
	if err != nil {
		return classifyAzureError("create-or-update api", err)
	}
	if _, err = poller.PollUntilDone(ctx, nil); err != nil {
		return classifyAzureError("create-or-update api", err)
	}

	if err := c.applyAssociations(ctx, ref, params); err != nil {
		return err
	}
	return c.applyPolicies(ctx, ref, params)
}

// applyAssociations links the deployed API to its products, gateways, and
// tags. These are separate sub-resource calls on the control plane.
func (c *azureAPIMClient) applyAssociations(ctx context.Context, ref ServiceRef, params ApiDeploymentParams) error {
	log := c.logger.With().Str("api", params.ApiID).Logger()

	for _, productID := range params.ProductIDs {
		_, err := c.productAPIs.CreateOrUpdate(ctx, ref.ResourceGroup, ref.ServiceName, productID, params.ApiID, nil)
		if err != nil {
			return classifyAzureError(fmt.Sprintf("associate product '%s'", productID), err)
		}
	}
	for _, gateway := range params.GatewayNames {
		if gateway == ManagedGateway {
			continue
		}
		_, err := c.gatewayAPIs.CreateOrUpdate(ctx, ref.ResourceGroup, ref.ServiceName, gateway, params.ApiID, nil)
		if err != nil {
			return classifyAzureError(fmt.Sprintf("associate gateway '%s'", gateway), err)
		}
	}
	for _, tag := range params.Tags {
		_, err := c.tags.CreateOrUpdate(ctx, ref.ResourceGroup, ref.ServiceName, tag,
			armapimanagement.TagCreateUpdateParameters{
				Properties: &armapimanagement.TagContractProperties{DisplayName: to.Ptr(tag)},
			}, nil)
		if err != nil {
			log.Warn().Err(err).Str("tag", tag).Msg("Could not ensure tag exists.")
			continue
		}
		_, err = c.tags.AssignToAPI(ctx, ref.ResourceGroup, ref.ServiceName, params.ApiID, tag, nil)
		if err != nil {
			log.Warn().Err(err).Str("tag", tag).Msg("Could not assign tag to API.")
		}
	}
	return nil
}

func (c *azureAPIMClient) applyPolicies(ctx context.Context, ref ServiceRef, params ApiDeploymentParams) error {
	if params.Policies.IsEmpty() {
		return nil
	}
	_, err := c.apiPolicies.CreateOrUpdate(ctx, ref.ResourceGroup, ref.ServiceName, params.ApiID,
		armapimanagement.PolicyIDNamePolicy,
		armapimanagement.PolicyContract{
			Properties: &armapimanagement.PolicyContractProperties{
				Value:  to.Ptr(renderPolicyXML(params.Policies)),
				Format: to.Ptr(armapimanagement.PolicyContentFormatXML),
			},
		}, nil)
	if err != nil {
		return classifyAzureError("apply policies", err)
	}
	return nil
}

func (c *azureAPIMClient) DeleteApi(ctx context.Context, ref ServiceRef, apiID string) error {
	_, err := c.apis.Delete(ctx, ref.ResourceGroup, ref.ServiceName, apiID, "*", nil)
	if err != nil {
		if isAzureNotFound(err) {
			return ErrAPINotFound
		}
		return classifyAzureError("delete api", err)
	}
	return nil
}

func (c *azureAPIMClient) GatewayExists(ctx context.Context, ref ServiceRef, gatewayName string) (bool, error) {
	_, err := c.gateways.Get(ctx, ref.ResourceGroup, ref.ServiceName, gatewayName, nil)
	if err != nil {
		if isAzureNotFound(err) {
			return false, nil
		}
		return false, classifyAzureError("get gateway", err)
	}
	return true, nil
}

func (c *azureAPIMClient) ProductExists(ctx context.Context, ref ServiceRef, productID string) (bool, error) {
	_, err := c.products.Get(ctx, ref.ResourceGroup, ref.ServiceName, productID, nil)
	if err != nil {
		if isAzureNotFound(err) {
			return false, nil
		}
		return false, classifyAzureError("get product", err)
	}
	return true, nil
}

func (c *azureAPIMClient) ServiceSKU(ctx context.Context, ref ServiceRef) (SKUTier, error) {
	resp, err := c.service.Get(ctx, ref.ResourceGroup, ref.ServiceName, nil)
	if err != nil {
		if isAzureNotFound(err) {
			return SKUUnknown, &RemoteError{Kind: RemoteErrNotFound, Op: "get service", Err: err}
		}
		return SKUUnknown, classifyAzureError("get service", err)
	}
	if resp.SKU == nil || resp.SKU.Name == nil {
		return SKUUnknown, nil
	}
	return SKUTier(*resp.SKU.Name), nil
}

// Close satisfies APIMClient; the arm clients hold no resources that need
// explicit release.
func (c *azureAPIMClient) Close() error { return nil }

// --- Conversion helpers ---

func snapshotFromContract(apiID string, props *armapimanagement.APIContractProperties) RemoteApiSnapshot {
	snapshot := RemoteApiSnapshot{ApiID: apiID}
	if props == nil {
		return snapshot
	}
	snapshot.DisplayName = toValue(props.DisplayName)
	snapshot.Path = toValue(props.Path)
	snapshot.ServiceURL = toValue(props.ServiceURL)
	snapshot.Revision = toValue(props.APIRevision)
	return snapshot
}

func toContentFormat(format ApiFormat) armapimanagement.ContentFormat {
	switch format {
	case FormatOpenAPIJSON:
		return armapimanagement.ContentFormatOpenapiJSON
	case FormatOpenAPIYAML, FormatSwaggerYAML:
		return armapimanagement.ContentFormatOpenapi
	case FormatSwaggerJSON:
		return armapimanagement.ContentFormatSwaggerJSON
	case FormatWSDL:
		return armapimanagement.ContentFormatWsdl
	case FormatWSDLLink:
		return armapimanagement.ContentFormatWsdlLink
	default:
		return armapimanagement.ContentFormatOpenapiJSON
	}
}

func toAPIType(apiType ApiType) armapimanagement.APIType {
	switch apiType {
	case ApiTypeSoap:
		return armapimanagement.APITypeSoap
	case ApiTypeWebsocket:
		return armapimanagement.APITypeWebsocket
	case ApiTypeGraphQL:
		return armapimanagement.APITypeGraphql
	default:
		return armapimanagement.APITypeHTTP
	}
}

func toProtocols(protocols []Protocol) []*armapimanagement.Protocol {
	converted := make([]*armapimanagement.Protocol, 0, len(protocols))
	for _, p := range protocols {
		switch p {
		case ProtocolHTTP:
			converted = append(converted, to.Ptr(armapimanagement.ProtocolHTTP))
		case ProtocolWS:
			converted = append(converted, to.Ptr(armapimanagement.ProtocolWs))
		case ProtocolWSS:
			converted = append(converted, to.Ptr(armapimanagement.ProtocolWss))
		default:
			converted = append(converted, to.Ptr(armapimanagement.ProtocolHTTPS))
		}
	}
	return converted
}

// renderPolicyXML assembles the APIM policy document from the per-section
// rule lists. Each section keeps the platform's <base /> chain first.
func renderPolicyXML(rules *PolicyRules) string {
	var b strings.Builder
	b.WriteString("<policies>\n")
	section := func(name string, entries []string) {
		b.WriteString(fmt.Sprintf("  <%s>\n    <base />\n", name))
		for _, entry := range entries {
			b.WriteString("    " + entry + "\n")
		}
		b.WriteString(fmt.Sprintf("  </%s>\n", name))
	}
	section("inbound", rules.Inbound)
	section("backend", rules.Backend)
	section("outbound", rules.Outbound)
	section("on-error", rules.OnError)
	b.WriteString("</policies>")
	return b.String()
}

// --- Error helpers ---

func isAzureNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

func classifyAzureError(op string, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &RemoteError{Kind: RemoteErrUnauthenticated, Op: op, Err: err}
		case http.StatusNotFound:
			return &RemoteError{Kind: RemoteErrNotFound, Op: op, Err: err}
		}
	}
	return &RemoteError{Kind: RemoteErrTransient, Op: op, Err: err}
}

func toValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
