package provision

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/rs/zerolog"
)

//go:embed templates/environment.json
var environmentTemplate []byte

// deploymentName is stable per service so re-applies update the same
// deployment record.
func deploymentName(params EnvironmentParams) string {
	return fmt.Sprintf("apim-env-%s", params.ServiceName)
}

// ARMProvisioner implements Provisioner with Azure Resource Manager template
// deployments.
type ARMProvisioner struct {
	deployments *armresources.DeploymentsClient
	groups      *armresources.ResourceGroupsClient
	logger      zerolog.Logger
}

// NewARMProvisioner creates a provisioner for one subscription.
func NewARMProvisioner(subscriptionID string, cred azcore.TokenCredential, logger zerolog.Logger) (*ARMProvisioner, error) {
	deployments, err := armresources.NewDeploymentsClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create deployments client: %w", err)
	}
	groups, err := armresources.NewResourceGroupsClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource groups client: %w", err)
	}
	return &ARMProvisioner{
		deployments: deployments,
		groups:      groups,
		logger:      logger.With().Str("component", "ARMProvisioner").Logger(),
	}, nil
}

// Apply ensures the resource group exists, then submits the environment
// template as an incremental deployment and blocks until it settles.
func (p *ARMProvisioner) Apply(ctx context.Context, params EnvironmentParams) (*ProvisionResult, error) {
	log := p.logger.With().Str("service", params.ServiceName).Logger()

	if err := validateParams(params); err != nil {
		return nil, err
	}

	tags := make(map[string]*string, len(params.Tags))
	for k, v := range params.Tags {
		tags[k] = to.Ptr(v)
	}
	_, err := p.groups.CreateOrUpdate(ctx, params.ResourceGroup, armresources.ResourceGroup{
		Location: to.Ptr(params.Region),
		Tags:     tags,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure resource group '%s': %w", params.ResourceGroup, err)
	}

	var template map[string]interface{}
	if err := json.Unmarshal(environmentTemplate, &template); err != nil {
		return nil, fmt.Errorf("embedded environment template is invalid: %w", err)
	}

	log.Info().Str("resource_group", params.ResourceGroup).Msg("Submitting environment deployment...")
	poller, err := p.deployments.BeginCreateOrUpdate(ctx, params.ResourceGroup, deploymentName(params),
		armresources.Deployment{
			Properties: &armresources.DeploymentProperties{
				Template:   template,
				Parameters: BuildTemplateParameters(params),
				Mode:       to.Ptr(armresources.DeploymentModeIncremental),
			},
		}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to submit environment deployment: %w", err)
	}

	resp, err := poller.PollUntilDone(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("environment deployment failed: %w", err)
	}

	result := resultFromOutputs(resp.Properties)
	log.Info().Str("service_resource_id", result.ServiceResourceID).Msg("Environment deployment complete.")
	return result, nil
}

// Destroy deletes the whole environment by removing its resource group.
func (p *ARMProvisioner) Destroy(ctx context.Context, params EnvironmentParams) error {
	log := p.logger.With().Str("service", params.ServiceName).Logger()

	exists, err := p.Exists(ctx, params)
	if err != nil {
		return err
	}
	if !exists {
		log.Info().Str("resource_group", params.ResourceGroup).Msg("Resource group does not exist, nothing to destroy.")
		return nil
	}

	log.Warn().Str("resource_group", params.ResourceGroup).Msg("Destroying environment...")
	poller, err := p.groups.BeginDelete(ctx, params.ResourceGroup, nil)
	if err != nil {
		return fmt.Errorf("failed to start resource group deletion: %w", err)
	}
	if _, err = poller.PollUntilDone(ctx, nil); err != nil {
		return fmt.Errorf("resource group deletion failed: %w", err)
	}
	log.Info().Msg("Environment destroyed.")
	return nil
}

// Exists checks the environment's resource group.
func (p *ARMProvisioner) Exists(ctx context.Context, params EnvironmentParams) (bool, error) {
	resp, err := p.groups.CheckExistence(ctx, params.ResourceGroup, nil)
	if err != nil {
		return false, fmt.Errorf("failed to check resource group '%s': %w", params.ResourceGroup, err)
	}
	return resp.Success, nil
}

// BuildTemplateParameters converts the flat parameter contract into the ARM
// parameter object shape.
func BuildTemplateParameters(params EnvironmentParams) map[string]interface{} {
	wrap := func(v interface{}) map[string]interface{} {
		return map[string]interface{}{"value": v}
	}
	return map[string]interface{}{
		"serviceName":             wrap(params.ServiceName),
		"location":                wrap(params.Region),
		"skuName":                 wrap(params.SKUName),
		"skuCapacity":             wrap(params.SKUCapacity),
		"publisherName":           wrap(params.PublisherName),
		"publisherEmail":          wrap(params.PublisherEmail),
		"vnetName":                wrap(params.VnetName),
		"subnetName":              wrap(params.SubnetName),
		"enableSelfHostedGateway": wrap(params.EnableSelfHosted),
	}
}

func validateParams(params EnvironmentParams) error {
	if params.ServiceName == "" {
		return errors.New("provision: ServiceName is a required parameter")
	}
	if params.ResourceGroup == "" {
		return errors.New("provision: ResourceGroup is a required parameter")
	}
	if params.Region == "" {
		return errors.New("provision: Region is a required parameter")
	}
	if params.PublisherEmail == "" {
		return errors.New("provision: PublisherEmail is a required parameter")
	}
	return nil
}

// resultFromOutputs extracts the resource identifiers from the deployment's
// output section.
func resultFromOutputs(props *armresources.DeploymentPropertiesExtended) *ProvisionResult {
	result := &ProvisionResult{}
	if props == nil {
		return result
	}
	outputs, ok := props.Outputs.(map[string]interface{})
	if !ok {
		return result
	}
	extract := func(name string) string {
		entry, ok := outputs[name].(map[string]interface{})
		if !ok {
			return ""
		}
		value, _ := entry["value"].(string)
		return value
	}
	result.ServiceResourceID = extract("serviceResourceId")
	result.NetworkResourceID = extract("networkResourceId")
	return result
}
