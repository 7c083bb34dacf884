// Package provision stands up and tears down the APIM environment itself:
// the virtual network, network security group, the API Management service,
// and its baseline products. The reconciliation core only depends on the
// Provisioner contract; the template consumed underneath is opaque.
package provision

import "context"

// EnvironmentParams is the flat parameter contract consumed by the
// provisioner.
type EnvironmentParams struct {
	ServiceName        string            `yaml:"serviceName" json:"serviceName"`
	ResourceGroup      string            `yaml:"resourceGroup" json:"resourceGroup"`
	Region             string            `yaml:"region" json:"region"`
	SKUName            string            `yaml:"skuName" json:"skuName"`
	SKUCapacity        int               `yaml:"skuCapacity" json:"skuCapacity"`
	PublisherName      string            `yaml:"publisherName" json:"publisherName"`
	PublisherEmail     string            `yaml:"publisherEmail" json:"publisherEmail"`
	VnetName           string            `yaml:"vnetName" json:"vnetName"`
	SubnetName         string            `yaml:"subnetName" json:"subnetName"`
	EnableSelfHosted   bool              `yaml:"enableSelfHostedGateway" json:"enableSelfHostedGateway"`
	Tags               map[string]string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// ProvisionResult carries the identifiers later stages consume.
type ProvisionResult struct {
	ServiceResourceID string
	NetworkResourceID string
}

// Provisioner applies or destroys a whole environment idempotently.
type Provisioner interface {
	// Apply creates or updates the environment described by params.
	// Re-applying unchanged params converges to the same state.
	Apply(ctx context.Context, params EnvironmentParams) (*ProvisionResult, error)
	// Destroy tears the environment down.
	Destroy(ctx context.Context, params EnvironmentParams) error
	// Exists reports whether the environment's resource group is present.
	Exists(ctx context.Context, params EnvironmentParams) (bool, error)
}
