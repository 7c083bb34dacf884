package apimanager

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// This file defines the Go structs that map directly to the structure of the
// declarative API configuration document. The same structs carry both the
// `yaml:"..."` and `json:"..."` tags so the two surface syntaxes decode to an
// identical in-memory shape.

// ApiFormat identifies the specification document format for an API.
type ApiFormat string

const (
	FormatOpenAPIJSON ApiFormat = "openapi-json"
	FormatOpenAPIYAML ApiFormat = "openapi-yaml"
	FormatSwaggerJSON ApiFormat = "swagger-json"
	FormatSwaggerYAML ApiFormat = "swagger-yaml"
	FormatWSDL        ApiFormat = "wsdl"
	FormatWSDLLink    ApiFormat = "wsdl-link"
)

// IsLink reports whether the format references the spec by URL rather than by
// inline content.
func (f ApiFormat) IsLink() bool {
	return strings.HasSuffix(string(f), "-link")
}

// ApiType identifies the protocol style of an API.
type ApiType string

const (
	ApiTypeHTTP      ApiType = "http"
	ApiTypeSoap      ApiType = "soap"
	ApiTypeWebsocket ApiType = "websocket"
	ApiTypeGraphQL   ApiType = "graphql"
)

// Protocol is a transport protocol an API is published on.
type Protocol string

const (
	ProtocolHTTPS Protocol = "https"
	ProtocolHTTP  Protocol = "http"
	ProtocolWS    Protocol = "ws"
	ProtocolWSS   Protocol = "wss"
)

const (
	// DefaultProduct is the sentinel product every API joins unless the
	// config says otherwise.
	DefaultProduct = "unlimited"
	// ManagedGateway is the sentinel name for the platform-managed ingress.
	// It is never existence-checked before deployment.
	ManagedGateway = "managed"
)

// PolicyRules holds the optional per-API policy fragments, one rule list per
// policy section.
type PolicyRules struct {
	Inbound  []string `yaml:"inbound,omitempty" json:"inbound,omitempty"`
	Outbound []string `yaml:"outbound,omitempty" json:"outbound,omitempty"`
	Backend  []string `yaml:"backend,omitempty" json:"backend,omitempty"`
	OnError  []string `yaml:"onError,omitempty" json:"onError,omitempty"`
}

// IsEmpty reports whether no section carries any rules.
func (p *PolicyRules) IsEmpty() bool {
	if p == nil {
		return true
	}
	return len(p.Inbound) == 0 && len(p.Outbound) == 0 && len(p.Backend) == 0 && len(p.OnError) == 0
}

// ApiDefinition is the desired-state description of one API to publish.
// Instances are built once per run by the ConfigLoader and are immutable
// afterwards.
type ApiDefinition struct {
	ApiID                string       `yaml:"apiId" json:"apiId"`
	DisplayName          string       `yaml:"displayName" json:"displayName"`
	Path                 string       `yaml:"path" json:"path"`
	SpecPath             string       `yaml:"specPath" json:"specPath"`
	Format               ApiFormat    `yaml:"format,omitempty" json:"format,omitempty"`
	ServiceURL           string       `yaml:"serviceUrl,omitempty" json:"serviceUrl,omitempty"`
	Protocols            []Protocol   `yaml:"protocols,omitempty" json:"protocols,omitempty"`
	SubscriptionRequired bool         `yaml:"subscriptionRequired,omitempty" json:"subscriptionRequired,omitempty"`
	ProductIDs           []string     `yaml:"productIds,omitempty" json:"productIds,omitempty"`
	GatewayNames         []string     `yaml:"gatewayNames,omitempty" json:"gatewayNames,omitempty"`
	Tags                 []string     `yaml:"tags,omitempty" json:"tags,omitempty"`
	ApiType              ApiType      `yaml:"apiType,omitempty" json:"apiType,omitempty"`
	Policies             *PolicyRules `yaml:"policies,omitempty" json:"policies,omitempty"`
}

// RemoteApiSnapshot is the observed state of one deployed API, fetched fresh
// each run and never cached across runs.
type RemoteApiSnapshot struct {
	ApiID       string
	DisplayName string
	Path        string
	ServiceURL  string
	Revision    string
}

// SyncAction is the classification tag for one ApiDefinition.
type SyncAction string

const (
	ActionCreate    SyncAction = "create"
	ActionUpdate    SyncAction = "update"
	ActionUnchanged SyncAction = "unchanged"
)

// SyncDecision is the per-API result of change classification. Reason is a
// human-readable note naming the diverged field; branching happens on Action
// only.
type SyncDecision struct {
	ApiID  string
	Action SyncAction
	Reason string
}

// OutcomeStatus tags the terminal state of one per-API operation.
type OutcomeStatus string

const (
	StatusDeployed  OutcomeStatus = "deployed"
	StatusUnchanged OutcomeStatus = "unchanged"
	StatusFailed    OutcomeStatus = "failed"
	StatusSkipped   OutcomeStatus = "skipped"
	StatusDeleted   OutcomeStatus = "deleted"
)

// DeploymentOutcome is the result of one executor or deleter invocation.
type DeploymentOutcome struct {
	ApiID  string
	Status OutcomeStatus
	Reason string
	Err    error
}

// RunSummary aggregates per-API outcomes into ordered buckets for operator
// output and exit-status determination.
type RunSummary struct {
	Environment string
	Total       int
	Deployed    []DeploymentOutcome
	Unchanged   []DeploymentOutcome
	Deleted     []DeploymentOutcome
	Skipped     []DeploymentOutcome
	Failed      []DeploymentOutcome
	Duration    time.Duration
	DryRun      bool
}

// formatForSpecPath infers an ApiFormat from the spec document's extension.
func formatForSpecPath(specPath string) ApiFormat {
	switch strings.ToLower(filepath.Ext(specPath)) {
	case ".json":
		return FormatOpenAPIJSON
	case ".yaml", ".yml":
		return FormatOpenAPIYAML
	case ".wsdl", ".xml":
		return FormatWSDL
	default:
		return FormatOpenAPIJSON
	}
}

// formatMatchesExtension reports whether the declared format is plausible for
// the spec document's extension. A mismatch is a warning, never a failure.
func formatMatchesExtension(format ApiFormat, specPath string) bool {
	if format.IsLink() {
		return true
	}
	ext := strings.ToLower(filepath.Ext(specPath))
	switch format {
	case FormatOpenAPIJSON, FormatSwaggerJSON:
		return ext == ".json"
	case FormatOpenAPIYAML, FormatSwaggerYAML:
		return ext == ".yaml" || ext == ".yml"
	case FormatWSDL:
		return ext == ".wsdl" || ext == ".xml"
	default:
		return true
	}
}

// applyDefinitionDefaults populates optional fields with the documented
// defaults.
func applyDefinitionDefaults(def *ApiDefinition) {
	if len(def.Protocols) == 0 {
		def.Protocols = []Protocol{ProtocolHTTPS}
	}
	if len(def.ProductIDs) == 0 {
		def.ProductIDs = []string{DefaultProduct}
	}
	if len(def.GatewayNames) == 0 {
		def.GatewayNames = []string{ManagedGateway}
	}
	if def.ApiType == "" {
		def.ApiType = ApiTypeHTTP
	}
	if def.Format == "" {
		def.Format = formatForSpecPath(def.SpecPath)
	}
}

// validateDefinition checks the fields that must be present before any remote
// call is attempted.
func validateDefinition(def *ApiDefinition, index int) error {
	for _, field := range []struct {
		name, value string
	}{
		{"apiId", def.ApiID},
		{"displayName", def.DisplayName},
		{"path", def.Path},
		{"specPath", def.SpecPath},
	} {
		if field.value == "" {
			return &ConfigError{
				Kind:   ConfigErrMissingField,
				Detail: fmt.Sprintf("entry %d is missing required field '%s'", index, field.name),
			}
		}
	}
	return nil
}
