package apimanager

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrAPINotFound is returned when a deployed API does not exist. The managers
// check for this condition without depending on a specific cloud provider's
// error types. A NotFound on lookup is a normal outcome (a new API), not a
// failure.
var ErrAPINotFound = errors.New("apim: api does not exist")

// ConfigErrorKind classifies a desired-state document failure.
type ConfigErrorKind string

const (
	ConfigErrSyntax       ConfigErrorKind = "syntax"
	ConfigErrMissingField ConfigErrorKind = "missing-required-field"
	ConfigErrNotAList     ConfigErrorKind = "not-a-list"
)

// ConfigError is fatal: it aborts a run before any remote call is made.
type ConfigError struct {
	Kind   ConfigErrorKind
	Path   string
	Detail string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config error (%s)", e.Kind)
	if e.Path != "" {
		msg += " in " + e.Path
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// RemoteErrorKind classifies a control-plane failure.
type RemoteErrorKind string

const (
	RemoteErrUnauthenticated RemoteErrorKind = "unauthenticated"
	RemoteErrNotFound        RemoteErrorKind = "not-found"
	RemoteErrTransient       RemoteErrorKind = "transient"
)

// RemoteError wraps a failure from the remote APIM service. Only
// unauthenticated and service-not-found failures are run-fatal; transient
// failures are tolerated per API.
type RemoteError struct {
	Kind RemoteErrorKind
	Op   string
	Err  error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error (%s) during %s: %v", e.Kind, e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// IsRunFatal reports whether the error means the target service cannot be
// reached at all, in which case processing further APIs is pointless.
func IsRunFatal(err error) bool {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Kind == RemoteErrUnauthenticated || re.Kind == RemoteErrNotFound
	}
	return false
}

// ServiceRef identifies the target APIM service for every remote call.
type ServiceRef struct {
	SubscriptionID string
	ResourceGroup  string
	ServiceName    string
}

func (r ServiceRef) String() string {
	return fmt.Sprintf("%s/%s", r.ResourceGroup, r.ServiceName)
}

// SKUTier is the pricing tier of the target APIM service.
type SKUTier string

// SKUUnknown is used when the tier could not be determined; capability
// restrictions are not applied in that case.
const SKUUnknown SKUTier = ""

// IsV2 reports whether the tier belongs to the V2 family, which does not
// support self-hosted gateway association.
func (s SKUTier) IsV2() bool {
	return strings.HasSuffix(strings.ToLower(string(s)), "v2")
}

// ApiDeploymentParams is the typed parameter set for one create-or-update
// call, merged from defaults, config, and environment substitution. Passing a
// typed object to the client removes the quoting hazards of building command
// strings.
type ApiDeploymentParams struct {
	ApiID                string
	DisplayName          string
	Path                 string
	Format               ApiFormat
	ServiceURL           string // omitted by the client when empty
	Protocols            []Protocol
	SubscriptionRequired bool
	ProductIDs           []string
	GatewayNames         []string
	Tags                 []string
	ApiType              ApiType
	SpecValue            string // inline document content, or the URL for link formats
	Policies             *PolicyRules
}

// APIMClient is the generic contract for the remote APIM control plane. The
// managers orchestrate all operations through this interface; azureapim.go
// provides the Azure Resource Manager implementation.
type APIMClient interface {
	// ListApis returns a snapshot of every deployed API on the service.
	ListApis(ctx context.Context, ref ServiceRef) ([]RemoteApiSnapshot, error)
	// GetApi returns the observed state of one API, or ErrAPINotFound.
	GetApi(ctx context.Context, ref ServiceRef, apiID string) (*RemoteApiSnapshot, error)
	// CreateOrUpdateApi deploys an API. The call is idempotent: the same
	// parameters produce the same remote state and are safe to retry.
	CreateOrUpdateApi(ctx context.Context, ref ServiceRef, params ApiDeploymentParams) error
	// DeleteApi removes a deployed API.
	DeleteApi(ctx context.Context, ref ServiceRef, apiID string) error
	// GatewayExists checks a self-hosted gateway sub-resource.
	GatewayExists(ctx context.Context, ref ServiceRef, gatewayName string) (bool, error)
	// ProductExists checks a product sub-resource.
	ProductExists(ctx context.Context, ref ServiceRef, productID string) (bool, error)
	// ServiceSKU returns the pricing tier of the parent service.
	ServiceSKU(ctx context.Context, ref ServiceRef) (SKUTier, error)
	Close() error
}
