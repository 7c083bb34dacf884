package apimanager

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// candidate document names tried, in order, when Load is given a directory.
// YAML is preferred as the more human-friendly surface.
var discoveryCandidates = []string{"apis.yaml", "apis.yml", "apis.json"}

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadResult is the normalized output of one load: the definitions plus any
// non-fatal validation warnings collected along the way.
type LoadResult struct {
	Apis     []ApiDefinition
	Warnings []string
}

// ConfigLoader reads a declarative list of API definitions from a structured
// document. Substitution values are injected explicitly rather than read from
// ambient process state, keeping loads deterministic and testable.
type ConfigLoader struct {
	env    map[string]string
	logger zerolog.Logger
}

// NewConfigLoader creates a loader that substitutes ${NAME} placeholders from
// the given key/value mapping.
func NewConfigLoader(env map[string]string, logger zerolog.Logger) *ConfigLoader {
	if env == nil {
		env = map[string]string{}
	}
	return &ConfigLoader{
		env:    env,
		logger: logger.With().Str("component", "ConfigLoader").Logger(),
	}
}

// EnvironMap converts os.Environ-style "KEY=VALUE" pairs into the mapping the
// loader consumes.
func EnvironMap(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// Load reads, substitutes, defaults, and validates the API configuration
// document at path. Path may be a directory, in which case a canonical
// document name is auto-discovered. All failures are fatal ConfigErrors; they
// occur before any remote call.
func (l *ConfigLoader) Load(path string) (*LoadResult, error) {
	resolved, err := l.resolvePath(path)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(resolved)
	if err != nil {
		return nil, &ConfigError{Kind: ConfigErrSyntax, Path: resolved, Detail: "cannot read document", Err: err}
	}

	defs, err := decodeDocument(resolved, raw)
	if err != nil {
		return nil, err
	}

	result := &LoadResult{Apis: defs}
	seen := make(map[string]bool, len(defs))
	for i := range result.Apis {
		def := &result.Apis[i]
		l.substituteDefinition(def, result)

		if err := validateDefinition(def, i); err != nil {
			cfgErr := err.(*ConfigError)
			cfgErr.Path = resolved
			return nil, cfgErr
		}
		if seen[def.ApiID] {
			return nil, &ConfigError{
				Kind:   ConfigErrSyntax,
				Path:   resolved,
				Detail: fmt.Sprintf("duplicate apiId '%s'", def.ApiID),
			}
		}
		seen[def.ApiID] = true

		applyDefinitionDefaults(def)

		if !formatMatchesExtension(def.Format, def.SpecPath) {
			l.warn(result, fmt.Sprintf("api '%s': format '%s' does not match spec extension of '%s'", def.ApiID, def.Format, def.SpecPath))
		}
	}

	l.logger.Info().Int("count", len(result.Apis)).Str("path", resolved).Msg("Loaded API definitions.")
	return result, nil
}

// resolvePath handles directory auto-discovery.
func (l *ConfigLoader) resolvePath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", &ConfigError{Kind: ConfigErrSyntax, Path: path, Detail: "document not found", Err: err}
	}
	if !info.IsDir() {
		return path, nil
	}
	for _, name := range discoveryCandidates {
		candidate := filepath.Join(path, name)
		if _, statErr := os.Stat(candidate); statErr == nil {
			return candidate, nil
		}
	}
	return "", &ConfigError{
		Kind:   ConfigErrSyntax,
		Path:   path,
		Detail: fmt.Sprintf("no API configuration document found (tried %s)", strings.Join(discoveryCandidates, ", ")),
	}
}

// decodeDocument picks a decoder by extension, sniffing the first non-blank
// line when the extension is ambiguous, and enforces that the root is a list.
func decodeDocument(path string, raw []byte) ([]ApiDefinition, error) {
	useJSON := false
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		useJSON = true
	case ".yaml", ".yml":
		useJSON = false
	default:
		useJSON = sniffJSON(raw)
	}

	if useJSON {
		var probe interface{}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, &ConfigError{Kind: ConfigErrSyntax, Path: path, Err: err}
		}
		if _, ok := probe.([]interface{}); !ok {
			return nil, &ConfigError{Kind: ConfigErrNotAList, Path: path, Detail: "document root must be a list of API definitions"}
		}
		var defs []ApiDefinition
		if err := json.Unmarshal(raw, &defs); err != nil {
			return nil, &ConfigError{Kind: ConfigErrSyntax, Path: path, Err: err}
		}
		return defs, nil
	}

	var probe interface{}
	if err := yaml.Unmarshal(raw, &probe); err != nil {
		return nil, &ConfigError{Kind: ConfigErrSyntax, Path: path, Err: err}
	}
	if _, ok := probe.([]interface{}); !ok {
		return nil, &ConfigError{Kind: ConfigErrNotAList, Path: path, Detail: "document root must be a list of API definitions"}
	}
	var defs []ApiDefinition
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return nil, &ConfigError{Kind: ConfigErrSyntax, Path: path, Err: err}
	}
	return defs, nil
}

// sniffJSON inspects the first non-blank line: a '{' or '[' opener marks the
// structured-object syntax, anything else the list syntax.
func sniffJSON(raw []byte) bool {
	for _, line := range strings.Split(string(raw), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		return trimmed[0] == '{' || trimmed[0] == '['
	}
	return false
}

// substituteDefinition applies placeholder substitution to every string field
// an operator may parameterize.
func (l *ConfigLoader) substituteDefinition(def *ApiDefinition, result *LoadResult) {
	def.DisplayName = l.substitute(def.DisplayName, result)
	def.Path = l.substitute(def.Path, result)
	def.SpecPath = l.substitute(def.SpecPath, result)
	def.ServiceURL = l.substitute(def.ServiceURL, result)
	for i, p := range def.ProductIDs {
		def.ProductIDs[i] = l.substitute(p, result)
	}
	for i, g := range def.GatewayNames {
		def.GatewayNames[i] = l.substitute(g, result)
	}
	for i, t := range def.Tags {
		def.Tags[i] = l.substitute(t, result)
	}
	if def.Policies != nil {
		for _, section := range [][]string{def.Policies.Inbound, def.Policies.Outbound, def.Policies.Backend, def.Policies.OnError} {
			for i, rule := range section {
				section[i] = l.substitute(rule, result)
			}
		}
	}
}

// substitute replaces every ${NAME} with the mapped value. An unset name
// leaves the placeholder verbatim and emits a warning; some values are
// legitimately optional, so this is operator-visible rather than fatal.
func (l *ConfigLoader) substitute(value string, result *LoadResult) string {
	if !strings.Contains(value, "${") {
		return value
	}
	return placeholderPattern.ReplaceAllStringFunc(value, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if resolved, ok := l.env[name]; ok {
			return resolved
		}
		l.warn(result, fmt.Sprintf("placeholder '%s' is unset, leaving verbatim", match))
		return match
	})
}

func (l *ConfigLoader) warn(result *LoadResult, msg string) {
	l.logger.Warn().Msg(msg)
	result.Warnings = append(result.Warnings, msg)
}
