// Package busconfig types the bus-wide and per-transport configuration
// surface. It only describes shapes: loading a Config from a file, env, or
// remote source is the host's job, not this package's.
package busconfig

import (
	"time"

	"github.com/xraph/eventbus/naming"
	"github.com/xraph/eventbus/registry"
)

// Config is the bus-wide configuration surface. Each transport's own
// connection strings and credentials live in its own package, keyed here
// only by name.
type Config struct {
	Naming NamingConfig `yaml:"naming"`

	EmptyResultsDelay             time.Duration `yaml:"empty_results_delay"`
	DefaultUnhandledErrorBehavior string        `yaml:"default_unhandled_error_behavior"`
	EnableEntityCreation          bool          `yaml:"enable_entity_creation"`
	DefaultSerializer             string        `yaml:"default_serializer"`

	ShutdownGracePeriod time.Duration `yaml:"shutdown_grace_period"`
	EnableTracing       bool          `yaml:"enable_tracing"`
	EnableMetrics       bool          `yaml:"enable_metrics"`

	HostInfo HostInfoConfig `yaml:"host_info"`

	Transports map[string]TransportConfig `yaml:"transports"`
}

// NamingConfig mirrors naming.Config with yaml tags, so a host can decode it
// straight out of a config file and convert with ToNamingConfig.
type NamingConfig struct {
	Scope              string `yaml:"scope"`
	Convention         string `yaml:"convention"` // kebab, snake, dot
	UseFullTypeNames   bool   `yaml:"use_full_type_names"`
	ConsumerNameSource string `yaml:"consumer_name_source"` // type-name, prefix, prefix-and-type-name
	ConsumerNamePrefix string `yaml:"consumer_name_prefix"`
	SuffixConsumerName bool   `yaml:"suffix_consumer_name"`
}

// ToNamingConfig converts the yaml-friendly shape into naming.Config.
func (n NamingConfig) ToNamingConfig() naming.Config {
	cfg := naming.Config{
		Scope:              n.Scope,
		UseFullTypeNames:   n.UseFullTypeNames,
		ConsumerNamePrefix: n.ConsumerNamePrefix,
		SuffixConsumerName: n.SuffixConsumerName,
	}

	switch n.Convention {
	case "snake":
		cfg.Convention = naming.SnakeCase
	case "dot":
		cfg.Convention = naming.DotCase
	default:
		cfg.Convention = naming.KebabCase
	}

	switch n.ConsumerNameSource {
	case "prefix":
		cfg.ConsumerNameSource = naming.ConsumerPrefix
	case "prefix-and-type-name":
		cfg.ConsumerNameSource = naming.ConsumerPrefixAndTypeName
	default:
		cfg.ConsumerNameSource = naming.ConsumerTypeName
	}

	return cfg
}

// HostInfoConfig is the yaml-decodable shape of core.HostInfo.
type HostInfoConfig struct {
	ApplicationName    string `yaml:"application_name"`
	ApplicationVersion string `yaml:"application_version"`
	EnvironmentName    string `yaml:"environment_name"`
	LibraryVersion     string `yaml:"library_version"`
}

// TransportConfig holds the settings shared by every transport; broker
// packages define their own connection-string/credential structs and embed
// this one.
type TransportConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
}

// DefaultConfig returns the configuration a bare-bones host can start from:
// kebab-case naming with no scope, one-second empty-poll backoff,
// dead-letter on consumer error, JSON serialization, no entity creation, a
// ten-second shutdown grace period, tracing and metrics both on.
func DefaultConfig() Config {
	return Config{
		Naming: NamingConfig{
			Convention:         "kebab",
			ConsumerNameSource: "type-name",
		},
		EmptyResultsDelay:             time.Second,
		DefaultUnhandledErrorBehavior: "deadletter",
		DefaultSerializer:             "json",
		ShutdownGracePeriod:           10 * time.Second,
		EnableTracing:                 true,
		EnableMetrics:                 true,
		Transports:                    make(map[string]TransportConfig),
	}
}

// ToErrorBehavior converts the configured default behavior name to a
// registry.ErrorBehavior, falling back to deadletter for an unrecognized or
// empty value.
func (c Config) ToErrorBehavior() registry.ErrorBehavior {
	switch c.DefaultUnhandledErrorBehavior {
	case "discard":
		return registry.BehaviorDiscard
	case "fail":
		return registry.BehaviorFail
	default:
		return registry.BehaviorDeadletter
	}
}
