package busconfig_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xraph/eventbus/busconfig"
	"github.com/xraph/eventbus/naming"
	"github.com/xraph/eventbus/registry"
)

func TestNamingConfig_ToNamingConfig_Conventions(t *testing.T) {
	cases := map[string]naming.Convention{
		"kebab": naming.KebabCase,
		"snake": naming.SnakeCase,
		"dot":   naming.DotCase,
		"":      naming.KebabCase,
	}
	for input, want := range cases {
		cfg := busconfig.NamingConfig{Convention: input}
		assert.Equal(t, want, cfg.ToNamingConfig().Convention)
	}
}

func TestNamingConfig_ToNamingConfig_ConsumerNameSources(t *testing.T) {
	cases := map[string]naming.ConsumerNameSource{
		"type-name":            naming.ConsumerTypeName,
		"prefix":               naming.ConsumerPrefix,
		"prefix-and-type-name": naming.ConsumerPrefixAndTypeName,
		"":                     naming.ConsumerTypeName,
	}
	for input, want := range cases {
		cfg := busconfig.NamingConfig{ConsumerNameSource: input}
		assert.Equal(t, want, cfg.ToNamingConfig().ConsumerNameSource)
	}
}

func TestConfig_ToErrorBehavior(t *testing.T) {
	assert.Equal(t, registry.BehaviorDiscard, busconfig.Config{DefaultUnhandledErrorBehavior: "discard"}.ToErrorBehavior())
	assert.Equal(t, registry.BehaviorFail, busconfig.Config{DefaultUnhandledErrorBehavior: "fail"}.ToErrorBehavior())
	assert.Equal(t, registry.BehaviorDeadletter, busconfig.Config{DefaultUnhandledErrorBehavior: "unknown"}.ToErrorBehavior())
}

func TestDefaultConfig(t *testing.T) {
	cfg := busconfig.DefaultConfig()
	assert.Equal(t, "json", cfg.DefaultSerializer)
	assert.True(t, cfg.EnableTracing)
	assert.True(t, cfg.EnableMetrics)
	assert.NotNil(t, cfg.Transports)
}
