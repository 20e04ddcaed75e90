package naming

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

type TestEvent1 struct{}
type TestConsumer1 struct{}

func TestEventName_KebabScopeShortNames(t *testing.T) {
	cfg := Config{Scope: "dev", Convention: KebabCase}
	name := EventName(reflect.TypeOf(TestEvent1{}), cfg, "")
	assert.Equal(t, "dev-test-event1", name)
}

func TestEventName_KebabScopeFullNames(t *testing.T) {
	cfg := Config{Scope: "dev", Convention: KebabCase, UseFullTypeNames: true}
	name := EventName(reflect.TypeOf(TestEvent1{}), cfg, "")
	assert.Contains(t, name, "dev-")
	assert.Contains(t, name, "-test-event1")
}

func TestEventName_OverrideIgnoresConvention(t *testing.T) {
	cfg := Config{Convention: SnakeCase}
	name := EventName(reflect.TypeOf(TestEvent1{}), cfg, "sample-event")
	assert.Equal(t, "sample-event", name)
}

func TestConsumerName_PrefixAndTypeNameWithSuffix(t *testing.T) {
	cfg := Config{
		Convention:         KebabCase,
		ConsumerNameSource: ConsumerPrefixAndTypeName,
		ConsumerNamePrefix: "service1",
		SuffixConsumerName: true,
	}
	eventName := EventName(reflect.TypeOf(TestEvent1{}), Config{Convention: KebabCase}, "")
	name := ConsumerName(reflect.TypeOf(TestConsumer1{}), eventName, cfg, "")
	assert.Equal(t, "service1-test-consumer1-test-event1", name)
}

func TestEventName_Idempotent(t *testing.T) {
	cfg := Config{Scope: "dev", Convention: SnakeCase}
	first := EventName(reflect.TypeOf(TestEvent1{}), cfg, "")
	second := EventName(reflect.TypeOf(TestEvent1{}), cfg, "")
	assert.Equal(t, first, second)
}

func TestSanitize_NoInvalidCharacters(t *testing.T) {
	cfg := Config{Scope: "my app!!", Convention: KebabCase}
	name := EventName(reflect.TypeOf(TestEvent1{}), cfg, "")
	for _, r := range name {
		if r != '-' && !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') {
			t.Fatalf("unexpected character %q in %q", r, name)
		}
	}
}
