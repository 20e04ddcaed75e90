// Package eventbus provides the dependency-injection aliases shared across
// the registry, transport, bus, and publisher packages. The bus never reads
// configuration or builds its own container: hosts pass one in.
package eventbus

import (
	"github.com/xraph/vessel"
)

// Container provides dependency injection with lifecycle management. The
// bus opens a Scope from it for every consumed message; publishing opens no
// scope and resolves serializers from the serializer registry.
type Container = vessel.Vessel

// Scope represents a lifetime scope for scoped services, opened once per
// consumed message for consumer resolution and closed when that dispatch
// completes.
type Scope = vessel.Scope

// Factory creates a service instance.
type Factory = vessel.Factory

// ServiceInfo contains diagnostic information.
type ServiceInfo = vessel.ServiceInfo

// NewContainer creates a new DI container for hosts that have none of their
// own; most hosts will instead pass an existing container into New.
func NewContainer() Container {
	return vessel.New()
}
