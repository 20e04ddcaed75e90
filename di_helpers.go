package eventbus

import "github.com/xraph/vessel"

// Inject resolves a dependency of type T from c, matching the resolution
// registry.Store's dispatch closures use to pull a consumer instance out of
// a per-message scope.
func Inject[T any](c Container) (T, error) {
	return vessel.Inject[T](c)
}

// MustInject resolves T from c or panics. Only appropriate during host
// startup, never inside a dispatch closure.
func MustInject[T any](c Container) T {
	return vessel.MustInject[T](c)
}

// Provide registers a constructor with the container, resolving its
// parameters and registering its (non-error) return values by type.
func Provide(c Container, constructor any, opts ...vessel.ConstructorOption) error {
	return vessel.Provide(c, constructor, opts...)
}

// ProvideValue registers a pre-built instance as a singleton, resolvable by
// its own type with Inject.
func ProvideValue[T any](c Container, value T) error {
	return vessel.ProvideValue(c, value)
}

// ProvideScoped registers factory so the container creates one instance of
// T per Scope opened with NewScope; this is how consumer types reach the
// per-message scope that registry.RegisterConsumer's dispatch closure
// resolves them from.
func ProvideScoped[T any](c Container, factory func() (T, error)) error {
	return vessel.Provide(c, factory, vessel.AsScoped())
}
