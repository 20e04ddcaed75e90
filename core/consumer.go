package core

import "context"

// Consumer is implemented by application code that wants to handle one
// event type. RegisterConsumer captures T and C at registration time, so
// the receive loop never needs reflection to find this method.
type Consumer[T any] interface {
	Consume(ctx context.Context, ec *EventContext[T]) error
}

// ConsumerFunc adapts a plain function to Consumer.
type ConsumerFunc[T any] func(ctx context.Context, ec *EventContext[T]) error

// Consume implements Consumer.
func (f ConsumerFunc[T]) Consume(ctx context.Context, ec *EventContext[T]) error {
	return f(ctx, ec)
}
