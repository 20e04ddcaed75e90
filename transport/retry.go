package transport

import "time"

// ExponentialBackoff returns 2^attempt seconds, the reconnect delay used by
// transports whose broker SDK does not already retry for them (RabbitMQ).
// attempt is 0-based: the first retry waits 1s, the second 2s, and so on.
func ExponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	seconds := 1 << uint(attempt)
	return time.Duration(seconds) * time.Second
}
