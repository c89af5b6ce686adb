package mq

import "context"

// Publisher sends broker-agnostic messages. The server only ever
// publishes; consumers (mailers, feed builders) live in other
// deployments.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Close() error
}
