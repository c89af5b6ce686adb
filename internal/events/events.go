// Package events publishes domain events to the configured broker.
// A nil *Publisher is a no-op, so the server runs without a broker in
// development.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/inkwell-blog/apiserver/internal/mq"
	"github.com/rs/zerolog"
)

// Event channels.
const (
	ChannelUserRegistered = "user.registered"
	ChannelPostPublished  = "post.published"
)

// UserRegistered is emitted after a successful registration. It carries
// no credential material.
type UserRegistered struct {
	UserID   int       `json:"user_id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	At       time.Time `json:"at"`
}

// PostPublished is emitted when a post is created or updated with
// published status.
type PostPublished struct {
	PostID   int       `json:"post_id"`
	AuthorID int       `json:"author_id"`
	Slug     string    `json:"slug"`
	Title    string    `json:"title"`
	At       time.Time `json:"at"`
}

// Publisher serializes events and hands them to the broker. Publish
// failures are logged and swallowed; events are best-effort and must
// never fail the request that produced them.
type Publisher struct {
	backend mq.Publisher
	logger  zerolog.Logger
}

func NewPublisher(backend mq.Publisher, logger zerolog.Logger) *Publisher {
	return &Publisher{backend: backend, logger: logger}
}

func (p *Publisher) UserRegistered(ctx context.Context, event UserRegistered) {
	p.publish(ctx, ChannelUserRegistered, event)
}

func (p *Publisher) PostPublished(ctx context.Context, event PostPublished) {
	p.publish(ctx, ChannelPostPublished, event)
}

func (p *Publisher) Close() error {
	if p == nil || p.backend == nil {
		return nil
	}
	return p.backend.Close()
}

func (p *Publisher) publish(ctx context.Context, channel string, event any) {
	if p == nil || p.backend == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Str("channel", channel).Msg("marshal event")
		return
	}
	if _, err := p.backend.Publish(ctx, channel, data, nil); err != nil {
		p.logger.Warn().Err(err).Str("channel", channel).Msg("publish event")
	}
}
