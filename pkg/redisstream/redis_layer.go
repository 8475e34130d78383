package redisstream

import (
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
)

const Slug = "redis"

const DefaultStream = "deckhand.events"

// Settings holds Redis configuration shared by the client store and the
// Redis Streams event transport.
type Settings struct {
	Addr     string `glazed:"redis-addr"`
	Stream   string `glazed:"redis-stream"`
	Group    string `glazed:"redis-group"`
	Consumer string `glazed:"redis-consumer"`
}

// NewParameterLayer returns a section definition for Redis settings.
func NewParameterLayer() (schema.Section, error) {
	return schema.NewSection(
		Slug,
		"Redis configuration for the shared store and Watermill Redis Streams",
		schema.WithFields(
			fields.New("redis-addr", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Redis address host:port")),
			fields.New("redis-stream", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Redis stream carrying deckhand events")),
			fields.New("redis-group", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Redis consumer group (empty: every process sees every event)")),
			fields.New("redis-consumer", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Redis consumer name within the group")),
		),
	)
}

func (s Settings) StreamOrDefault() string {
	if s.Stream == "" {
		return DefaultStream
	}
	return s.Stream
}
