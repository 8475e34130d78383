// Package config resolves deckhand settings from flags, the config file,
// DECKHAND_* environment variables and a .env file.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-go-golems/deckhand/pkg/api"
	"github.com/go-go-golems/deckhand/pkg/persistence/clientstore"
	"github.com/go-go-golems/deckhand/pkg/redisstream"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	Slug      = "deckhand"
	EnvPrefix = "DECKHAND"

	EventsMemory = "memory"
	EventsRedis  = "redis"

	DefaultStorePath   = "~/.deckhand/deckhand.db"
	DefaultRedisPrefix = "deckhand"
)

// Settings is the resolved application configuration.
type Settings struct {
	BaseURL     string `glazed:"base-url"`
	Timeout     string `glazed:"timeout"`
	Store       string `glazed:"store"`
	StorePath   string `glazed:"store-path"`
	RedisPrefix string `glazed:"redis-prefix"`
	Events      string `glazed:"events"`
	HistorySync bool   `glazed:"history-sync"`

	Redis redisstream.Settings
}

// NewSection declares the deckhand flags. Defaults are left empty so values
// from the config file and environment can fill them in Resolve.
func NewSection() (schema.Section, error) {
	return schema.NewSection(
		Slug,
		"deckhand backend and storage settings",
		schema.WithFields(
			fields.New("base-url", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Backend base URL (default "+api.DefaultBaseURL+")")),
			fields.New("timeout", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Backend request timeout, e.g. 10s")),
			fields.New("store", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Client store backend: sqlite, memory or redis")),
			fields.New("store-path", fields.TypeString, fields.WithDefault(""), fields.WithHelp("SQLite client store file (default "+DefaultStorePath+")")),
			fields.New("redis-prefix", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Key prefix for the redis client store")),
			fields.New("events", fields.TypeString, fields.WithDefault(""), fields.WithHelp("Event transport: memory or redis")),
			fields.New("history-sync", fields.TypeBool, fields.WithDefault(false), fields.WithHelp("Mirror chat sessions to the backend chat history")),
		),
	)
}

// Sections returns every section a deckhand command needs.
func Sections() ([]schema.Section, error) {
	deckhand, err := NewSection()
	if err != nil {
		return nil, err
	}
	redis, err := redisstream.NewParameterLayer()
	if err != nil {
		return nil, err
	}
	return []schema.Section{deckhand, redis}, nil
}

// ConfigureViper sets built-in defaults and DECKHAND_* environment lookup.
func ConfigureViper(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("base-url", api.DefaultBaseURL)
	v.SetDefault("timeout", api.DefaultTimeout.String())
	v.SetDefault("store", clientstore.BackendSQLite)
	v.SetDefault("store-path", DefaultStorePath)
	v.SetDefault("redis-prefix", DefaultRedisPrefix)
	v.SetDefault("events", EventsMemory)
	v.SetDefault("redis-addr", "localhost:6379")
	v.SetDefault("redis-stream", redisstream.DefaultStream)
}

// ReadConfigFile loads config.yaml from dirs into v, by default from
// ~/.deckhand and the user config directory. A missing file is not an error.
func ReadConfigFile(v *viper.Viper, dirs ...string) error {
	if len(dirs) == 0 {
		dirs = append(dirs, "$HOME/."+Slug)
		if d, err := os.UserConfigDir(); err == nil {
			dirs = append(dirs, filepath.Join(d, Slug))
		}
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, d := range dirs {
		v.AddConfigPath(d)
	}
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return errors.Wrap(err, "read config file")
	}
	return nil
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are skipped; existing variables win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return errors.Wrapf(err, "load %s", p)
		}
	}
	return nil
}

// FromValues decodes parsed command values, fills gaps from v and validates.
func FromValues(parsed *values.Values, v *viper.Viper) (*Settings, error) {
	s := &Settings{}
	if err := parsed.DecodeSectionInto(Slug, s); err != nil {
		return nil, errors.Wrap(err, "decode deckhand settings")
	}
	if err := parsed.DecodeSectionInto(redisstream.Slug, &s.Redis); err != nil {
		return nil, errors.Wrap(err, "decode redis settings")
	}
	if err := s.Resolve(v); err != nil {
		return nil, err
	}
	return s, nil
}

// Resolve fills empty fields from v (config file, environment, defaults),
// expands ~ in paths and validates the result.
func (s *Settings) Resolve(v *viper.Viper) error {
	fill := func(dst *string, key string) {
		if strings.TrimSpace(*dst) == "" && v != nil {
			*dst = v.GetString(key)
		}
	}
	fill(&s.BaseURL, "base-url")
	fill(&s.Timeout, "timeout")
	fill(&s.Store, "store")
	fill(&s.StorePath, "store-path")
	fill(&s.RedisPrefix, "redis-prefix")
	fill(&s.Events, "events")
	fill(&s.Redis.Addr, "redis-addr")
	fill(&s.Redis.Stream, "redis-stream")
	fill(&s.Redis.Group, "redis-group")
	fill(&s.Redis.Consumer, "redis-consumer")
	if !s.HistorySync && v != nil {
		s.HistorySync = v.GetBool("history-sync")
	}

	if s.StorePath != "" {
		p, err := homedir.Expand(s.StorePath)
		if err != nil {
			return errors.Wrap(err, "expand store-path")
		}
		s.StorePath = p
	}
	return s.Validate()
}

// Validate checks that the settings are usable.
func (s *Settings) Validate() error {
	if _, err := api.ValidateBaseURL(s.BaseURL); err != nil {
		return err
	}
	if _, err := s.TimeoutDuration(); err != nil {
		return err
	}
	switch s.Store {
	case clientstore.BackendSQLite:
		if s.StorePath == "" {
			return errors.New("store-path cannot be empty for the sqlite store")
		}
	case clientstore.BackendMemory:
	case clientstore.BackendRedis:
		if s.Redis.Addr == "" {
			return errors.New("redis-addr is required for the redis store")
		}
	default:
		return errors.Errorf("store must be sqlite, memory or redis, got %q", s.Store)
	}
	switch s.Events {
	case EventsMemory:
	case EventsRedis:
		if s.Redis.Addr == "" {
			return errors.New("redis-addr is required for redis events")
		}
	default:
		return errors.Errorf("events must be memory or redis, got %q", s.Events)
	}
	return nil
}

func (s *Settings) TimeoutDuration() (time.Duration, error) {
	if s.Timeout == "" {
		return api.DefaultTimeout, nil
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid timeout %q", s.Timeout)
	}
	if d <= 0 {
		return 0, errors.Errorf("timeout must be > 0, got %s", d)
	}
	return d, nil
}

func (s *Settings) StoreSettings() clientstore.Settings {
	return clientstore.Settings{
		Backend:        s.Store,
		Path:           s.StorePath,
		RedisAddr:      s.Redis.Addr,
		RedisNamespace: s.RedisPrefix,
	}
}
