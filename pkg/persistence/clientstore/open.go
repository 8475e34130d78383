package clientstore

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Settings selects and configures a Store backend.
type Settings struct {
	Backend        string
	Path           string
	RedisAddr      string
	RedisNamespace string
}

// Open builds the configured Store. For the sqlite backend the parent directory
// of Path is created when missing.
func Open(settings Settings) (Store, error) {
	switch strings.TrimSpace(settings.Backend) {
	case "", BackendSQLite:
		path := strings.TrimSpace(settings.Path)
		if path == "" {
			return nil, errors.New("client store: sqlite backend needs a path")
		}
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, errors.Wrap(err, "create client store dir")
			}
		}
		dsn, err := SQLiteDSNForFile(path)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(dsn)
	case BackendMemory:
		return NewInMemoryStore(), nil
	case BackendRedis:
		return NewRedisStore(settings.RedisAddr, settings.RedisNamespace)
	default:
		return nil, errors.Errorf("client store: unknown backend %q", settings.Backend)
	}
}
