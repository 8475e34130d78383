package clientstore

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// ErrCorrupt reports a stored value that could not be decoded. Callers fail open
// on it: the default value returned alongside is safe to use.
var ErrCorrupt = errors.New("clientstore: corrupt value")

type envelope struct {
	Version int             `json:"v"`
	Data    json.RawMessage `json:"data"`
}

// EncodeVersioned wraps data into a versioned envelope.
func EncodeVersioned(version int, data any) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", errors.Wrap(err, "clientstore: encode data")
	}
	b, err := json.Marshal(envelope{Version: version, Data: raw})
	if err != nil {
		return "", errors.Wrap(err, "clientstore: encode envelope")
	}
	return string(b), nil
}

// VersionOf returns the envelope version of raw, or 0 when raw is not an
// envelope.
func VersionOf(raw string) int {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return 0
	}
	return env.Version
}

// DecodeVersioned parses a versioned envelope produced by EncodeVersioned.
// On any failure it returns def together with an error wrapping ErrCorrupt.
func DecodeVersioned[T any](raw string, version int, def T) (T, error) {
	if strings.TrimSpace(raw) == "" {
		return def, errors.Wrap(ErrCorrupt, "empty value")
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return def, errors.Wrapf(ErrCorrupt, "envelope: %v", err)
	}
	if env.Version != version {
		return def, errors.Wrapf(ErrCorrupt, "version %d, want %d", env.Version, version)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return def, errors.Wrap(ErrCorrupt, "missing data")
	}
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return def, errors.Wrapf(ErrCorrupt, "data: %v", err)
	}
	return out, nil
}
