package clientstore

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestDecodeVersioned_RoundTrip(t *testing.T) {
	raw, err := EncodeVersioned(2, sample{Name: "a", Count: 3})
	require.NoError(t, err)

	got, err := DecodeVersioned(raw, 2, sample{})
	require.NoError(t, err)
	require.Equal(t, sample{Name: "a", Count: 3}, got)
}

func TestDecodeVersioned_FailsOpen(t *testing.T) {
	def := []sample{}
	wrongVersion, err := EncodeVersioned(1, []sample{{Name: "old"}})
	require.NoError(t, err)

	cases := map[string]string{
		"empty":         "",
		"not json":      "{nope",
		"legacy array":  `[{"name":"x"}]`,
		"wrong version": wrongVersion,
		"null data":     `{"v":2,"data":null}`,
		"wrong shape":   `{"v":2,"data":{"name":"x"}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := DecodeVersioned(raw, 2, def)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrCorrupt))
			require.Equal(t, def, got)
		})
	}
}

func TestVersionOf(t *testing.T) {
	raw, err := EncodeVersioned(3, sample{Name: "a"})
	require.NoError(t, err)
	require.Equal(t, 3, VersionOf(raw))
	require.Equal(t, 0, VersionOf(`[1,2]`))
	require.Equal(t, 0, VersionOf(""))
}
