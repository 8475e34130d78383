package auth

import (
	"context"
	"time"

	"github.com/go-go-golems/deckhand/pkg/api"
	"github.com/go-go-golems/deckhand/pkg/persistence/clientstore"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const credentialVersion = 1

// credential is the token and the cached user, stored as one value so both
// always change together.
type credential struct {
	Token string    `json:"token"`
	User  *api.User `json:"user"`
}

// loadCredential returns the stored credential. A missing value yields
// (nil, nil); an unreadable one yields (nil, err wrapping clientstore.ErrCorrupt).
func loadCredential(ctx context.Context, store clientstore.Store) (*credential, error) {
	raw, ok, err := store.Get(ctx, clientstore.KeyCredential)
	if err != nil {
		return nil, errors.Wrap(err, "read credential")
	}
	if !ok {
		return nil, nil
	}
	c, err := clientstore.DecodeVersioned[*credential](raw, credentialVersion, nil)
	if err != nil {
		return nil, err
	}
	if c == nil || c.Token == "" || c.User == nil {
		return nil, errors.Wrap(clientstore.ErrCorrupt, "credential without token or user")
	}
	return c, nil
}

func saveCredential(ctx context.Context, store clientstore.Store, c credential) error {
	raw, err := clientstore.EncodeVersioned(credentialVersion, c)
	if err != nil {
		return err
	}
	return errors.Wrap(store.Set(ctx, clientstore.KeyCredential, raw), "write credential")
}

func clearCredential(ctx context.Context, store clientstore.Store) error {
	return errors.Wrap(store.Delete(ctx, clientstore.KeyCredential), "clear credential")
}

// tokenExpired reports whether token is a JWT whose exp claim lies before now.
// Opaque tokens and JWTs without exp are never considered expired here.
func tokenExpired(token string, now time.Time) bool {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}
