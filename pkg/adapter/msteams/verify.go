package msteams

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
)

const (
	botFrameworkIssuer  = "https://api.botframework.com"
	botFrameworkJWKSURL = "https://login.botframework.com/v1/.well-known/keys"
)

// KeySetProvider resolves the JWKS used to validate inbound Bot Framework
// tokens. The default fetches and caches Microsoft's published keys;
// tests inject a locally generated set.
type KeySetProvider func(ctx context.Context) (jwk.Set, error)

func defaultKeySetProvider() KeySetProvider {
	cache := jwk.NewCache(context.Background())
	_ = cache.Register(botFrameworkJWKSURL, jwk.WithMinRefreshInterval(time.Hour))
	return func(ctx context.Context) (jwk.Set, error) {
		set, err := cache.Get(ctx, botFrameworkJWKSURL)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to fetch bot framework JWKS")
		}
		return set, nil
	}
}

// verifyToken validates the Authorization bearer token: signature against
// the published keys, issuer, audience (the bot's app ID) and expiry.
func (x *Adapter) verifyToken(ctx context.Context, header http.Header) error {
	auth := header.Get("Authorization")
	if auth == "" {
		return goerr.New("missing authorization header", goerr.T(types.TagAuth))
	}
	raw, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return goerr.New("authorization header is not a bearer token", goerr.T(types.TagAuth))
	}

	keySet, err := x.keySet(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to resolve verification keys", goerr.T(types.TagAuth))
	}

	_, err = jwt.Parse([]byte(raw),
		jwt.WithKeySet(keySet),
		jwt.WithValidate(true),
		jwt.WithIssuer(x.issuer),
		jwt.WithAudience(x.appID),
		jwt.WithClock(jwt.ClockFunc(x.now)),
	)
	if err != nil {
		return goerr.Wrap(err, "invalid bearer token", goerr.T(types.TagAuth))
	}
	return nil
}
