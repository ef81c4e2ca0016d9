package msteams

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/utils/safe"
)

const (
	defaultTokenURL = "https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token"
	tokenScope      = "https://api.botframework.com/.default"
)

// tokenSource obtains and caches the client-credentials token used for
// outbound connector calls. Refresh happens one minute before expiry.
type tokenSource struct {
	mu         sync.Mutex
	appID      string
	appSecret  string
	tokenURL   string
	httpClient *http.Client
	now        func() time.Time

	token     string
	expiresAt time.Time
}

func (t *tokenSource) get(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && t.now().Before(t.expiresAt.Add(-time.Minute)) {
		return t.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {t.appID},
		"client_secret": {t.appSecret},
		"scope":         {tokenScope},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", goerr.Wrap(err, "failed to build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", goerr.Wrap(err, "token request failed")
	}
	defer safe.Close(ctx, resp.Body)

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", goerr.Wrap(err, "failed to read token response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", goerr.New("token request rejected", goerr.V("status", resp.StatusCode))
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return "", goerr.Wrap(err, "failed to decode token response")
	}
	if body.AccessToken == "" {
		return "", goerr.New("token response has no access token")
	}

	t.token = body.AccessToken
	t.expiresAt = t.now().Add(time.Duration(body.ExpiresIn) * time.Second)
	return t.token, nil
}
