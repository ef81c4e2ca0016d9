package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
)

// signatureMaxAge bounds replay exposure for the timestamped HMAC scheme
const signatureMaxAge = 5 * time.Minute

// verifySignature checks the Slack request signature over the exact body
// bytes: HMAC-SHA256 of "v0:<timestamp>:<body>" with the signing secret.
// All failures are tagged as auth errors.
func verifySignature(signingSecret string, header http.Header, body []byte, now time.Time) error {
	timestamp := header.Get("X-Slack-Request-Timestamp")
	if timestamp == "" {
		return goerr.New("missing timestamp header", goerr.T(types.TagAuth))
	}
	signature := header.Get("X-Slack-Signature")
	if signature == "" {
		return goerr.New("missing signature header", goerr.T(types.TagAuth))
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return goerr.Wrap(err, "invalid timestamp header", goerr.T(types.TagAuth))
	}

	age := now.Sub(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > signatureMaxAge {
		return goerr.New("request timestamp too old",
			goerr.V("age", age.String()), goerr.T(types.TagAuth))
	}

	mac := hmac.New(sha256.New, []byte(signingSecret))
	mac.Write([]byte("v0:" + timestamp + ":"))
	mac.Write(body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return goerr.New("signature mismatch", goerr.T(types.TagAuth))
	}
	return nil
}
