package telegram

import (
	"crypto/subtle"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
)

// verifySecretToken checks the shared secret Telegram echoes back in the
// X-Telegram-Bot-Api-Secret-Token header, registered via setWebhook.
func verifySecretToken(secret string, header http.Header) error {
	got := header.Get("X-Telegram-Bot-Api-Secret-Token")
	if got == "" {
		return goerr.New("missing secret token header", goerr.T(types.TagAuth))
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
		return goerr.New("secret token mismatch", goerr.T(types.TagAuth))
	}
	return nil
}
