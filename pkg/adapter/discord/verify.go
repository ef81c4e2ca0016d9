package discord

import (
	"crypto/ed25519"
	"encoding/hex"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
)

// verifySignature checks the interaction signature:
// Ed25519(timestamp + rawBody) against the application public key.
// Header checks come first so malformed requests are rejected before any
// crypto work.
func verifySignature(publicKey ed25519.PublicKey, header http.Header, body []byte) error {
	signature := header.Get("X-Signature-Ed25519")
	if signature == "" {
		return goerr.New("missing signature header", goerr.T(types.TagAuth))
	}
	timestamp := header.Get("X-Signature-Timestamp")
	if timestamp == "" {
		return goerr.New("missing timestamp header", goerr.T(types.TagAuth))
	}

	sig, err := hex.DecodeString(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return goerr.New("malformed signature header", goerr.T(types.TagAuth))
	}

	signed := make([]byte, 0, len(timestamp)+len(body))
	signed = append(signed, timestamp...)
	signed = append(signed, body...)
	if !ed25519.Verify(publicKey, signed, sig) {
		return goerr.New("signature mismatch", goerr.T(types.TagAuth))
	}
	return nil
}
