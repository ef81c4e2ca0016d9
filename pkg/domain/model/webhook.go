package model

import (
	"encoding/json"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
)

// WebhookRequest carries the exact bytes and headers of an inbound webhook.
// Verifiers sign/check the raw body, never a re-serialized form.
type WebhookRequest struct {
	Body   []byte
	Header http.Header
}

// WebhookResponse is what an adapter tells the HTTP boundary to send back
type WebhookResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Ack is the plain 200 acknowledgment most webhook types expect
func Ack() *WebhookResponse {
	return &WebhookResponse{StatusCode: http.StatusOK}
}

// TextResponse builds a 200 response with a plain-text body (challenge echo)
func TextResponse(body string) *WebhookResponse {
	return &WebhookResponse{
		StatusCode:  http.StatusOK,
		ContentType: "text/plain",
		Body:        []byte(body),
	}
}

// JSONResponse builds a 200 response with a JSON body (deferred-interaction
// acknowledgments and similar structured replies)
func JSONResponse(v any) (*WebhookResponse, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal webhook response")
	}
	return &WebhookResponse{
		StatusCode:  http.StatusOK,
		ContentType: "application/json",
		Body:        body,
	}, nil
}
