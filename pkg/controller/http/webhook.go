package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/omnichat/pkg/chat"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
	"github.com/secmon-lab/omnichat/pkg/domain/types"
	"github.com/secmon-lab/omnichat/pkg/utils/errutil"
)

// Webhook bodies are small JSON or form payloads; anything larger is
// hostile input.
const maxWebhookBodySize = 1 << 20

// webhookHandler reads the raw body and hands it to the resolved
// tenant's dispatcher. Error tags choose the status: auth failures 401,
// validation failures 400, everything else 500. The body stays generic
// status text so verification and parse failures are indistinguishable
// by content.
func (s *Server) webhookHandler(resolve func(r *http.Request) *chat.Chat) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		hub := resolve(r)
		if hub == nil {
			errutil.HandleHTTP(ctx, w,
				goerr.New("unknown workspace", goerr.V("workspace", chi.URLParam(r, "workspace"))),
				http.StatusNotFound)
			return
		}

		platform := types.Platform(chi.URLParam(r, "platform"))
		if err := platform.Validate(); err != nil {
			errutil.HandleHTTP(ctx, w, err, http.StatusBadRequest)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
		if err != nil {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to read webhook body"), http.StatusBadRequest)
			return
		}

		resp, err := hub.HandleWebhook(ctx, platform, &model.WebhookRequest{
			Body:   body,
			Header: r.Header,
		})
		if err != nil {
			errutil.HandleHTTP(ctx, w, err, statusFromError(err))
			return
		}

		writeWebhookResponse(w, resp)
	}
}

// workspacesHandler serves the registered workspace list as JSON
func workspacesHandler(registry *model.WorkspaceRegistry) http.HandlerFunc {
	type workspaceResponse struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	type response struct {
		Workspaces []workspaceResponse `json:"workspaces"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		workspaces := registry.Workspaces()
		resp := response{
			Workspaces: make([]workspaceResponse, len(workspaces)),
		}
		for i, ws := range workspaces {
			resp.Workspaces[i] = workspaceResponse{
				ID:   ws.ID,
				Name: ws.Name,
			}
		}

		data, err := json.Marshal(resp)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to marshal workspaces response"), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data) //nolint:errcheck // header already committed
	}
}

func statusFromError(err error) int {
	switch {
	case types.IsAuth(err):
		return http.StatusUnauthorized
	case types.IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeWebhookResponse(w http.ResponseWriter, resp *model.WebhookResponse) {
	if resp == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(resp.Body) > 0 {
		w.Write(resp.Body) //nolint:errcheck // header already committed
	}
}
