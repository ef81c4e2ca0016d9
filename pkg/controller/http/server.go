// Package http is the thin inbound boundary: it resolves the tenant
// dispatcher and the named platform, hands the raw request to the
// adapter, and maps tagged errors to HTTP statuses. No platform-specific
// logic lives here.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/secmon-lab/omnichat/pkg/chat"
	"github.com/secmon-lab/omnichat/pkg/domain/model"
)

// Server routes inbound webhooks to per-tenant dispatchers
type Server struct {
	router     *chi.Mux
	defaultHub *chat.Chat
	workspaces map[string]*chat.Chat
	registry   *model.WorkspaceRegistry
}

type Options func(*Server)

// WithWorkspace registers a named tenant served under
// /webhooks/{workspace}/chat/{platform}
func WithWorkspace(id string, c *chat.Chat) Options {
	return func(s *Server) {
		s.workspaces[id] = c
	}
}

// WithRegistry enables the workspace list endpoint
func WithRegistry(registry *model.WorkspaceRegistry) Options {
	return func(s *Server) {
		s.registry = registry
	}
}

// New creates the webhook server. defaultHub serves the unprefixed
// /webhooks/chat/{platform} routes; additional tenants are registered
// with WithWorkspace.
func New(defaultHub *chat.Chat, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router:     r,
		defaultHub: defaultHub,
		workspaces: map[string]*chat.Chat{},
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK")) //nolint:errcheck // header already committed
	})

	if s.registry != nil {
		r.Get("/api/workspaces", workspacesHandler(s.registry))
	}

	// Webhook endpoints. No session auth: each adapter verifies its own
	// platform signature.
	r.Post("/webhooks/chat/{platform}", s.webhookHandler(func(r *http.Request) *chat.Chat {
		return s.defaultHub
	}))
	r.Post("/webhooks/{workspace}/chat/{platform}", s.webhookHandler(func(r *http.Request) *chat.Chat {
		return s.workspaces[chi.URLParam(r, "workspace")]
	}))

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
