package server

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/graphbridge/graphbridge/internal/cache"
	"github.com/graphbridge/graphbridge/internal/sdl"
)

// SDLHandler serves the current schema as SDL text. The tenant header selects
// which tenant's fragment is included, same as the GraphQL endpoint.
type SDLHandler struct {
	coord        *cache.Coordinator
	log          *zap.Logger
	tenantHeader string
}

// NewSDL creates the SDL handler. tenantHeader defaults to "X-Tenant-Id".
func NewSDL(coord *cache.Coordinator, log *zap.Logger, tenantHeader string) *SDLHandler {
	if log == nil {
		log = zap.NewNop()
	}
	if tenantHeader == "" {
		tenantHeader = "X-Tenant-Id"
	}
	return &SDLHandler{coord: coord, log: log, tenantHeader: tenantHeader}
}

func (h *SDLHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenant := r.Header.Get(h.tenantHeader)
	frag, err := h.coord.Fragment(r.Context(), tenant)
	if err != nil {
		h.log.Error("schema fragment failed", zap.String("tenant", tenant), zap.Error(err))
		http.Error(w, "failed to build schema", http.StatusInternalServerError)
		return
	}
	out, err := sdl.Render(frag, h.coord.Models())
	if err != nil {
		h.log.Error("sdl render failed", zap.String("tenant", tenant), zap.Error(err))
		http.Error(w, "failed to render schema", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/graphql; charset=utf-8")
	_, _ = w.Write([]byte(out))
}
