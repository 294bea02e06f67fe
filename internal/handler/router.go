package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/tagbot/backend/internal/handler/chat"
	ledgerHandler "github.com/zhouzirui/tagbot/backend/internal/handler/ledger"
	localeHandler "github.com/zhouzirui/tagbot/backend/internal/handler/locale"
	"github.com/zhouzirui/tagbot/backend/internal/handler/upload"
	middlewarePkg "github.com/zhouzirui/tagbot/backend/internal/middleware"
	localeModel "github.com/zhouzirui/tagbot/backend/internal/model/locale"
	"github.com/zhouzirui/tagbot/backend/pkg/utils"
)

// Deps lists what the HTTP surface needs.
type Deps struct {
	Locales localeModel.Store
	Blobs   upload.BlobStore
	Ledger  ledgerHandler.Lister
	Hub     *chat.Hub
	Logger  *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		localeHandler.New(deps.Locales).RegisterRoutes(api)
		upload.New(deps.Blobs, logger.Named("upload")).RegisterRoutes(api)
		ledgerHandler.New(deps.Ledger, logger.Named("ledger")).RegisterRoutes(api)

		if deps.Hub != nil {
			deps.Hub.RegisterRoutes(api)
		} else {
			api.Get("/ws/{userID}", func(w http.ResponseWriter, _ *http.Request) {
				utils.RespondError(w, http.StatusNotImplemented, "chat websocket not available")
			})
		}
	})

	return r
}
