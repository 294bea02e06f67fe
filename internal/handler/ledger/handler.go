package ledger

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/tagbot/backend/pkg/utils"
)

// Lister 读取致谢名单
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// Handler 致谢名单的HTTP处理器
type Handler struct {
	ledger Lister
	logger *zap.Logger
}

// New 创建致谢名单处理器
func New(ledger Lister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{ledger: ledger, logger: logger}
}

// RegisterRoutes 注册致谢名单路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/thanks", h.handleList)
}

// handleList 返回全部致谢用户名
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	names, err := h.ledger.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list thanks", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to read thanks list")
		return
	}
	if names == nil {
		names = []string{}
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"count":     len(names),
		"usernames": names,
	})
}
