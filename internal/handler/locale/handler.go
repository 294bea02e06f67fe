package locale

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/tagbot/backend/internal/model/locale"
	"github.com/zhouzirui/tagbot/backend/pkg/utils"
)

// Handler 语言目录的HTTP处理器
type Handler struct {
	catalogs locale.Store
}

// New 创建语言目录处理器
func New(catalogs locale.Store) *Handler {
	return &Handler{
		catalogs: catalogs,
	}
}

// RegisterRoutes 注册语言相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/locales", h.handleListLocales)
}

type localeSummary struct {
	Language string `json:"language"`
	Name     string `json:"name"`
	Keys     int    `json:"keys"`
}

// handleListLocales 列出所有语言；?full=1 时返回完整字符串表
func (h *Handler) handleListLocales(w http.ResponseWriter, r *http.Request) {
	catalogs := h.catalogs.List()
	if r.URL.Query().Get("full") == "1" {
		utils.RespondJSON(w, http.StatusOK, catalogs)
		return
	}

	summaries := make([]localeSummary, 0, len(catalogs))
	for _, c := range catalogs {
		summaries = append(summaries, localeSummary{Language: c.Language, Name: c.Name, Keys: len(c.Strings)})
	}
	utils.RespondJSON(w, http.StatusOK, summaries)
}
