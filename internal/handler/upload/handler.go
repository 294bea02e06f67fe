package upload

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/tagbot/backend/internal/service/storage"
	"github.com/zhouzirui/tagbot/backend/pkg/utils"
)

// BlobStore 上传文件的存储
type BlobStore interface {
	Put(ctx context.Context, r io.Reader) (string, error)
}

// Handler 文件上传的HTTP处理器
type Handler struct {
	blobs  BlobStore
	logger *zap.Logger
}

// New 创建上传处理器
func New(blobs BlobStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{blobs: blobs, logger: logger}
}

// RegisterRoutes 注册上传路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/files", h.handleUpload)
}

// UploadResponse 上传结果，handle 用于后续 audio 消息
type UploadResponse struct {
	Handle   string `json:"handle"`
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
}

// handleUpload 接收multipart表单中的 audio 字段
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	err := r.ParseMultipartForm(32 << 20) // 32MB in memory, rest spills to disk
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}

	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	handle, err := h.blobs.Put(r.Context(), file)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			utils.RespondError(w, http.StatusRequestEntityTooLarge, "audio file is too large")
			return
		}
		h.logger.Error("failed to store upload", zap.String("file", header.Filename), zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to store file")
		return
	}

	h.logger.Info("file uploaded", zap.String("handle", handle), zap.String("file", header.Filename), zap.Int64("bytes", header.Size))
	utils.RespondJSON(w, http.StatusCreated, UploadResponse{
		Handle:   handle,
		FileName: header.Filename,
		Size:     header.Size,
	})
}
