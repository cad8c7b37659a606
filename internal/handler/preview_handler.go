package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/bookmarkman/internal/model"
)

// PreviewServiceInterface はプレビューハンドラーが必要とするサービスインターフェース。
type PreviewServiceInterface interface {
	Preview(ctx context.Context, rawURL string) (*model.Preview, error)
}

// PreviewHandler はブックマーク作成補助のメタデータ取得ハンドラー。
type PreviewHandler struct {
	service PreviewServiceInterface
}

// NewPreviewHandler はPreviewHandlerを生成する。
func NewPreviewHandler(service PreviewServiceInterface) *PreviewHandler {
	return &PreviewHandler{service: service}
}

type previewRequest struct {
	URL string `json:"url"`
}

// Preview はURLのタイトル・概要・ファビコンURLを返す。
// POST /preview
func (h *PreviewHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	var req previewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.Preview(r.Context(), req.URL)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
