package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/bookmarkman/internal/bookmark"
	"github.com/hitoshi/bookmarkman/internal/middleware"
	"github.com/hitoshi/bookmarkman/internal/model"
)

// BookmarkServiceInterface はブックマークハンドラーが必要とするサービスインターフェース。
type BookmarkServiceInterface interface {
	List(ctx context.Context, userID string) ([]*model.Bookmark, error)
	Search(ctx context.Context, userID string, query model.SearchQuery) ([]*model.Bookmark, error)
	Get(ctx context.Context, userID, id string) (*model.Bookmark, error)
	Create(ctx context.Context, userID string, input model.BookmarkInput) (*model.Bookmark, error)
	Update(ctx context.Context, userID, id string, patch model.BookmarkPatch) (*model.Bookmark, error)
	Delete(ctx context.Context, userID, id string) error
	Reorder(ctx context.Context, userID string, updates []model.PositionUpdate) error
	ListTags(ctx context.Context, userID string) ([]string, error)
	Export(ctx context.Context, userID string, format bookmark.ExportFormat) (string, error)
}

// BookmarkHandler はブックマーク管理のHTTPハンドラー。
type BookmarkHandler struct {
	service BookmarkServiceInterface
}

// NewBookmarkHandler はBookmarkHandlerを生成する。
func NewBookmarkHandler(service BookmarkServiceInterface) *BookmarkHandler {
	return &BookmarkHandler{service: service}
}

type bookmarkListResponse struct {
	Bookmarks []*model.Bookmark `json:"bookmarks"`
}

type bookmarkResponse struct {
	Bookmark *model.Bookmark `json:"bookmark"`
	Message  string          `json:"message,omitempty"`
}

type tagsResponse struct {
	Tags []string `json:"tags"`
}

// reorderRequest はupdatesの型検証をParseReorderPayloadに委ねるため生のまま受け取る。
type reorderRequest struct {
	Updates json.RawMessage `json:"updates"`
}

// List はブックマーク一覧をposition昇順で返す。
// GET /bookmarks
func (h *BookmarkHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	bookmarks, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookmarkListResponse{Bookmarks: nonNil(bookmarks)})
}

// Search はテキストとタグで絞り込んだブックマークを返す。
// GET /bookmarks/search?search=&tags=&match=
func (h *BookmarkHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	query, err := bookmark.NewSearchQuery(q.Get("search"), q.Get("tags"), q.Get("match"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	bookmarks, err := h.service.Search(r.Context(), userID, query)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookmarkListResponse{Bookmarks: nonNil(bookmarks)})
}

// Get はブックマーク1件を返す。
// GET /bookmarks/{id}
func (h *BookmarkHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	b, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Create はブックマークを一覧の末尾に作成する。
// POST /bookmarks
func (h *BookmarkHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var input model.BookmarkInput
	if !decodeJSON(w, r, &input) {
		return
	}

	b, err := h.service.Create(r.Context(), userID, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bookmarkResponse{Bookmark: b, Message: "ブックマークを保存しました。"})
}

// Update は指定フィールドのみを更新する。
// PATCH /bookmarks/{id}
func (h *BookmarkHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var patch model.BookmarkPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	b, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), patch)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookmarkResponse{Bookmark: b})
}

// Delete はブックマークを削除する。
// DELETE /bookmarks/{id}
func (h *BookmarkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "ブックマークを削除しました。"})
}

// Reorder は並び替えバッチを適用する。
// 形式が不正な場合は書き込み前に400を返す。
// PATCH /bookmarks/reorder
func (h *BookmarkHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidPayloadError("リクエストボディがJSONオブジェクトではありません"))
		return
	}

	updates, err := bookmark.ParseReorderPayload(req.Updates)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.service.Reorder(r.Context(), userID, updates); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "並び順を更新しました。"})
}

// Tags はユーザーが使用しているタグ一覧を返す。
// GET /bookmarks/tags
func (h *BookmarkHandler) Tags(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	tags, err := h.service.ListTags(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if tags == nil {
		tags = []string{}
	}
	writeJSON(w, http.StatusOK, tagsResponse{Tags: tags})
}

// Feed はブックマークをRSS、Atom、JSON Feedとしてエクスポートする。
// GET /bookmarks/feed?format=rss|atom|json
func (h *BookmarkHandler) Feed(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	format, err := bookmark.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	body, err := h.service.Export(r.Context(), userID, format)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func nonNil(bookmarks []*model.Bookmark) []*model.Bookmark {
	if bookmarks == nil {
		return []*model.Bookmark{}
	}
	return bookmarks
}
