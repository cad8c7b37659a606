// Package bookmark はブックマークの取得・検索・作成・更新・削除・並び替えを提供する。
// すべての操作は認証済みユーザーの所有するブックマークに限定される。
package bookmark

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/bookmarkman/internal/model"
	"github.com/hitoshi/bookmarkman/internal/repository"
	"github.com/hitoshi/bookmarkman/internal/security"
)

// MetricsRecorder は並び替え結果を記録するインターフェース。
type MetricsRecorder interface {
	// RecordReorder は並び替え1回分の結果と、一致した行数・一致しなかった行数を記録する。
	RecordReorder(result string, matched, unmatched int)
}

type noopMetrics struct{}

func (noopMetrics) RecordReorder(string, int, int) {}

// ServiceConfig はブックマークサービスの設定。
type ServiceConfig struct {
	// BaseURL はエクスポートするフィードのリンク先
	BaseURL string
}

// Service はブックマークのアクセス層。
type Service struct {
	repo      repository.BookmarkRepository
	reorderer Reorderer
	metrics   MetricsRecorder
	config    ServiceConfig
}

// NewService はServiceを生成する。
// metricsがnilの場合は記録しない。
func NewService(
	repo repository.BookmarkRepository,
	reorderer Reorderer,
	metrics MetricsRecorder,
	config ServiceConfig,
) *Service {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Service{
		repo:      repo,
		reorderer: reorderer,
		metrics:   metrics,
		config:    config,
	}
}

// List はユーザーのブックマークをposition昇順で返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Bookmark, error) {
	bookmarks, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}
	return bookmarks, nil
}

// Search はテキストとタグで絞り込んだブックマークを返す。
// 条件が空の場合はListと同じ結果になる。
func (s *Service) Search(ctx context.Context, userID string, query model.SearchQuery) ([]*model.Bookmark, error) {
	bookmarks, err := s.repo.Search(ctx, userID, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search bookmarks: %w", err)
	}
	return bookmarks, nil
}

// Get は指定ブックマークを返す。存在しない場合、他ユーザー所有の場合は404エラー。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.Bookmark, error) {
	b, err := s.repo.FindByIDAndUser(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bookmark: %w", err)
	}
	if b == nil {
		return nil, model.NewBookmarkNotFoundError(id)
	}
	return b, nil
}

// Create はブックマークを一覧の末尾に作成する。
// url、title、summary、favicon_urlは必須。
func (s *Service) Create(ctx context.Context, userID string, input model.BookmarkInput) (*model.Bookmark, error) {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"url", input.URL},
		{"title", input.Title},
		{"summary", input.Summary},
		{"favicon_url", input.FaviconURL},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, model.NewMissingFieldsError(missing)
	}

	if err := validateURLField("url", input.URL); err != nil {
		return nil, err
	}
	if err := validateURLField("favicon_url", input.FaviconURL); err != nil {
		return nil, err
	}

	b := &model.Bookmark{
		ID:         uuid.New().String(),
		UserID:     userID,
		URL:        strings.TrimSpace(input.URL),
		Title:      input.Title,
		Summary:    input.Summary,
		FaviconURL: strings.TrimSpace(input.FaviconURL),
		Tags:       normalizeTags(input.Tags),
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to create bookmark: %w", err)
	}

	slog.Info("bookmark created",
		slog.String("user_id", userID),
		slog.String("bookmark_id", b.ID),
		slog.Int("position", b.Position),
	)
	return b, nil
}

// Update は指定されたフィールドのみを更新する。
// url、title、summary、favicon_urlの空文字は「指定なし」として扱い、既存値を保持する。
// tagsは空配列を指定するとタグを全て外す。
func (s *Service) Update(ctx context.Context, userID, id string, patch model.BookmarkPatch) (*model.Bookmark, error) {
	patch = dropBlankFields(patch)
	if patch.IsEmpty() {
		return nil, model.NewNoUpdateFieldsError()
	}

	if patch.URL != nil {
		if err := validateURLField("url", *patch.URL); err != nil {
			return nil, err
		}
		u := strings.TrimSpace(*patch.URL)
		patch.URL = &u
	}
	if patch.FaviconURL != nil {
		if err := validateURLField("favicon_url", *patch.FaviconURL); err != nil {
			return nil, err
		}
		f := strings.TrimSpace(*patch.FaviconURL)
		patch.FaviconURL = &f
	}
	if patch.Tags != nil {
		tags := normalizeTags(*patch.Tags)
		patch.Tags = &tags
	}

	b, err := s.repo.Update(ctx, userID, id, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update bookmark: %w", err)
	}
	if b == nil {
		return nil, model.NewBookmarkNotFoundError(id)
	}
	return b, nil
}

// dropBlankFields は空白のみの文字列フィールドを「指定なし」に置き換える。
func dropBlankFields(p model.BookmarkPatch) model.BookmarkPatch {
	blank := func(v *string) *string {
		if v == nil || strings.TrimSpace(*v) == "" {
			return nil
		}
		return v
	}
	p.URL = blank(p.URL)
	p.Title = blank(p.Title)
	p.Summary = blank(p.Summary)
	p.FaviconURL = blank(p.FaviconURL)
	return p
}

// Delete は指定ブックマークを削除する。存在しない場合、他ユーザー所有の場合は404エラー。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	deleted, err := s.repo.DeleteByIDAndUser(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete bookmark: %w", err)
	}
	if !deleted {
		return model.NewBookmarkNotFoundError(id)
	}

	slog.Info("bookmark deleted",
		slog.String("user_id", userID),
		slog.String("bookmark_id", id),
	)
	return nil
}

// Reorder は検証済みの並び替えバッチを適用する。
// 他ユーザーのIDや存在しないIDはどの行にも一致せず、エラーにもならない。
// 適用中のエラーは1つのREORDER_FAILEDにまとめて返す。
func (s *Service) Reorder(ctx context.Context, userID string, updates []model.PositionUpdate) error {
	if len(updates) == 0 {
		s.metrics.RecordReorder("success", 0, 0)
		return nil
	}

	start := time.Now()
	matched, err := s.reorderer.Apply(ctx, userID, updates)
	unmatched := len(updates) - int(matched)
	if unmatched < 0 {
		unmatched = 0
	}

	if err != nil {
		s.metrics.RecordReorder("failure", int(matched), unmatched)
		slog.Error("並び替えに失敗しました",
			slog.String("user_id", userID),
			slog.String("mode", string(s.reorderer.Mode())),
			slog.Int("requested", len(updates)),
			slog.Int64("matched", matched),
			slog.String("error", err.Error()),
		)
		return model.NewReorderFailedError(err)
	}

	s.metrics.RecordReorder("success", int(matched), unmatched)
	slog.Info("並び替えを適用しました",
		slog.String("user_id", userID),
		slog.String("mode", string(s.reorderer.Mode())),
		slog.Int("requested", len(updates)),
		slog.Int64("matched", matched),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return nil
}

// ListTags はユーザーが使用しているタグを重複なく返す。
func (s *Service) ListTags(ctx context.Context, userID string) ([]string, error) {
	tags, err := s.repo.ListTags(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return tags, nil
}

func validateURLField(field, value string) error {
	if _, err := security.ParseHTTPURL(strings.TrimSpace(value)); err != nil {
		return model.NewInvalidURLError(fmt.Sprintf("%s: %v", field, err))
	}
	return nil
}
