package bookmark

import (
	"context"
	"sync"

	"github.com/hitoshi/bookmarkman/internal/model"
	"github.com/hitoshi/bookmarkman/internal/repository"
)

type mockBookmarkRepo struct {
	listByUserFn        func(ctx context.Context, userID string) ([]*model.Bookmark, error)
	searchFn            func(ctx context.Context, userID string, q model.SearchQuery) ([]*model.Bookmark, error)
	findByIDAndUserFn   func(ctx context.Context, id, userID string) (*model.Bookmark, error)
	createFn            func(ctx context.Context, b *model.Bookmark) error
	updateFn            func(ctx context.Context, userID, id string, p model.BookmarkPatch) (*model.Bookmark, error)
	deleteByIDAndUserFn func(ctx context.Context, id, userID string) (bool, error)
	updatePositionFn    func(ctx context.Context, userID, id string, position int) (int64, error)
	updatePositionsFn   func(ctx context.Context, userID string, updates []model.PositionUpdate) (int64, error)
	listTagsFn          func(ctx context.Context, userID string) ([]string, error)
}

func (m *mockBookmarkRepo) ListByUser(ctx context.Context, userID string) ([]*model.Bookmark, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID)
	}
	return []*model.Bookmark{}, nil
}

func (m *mockBookmarkRepo) Search(ctx context.Context, userID string, q model.SearchQuery) ([]*model.Bookmark, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, userID, q)
	}
	return []*model.Bookmark{}, nil
}

func (m *mockBookmarkRepo) FindByIDAndUser(ctx context.Context, id, userID string) (*model.Bookmark, error) {
	if m.findByIDAndUserFn != nil {
		return m.findByIDAndUserFn(ctx, id, userID)
	}
	return nil, nil
}

func (m *mockBookmarkRepo) Create(ctx context.Context, b *model.Bookmark) error {
	if m.createFn != nil {
		return m.createFn(ctx, b)
	}
	return nil
}

func (m *mockBookmarkRepo) Update(ctx context.Context, userID, id string, p model.BookmarkPatch) (*model.Bookmark, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, id, p)
	}
	return nil, nil
}

func (m *mockBookmarkRepo) DeleteByIDAndUser(ctx context.Context, id, userID string) (bool, error) {
	if m.deleteByIDAndUserFn != nil {
		return m.deleteByIDAndUserFn(ctx, id, userID)
	}
	return false, nil
}

func (m *mockBookmarkRepo) UpdatePosition(ctx context.Context, userID, id string, position int) (int64, error) {
	if m.updatePositionFn != nil {
		return m.updatePositionFn(ctx, userID, id, position)
	}
	return 1, nil
}

func (m *mockBookmarkRepo) UpdatePositions(ctx context.Context, userID string, updates []model.PositionUpdate) (int64, error) {
	if m.updatePositionsFn != nil {
		return m.updatePositionsFn(ctx, userID, updates)
	}
	return int64(len(updates)), nil
}

func (m *mockBookmarkRepo) ListTags(ctx context.Context, userID string) ([]string, error) {
	if m.listTagsFn != nil {
		return m.listTagsFn(ctx, userID)
	}
	return []string{}, nil
}

func (m *mockBookmarkRepo) DeleteByUserID(_ context.Context, _ string) error {
	return nil
}

var _ repository.BookmarkRepository = (*mockBookmarkRepo)(nil)

type recordedReorder struct {
	result             string
	matched, unmatched int
}

type mockMetrics struct {
	mu      sync.Mutex
	records []recordedReorder
}

func (m *mockMetrics) RecordReorder(result string, matched, unmatched int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, recordedReorder{result, matched, unmatched})
}
