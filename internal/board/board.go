// Package board はブックマーク一覧画面の表示状態を管理する。
// 一覧、読み込み中フラグ、ダイアログの開閉、検索モードを1つのStateとして保持し、
// 並び替えは楽観的に反映してからバックエンドに1回のバッチで送信する。
package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/bookmarkman/internal/model"
)

// ErrReorderWhileSearching は検索結果の表示中に並び替えを行おうとした場合のエラー。
// 絞り込まれた部分集合に0からのpositionを振ると、非表示のブックマークと衝突するため許可しない。
var ErrReorderWhileSearching = errors.New("検索中は並び替えできません")

// Backend は一覧画面が必要とするAPI操作。
type Backend interface {
	List(ctx context.Context) ([]*model.Bookmark, error)
	Search(ctx context.Context, query model.SearchQuery) ([]*model.Bookmark, error)
	Reorder(ctx context.Context, updates []model.PositionUpdate) error
}

// State は一覧画面の表示状態。
type State struct {
	Bookmarks      []*model.Bookmark
	Loading        bool
	AddDialogOpen  bool
	EditDialogOpen bool
	// EditingID は編集ダイアログで開いているブックマークのID
	EditingID  string
	SearchMode bool
	Query      model.SearchQuery
}

// Board は一覧画面の状態を所有する。複数のgoroutineから安全に呼び出せる。
type Board struct {
	backend Backend
	logger  *slog.Logger

	mu    sync.Mutex
	state State
}

// New はBoardを生成する。loggerがnilの場合はslog.Default()を使う。
func New(backend Backend, logger *slog.Logger) *Board {
	if logger == nil {
		logger = slog.Default()
	}
	return &Board{backend: backend, logger: logger}
}

// State は現在の状態のコピーを返す。
func (b *Board) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.state
	s.Bookmarks = append([]*model.Bookmark(nil), b.state.Bookmarks...)
	s.Query.Tags = append([]string(nil), b.state.Query.Tags...)
	return s
}

// Load は全件一覧をposition順で取得し、検索モードを解除する。
func (b *Board) Load(ctx context.Context) error {
	return b.fetch(ctx, false, model.SearchQuery{})
}

// Search は条件で絞り込んだ一覧を取得し、検索モードに入る。
func (b *Board) Search(ctx context.Context, query model.SearchQuery) error {
	if query.Text == "" && len(query.Tags) == 0 {
		return b.Load(ctx)
	}
	return b.fetch(ctx, true, query)
}

// ClearSearch は検索条件を破棄して全件一覧に戻る。
func (b *Board) ClearSearch(ctx context.Context) error {
	return b.Load(ctx)
}

func (b *Board) fetch(ctx context.Context, searchMode bool, query model.SearchQuery) error {
	b.setLoading(true)
	defer b.setLoading(false)

	var (
		list []*model.Bookmark
		err  error
	)
	if searchMode {
		list, err = b.backend.Search(ctx, query)
	} else {
		list, err = b.backend.List(ctx)
	}
	if err != nil {
		return fmt.Errorf("一覧の取得に失敗しました: %w", err)
	}

	b.mu.Lock()
	b.state.Bookmarks = list
	b.state.SearchMode = searchMode
	b.state.Query = query
	b.mu.Unlock()
	return nil
}

func (b *Board) setLoading(v bool) {
	b.mu.Lock()
	b.state.Loading = v
	b.mu.Unlock()
}

// OpenAddDialog は追加ダイアログを開く。
func (b *Board) OpenAddDialog() {
	b.mu.Lock()
	b.state.AddDialogOpen = true
	b.mu.Unlock()
}

// CloseAddDialog は追加ダイアログを閉じる。
func (b *Board) CloseAddDialog() {
	b.mu.Lock()
	b.state.AddDialogOpen = false
	b.mu.Unlock()
}

// OpenEditDialog は指定ブックマークの編集ダイアログを開く。
func (b *Board) OpenEditDialog(id string) {
	b.mu.Lock()
	b.state.EditDialogOpen = true
	b.state.EditingID = id
	b.mu.Unlock()
}

// CloseEditDialog は編集ダイアログを閉じる。
func (b *Board) CloseEditDialog() {
	b.mu.Lock()
	b.state.EditDialogOpen = false
	b.state.EditingID = ""
	b.mu.Unlock()
}

// Drop はドラッグしたブックマークをドロップ先の位置へ移動する。
// 表示は即座に新しい順序にし、全件の {id, position} を1回のバッチで送信する。
// 送信に失敗した場合はサーバーの正しい順序を再取得して表示を戻す。
// 自分自身や存在しないブックマークへのドロップは何もしない。
func (b *Board) Drop(ctx context.Context, draggedID, targetID string) error {
	b.mu.Lock()
	if b.state.SearchMode {
		b.mu.Unlock()
		return ErrReorderWhileSearching
	}
	moved, ok := Move(b.state.Bookmarks, draggedID, targetID)
	if !ok {
		b.mu.Unlock()
		return nil
	}
	b.state.Bookmarks = moved
	b.mu.Unlock()

	updates := PositionUpdates(moved)
	if err := b.backend.Reorder(ctx, updates); err != nil {
		b.logger.Warn("並び替えの保存に失敗したため一覧を再取得します",
			slog.String("dragged_id", draggedID),
			slog.String("target_id", targetID),
			slog.String("error", err.Error()),
		)
		if refetchErr := b.Load(ctx); refetchErr != nil {
			return errors.Join(fmt.Errorf("並び替えの保存に失敗しました: %w", err), refetchErr)
		}
		return fmt.Errorf("並び替えの保存に失敗しました: %w", err)
	}
	return nil
}

// Move はdraggedIDの要素をtargetIDの要素の位置へ移動した新しい一覧を返す。
// 入力は変更しない。移動が発生しない場合はfalseを返す。
func Move(list []*model.Bookmark, draggedID, targetID string) ([]*model.Bookmark, bool) {
	if draggedID == "" || targetID == "" || draggedID == targetID {
		return list, false
	}

	from, to := -1, -1
	for i, bm := range list {
		switch bm.ID {
		case draggedID:
			from = i
		case targetID:
			to = i
		}
	}
	if from < 0 || to < 0 {
		return list, false
	}

	out := make([]*model.Bookmark, 0, len(list))
	out = append(out, list[:from]...)
	out = append(out, list[from+1:]...)

	dragged := list[from]
	out = append(out[:to], append([]*model.Bookmark{dragged}, out[to:]...)...)
	return out, true
}

// PositionUpdates は一覧の並び順を0始まりのpositionとしたバッチを返す。
func PositionUpdates(list []*model.Bookmark) []model.PositionUpdate {
	updates := make([]model.PositionUpdate, len(list))
	for i, bm := range list {
		updates[i] = model.PositionUpdate{ID: bm.ID, Position: i}
	}
	return updates
}
