package bookmark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/bookmarkman/internal/config"
	"github.com/hitoshi/bookmarkman/internal/model"
)

// PositionWriter は並び替えに必要な永続化操作。
type PositionWriter interface {
	UpdatePosition(ctx context.Context, userID, id string, position int) (int64, error)
	UpdatePositions(ctx context.Context, userID string, updates []model.PositionUpdate) (int64, error)
}

// Reorderer は検証済みの並び替えバッチをストアに適用する。
// 戻り値はuser_idとidが一致した行数。
type Reorderer interface {
	Apply(ctx context.Context, userID string, updates []model.PositionUpdate) (int64, error)
	Mode() config.ReorderMode
}

// NewReorderer はmodeに対応するReordererを返す。
func NewReorderer(mode config.ReorderMode, writer PositionWriter, maxConcurrent int) Reorderer {
	if mode == config.ReorderModeFanout {
		return NewFanoutReorderer(writer, maxConcurrent)
	}
	return &AtomicReorderer{writer: writer}
}

// AtomicReorderer は全件を1つのUPDATE文で更新する。
// 失敗した場合はどの行も更新されない。
type AtomicReorderer struct {
	writer PositionWriter
}

// Apply はバッチ全体を単一トランザクションで適用する。
func (r *AtomicReorderer) Apply(ctx context.Context, userID string, updates []model.PositionUpdate) (int64, error) {
	return r.writer.UpdatePositions(ctx, userID, updates)
}

// Mode はatomicを返す。
func (r *AtomicReorderer) Mode() config.ReorderMode { return config.ReorderModeAtomic }

// FanoutReorderer は行ごとの更新を並列に発行し、全件の完了を待つ。
// 一部の行が失敗しても、成功した行は元に戻さない。
type FanoutReorderer struct {
	writer        PositionWriter
	maxConcurrent int
}

// NewFanoutReorderer はFanoutReordererを生成する。
// maxConcurrentが0以下の場合はデフォルト値8を使用する。
func NewFanoutReorderer(writer PositionWriter, maxConcurrent int) *FanoutReorderer {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	return &FanoutReorderer{writer: writer, maxConcurrent: maxConcurrent}
}

// Apply はsemaphoreで同時実行数を制限しながら各行を更新する。
// 1件でも失敗した場合は全エラーを結合して返す。
func (r *FanoutReorderer) Apply(ctx context.Context, userID string, updates []model.PositionUpdate) (int64, error) {
	sem := make(chan struct{}, r.maxConcurrent)
	var wg sync.WaitGroup

	var mu sync.Mutex
	var matched int64
	var errs []error

	for _, u := range updates {
		wg.Add(1)
		sem <- struct{}{}

		go func(u model.PositionUpdate) {
			defer wg.Done()
			defer func() { <-sem }()

			n, err := r.writer.UpdatePosition(ctx, userID, u.ID, u.Position)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("位置の更新に失敗しました",
					slog.String("user_id", userID),
					slog.String("bookmark_id", u.ID),
					slog.String("error", err.Error()),
				)
				errs = append(errs, err)
				return
			}
			matched += n
		}(u)
	}

	wg.Wait()

	if len(errs) > 0 {
		return matched, fmt.Errorf("%d of %d position updates failed: %w", len(errs), len(updates), errors.Join(errs...))
	}
	return matched, nil
}

// Mode はfanoutを返す。
func (r *FanoutReorderer) Mode() config.ReorderMode { return config.ReorderModeFanout }
