// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/bookmarkman/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレス（大文字小文字を区別しない）でユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するsessions、bookmarksはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// BookmarkRepository はブックマークデータの永続化インターフェース。
// すべての操作はuser_idで所有者に限定される。
type BookmarkRepository interface {
	// ListByUser はユーザーのブックマークをposition昇順で返す。
	ListByUser(ctx context.Context, userID string) ([]*model.Bookmark, error)

	// Search はテキストとタグの条件でユーザーのブックマークを検索する。
	// 並び順はListByUserと同じ。
	Search(ctx context.Context, userID string, query model.SearchQuery) ([]*model.Bookmark, error)

	// FindByIDAndUser は指定IDかつ指定ユーザー所有のブックマークを取得する。
	// 見つからない場合、他ユーザー所有の場合はnilを返す。
	FindByIDAndUser(ctx context.Context, id, userID string) (*model.Bookmark, error)

	// Create はブックマークを末尾（position = 最大値 + 1）に作成する。
	// 採番されたPositionはbookmarkに書き戻す。
	Create(ctx context.Context, bookmark *model.Bookmark) error

	// Update はnilでないフィールドのみを更新し、更新後のブックマークを返す。
	// 対象が存在しない場合、他ユーザー所有の場合はnilを返す。
	Update(ctx context.Context, userID, id string, patch model.BookmarkPatch) (*model.Bookmark, error)

	// DeleteByIDAndUser は指定ブックマークを削除する。削除した場合はtrueを返す。
	DeleteByIDAndUser(ctx context.Context, id, userID string) (bool, error)

	// UpdatePosition は1件のpositionを更新し、一致した行数を返す。
	UpdatePosition(ctx context.Context, userID, id string, position int) (int64, error)

	// UpdatePositions は複数件のpositionを単一トランザクション内の1文で更新し、
	// 一致した行数を返す。いずれかが失敗した場合は全件ロールバックする。
	UpdatePositions(ctx context.Context, userID string, updates []model.PositionUpdate) (int64, error)

	// ListTags はユーザーが使用しているタグを初出順に重複なく返す。
	ListTags(ctx context.Context, userID string) ([]string, error)

	// DeleteByUserID はユーザーの全ブックマークを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
