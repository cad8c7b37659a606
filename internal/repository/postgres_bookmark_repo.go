package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/bookmarkman/internal/model"
)

const bookmarkColumns = `id, user_id, url, title, summary, favicon_url, tags, position, created_at`

// 一覧・検索で共通の並び順。positionが重複した場合は新しいものを先に返す。
const bookmarkOrder = ` ORDER BY position ASC, created_at DESC`

// PostgresBookmarkRepo はPostgreSQLを使用したブックマークリポジトリ。
type PostgresBookmarkRepo struct {
	db *sql.DB
}

// NewPostgresBookmarkRepo はPostgresBookmarkRepoを生成する。
func NewPostgresBookmarkRepo(db *sql.DB) *PostgresBookmarkRepo {
	return &PostgresBookmarkRepo{db: db}
}

// ListByUser はユーザーのブックマークをposition昇順で返す。
func (r *PostgresBookmarkRepo) ListByUser(ctx context.Context, userID string) ([]*model.Bookmark, error) {
	return r.queryBookmarks(ctx,
		`SELECT `+bookmarkColumns+` FROM bookmarks WHERE user_id = $1`+bookmarkOrder,
		userID,
	)
}

// Search はテキストとタグの条件でユーザーのブックマークを検索する。
func (r *PostgresBookmarkRepo) Search(ctx context.Context, userID string, query model.SearchQuery) ([]*model.Bookmark, error) {
	q, args := buildSearchQuery(userID, query)
	return r.queryBookmarks(ctx, q, args...)
}

// buildSearchQuery は検索条件からSQLと引数を組み立てる。
// テキストはtitleまたはsummaryへの部分一致（ILIKE）、
// タグはmatch=allなら包含（@>）、それ以外は共通要素あり（&&）で絞り込む。
func buildSearchQuery(userID string, query model.SearchQuery) (string, []interface{}) {
	var sb strings.Builder
	args := []interface{}{userID}

	sb.WriteString(`SELECT ` + bookmarkColumns + ` FROM bookmarks WHERE user_id = $1`)

	if query.Text != "" {
		args = append(args, "%"+escapeLike(query.Text)+"%")
		n := len(args)
		fmt.Fprintf(&sb, ` AND (title ILIKE $%d OR summary ILIKE $%d)`, n, n)
	}

	if len(query.Tags) > 0 {
		args = append(args, pq.Array(query.Tags))
		op := "&&"
		if query.Match == model.TagMatchAll {
			op = "@>"
		}
		fmt.Fprintf(&sb, ` AND tags %s $%d::text[]`, op, len(args))
	}

	sb.WriteString(bookmarkOrder)
	return sb.String(), args
}

// escapeLike はLIKEパターンのメタ文字をエスケープする。
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// FindByIDAndUser は指定IDかつ指定ユーザー所有のブックマークを取得する。
func (r *PostgresBookmarkRepo) FindByIDAndUser(ctx context.Context, id, userID string) (*model.Bookmark, error) {
	if !isUUID(id) {
		return nil, nil
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT `+bookmarkColumns+` FROM bookmarks WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	b, err := scanBookmark(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find bookmark: %w", err)
	}
	return b, nil
}

// Create はブックマークを末尾に作成する。
func (r *PostgresBookmarkRepo) Create(ctx context.Context, bookmark *model.Bookmark) error {
	if bookmark.Tags == nil {
		bookmark.Tags = []string{}
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO bookmarks (id, user_id, url, title, summary, favicon_url, tags, position, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7,
		         (SELECT COALESCE(MAX(position) + 1, 0) FROM bookmarks WHERE user_id = $2),
		         $8, $8)
		 RETURNING position`,
		bookmark.ID, bookmark.UserID, bookmark.URL, bookmark.Title, bookmark.Summary,
		bookmark.FaviconURL, pq.Array(bookmark.Tags), bookmark.CreatedAt,
	).Scan(&bookmark.Position)
	if err != nil {
		return fmt.Errorf("failed to insert bookmark: %w", err)
	}
	return nil
}

// Update はnilでないフィールドのみを更新する。
func (r *PostgresBookmarkRepo) Update(ctx context.Context, userID, id string, patch model.BookmarkPatch) (*model.Bookmark, error) {
	if !isUUID(id) {
		return nil, nil
	}

	q, args := buildUpdateQuery(userID, id, patch, time.Now().UTC())
	b, err := scanBookmark(r.db.QueryRowContext(ctx, q, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update bookmark: %w", err)
	}
	return b, nil
}

// buildUpdateQuery は部分更新のUPDATE文を組み立てる。
// patchが空でもupdated_atのみ更新するSQLを返す。
func buildUpdateQuery(userID, id string, patch model.BookmarkPatch, now time.Time) (string, []interface{}) {
	var sets []string
	var args []interface{}

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.URL != nil {
		add("url", *patch.URL)
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Summary != nil {
		add("summary", *patch.Summary)
	}
	if patch.FaviconURL != nil {
		add("favicon_url", *patch.FaviconURL)
	}
	if patch.Tags != nil {
		tags := *patch.Tags
		if tags == nil {
			tags = []string{}
		}
		add("tags", pq.Array(tags))
	}
	add("updated_at", now)

	args = append(args, id, userID)
	q := fmt.Sprintf(
		`UPDATE bookmarks SET %s WHERE id = $%d AND user_id = $%d RETURNING `+bookmarkColumns,
		strings.Join(sets, ", "), len(args)-1, len(args),
	)
	return q, args
}

// DeleteByIDAndUser は指定ブックマークを削除する。
func (r *PostgresBookmarkRepo) DeleteByIDAndUser(ctx context.Context, id, userID string) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM bookmarks WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete bookmark: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// UpdatePosition は1件のpositionを更新する。
// UUIDとして解釈できないIDはどの行にも一致しないため0を返す。
func (r *PostgresBookmarkRepo) UpdatePosition(ctx context.Context, userID, id string, position int) (int64, error) {
	if !isUUID(id) {
		return 0, nil
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE bookmarks SET position = $1, updated_at = now() WHERE id = $2 AND user_id = $3`,
		position, id, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update position of %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// UpdatePositions は複数件のpositionを単一トランザクション内の1文で更新する。
// 同じIDが複数回含まれる場合、どの値が適用されるかは保証しない。
func (r *PostgresBookmarkRepo) UpdatePositions(ctx context.Context, userID string, updates []model.PositionUpdate) (int64, error) {
	ids := make([]string, 0, len(updates))
	positions := make([]int64, 0, len(updates))
	for _, u := range updates {
		if !isUUID(u.ID) {
			continue
		}
		ids = append(ids, u.ID)
		positions = append(positions, int64(u.Position))
	}
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE bookmarks AS b
		 SET position = u.position, updated_at = now()
		 FROM unnest($2::uuid[], $3::int[]) AS u(id, position)
		 WHERE b.id = u.id AND b.user_id = $1`,
		userID, pq.Array(ids), pq.Array(positions),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update positions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return n, nil
}

// ListTags はユーザーが使用しているタグを初出順に重複なく返す。
func (r *PostgresBookmarkRepo) ListTags(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT tags FROM bookmarks WHERE user_id = $1`+bookmarkOrder,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	var all [][]string
	for rows.Next() {
		var tags []string
		if err := rows.Scan(pq.Array(&tags)); err != nil {
			return nil, fmt.Errorf("failed to scan tags: %w", err)
		}
		all = append(all, tags)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tags: %w", err)
	}

	return uniqueTags(all), nil
}

// uniqueTags は出現順を保ったまま重複を除いたタグ一覧を返す。
func uniqueTags(lists [][]string) []string {
	seen := make(map[string]struct{})
	result := []string{}
	for _, tags := range lists {
		for _, tag := range tags {
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			result = append(result, tag)
		}
	}
	return result
}

// DeleteByUserID はユーザーの全ブックマークを削除する。
func (r *PostgresBookmarkRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM bookmarks WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user bookmarks: %w", err)
	}
	return nil
}

func (r *PostgresBookmarkRepo) queryBookmarks(ctx context.Context, query string, args ...interface{}) ([]*model.Bookmark, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookmarks: %w", err)
	}
	defer rows.Close()

	bookmarks := []*model.Bookmark{}
	for rows.Next() {
		b, err := scanBookmark(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bookmark: %w", err)
		}
		bookmarks = append(bookmarks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookmarks: %w", err)
	}
	return bookmarks, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBookmark(s rowScanner) (*model.Bookmark, error) {
	b := &model.Bookmark{}
	err := s.Scan(
		&b.ID, &b.UserID, &b.URL, &b.Title, &b.Summary, &b.FaviconURL,
		pq.Array(&b.Tags), &b.Position, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if b.Tags == nil {
		b.Tags = []string{}
	}
	return b, nil
}

// isUUID はidがUUIDとして解釈できるかを返す。
// 解釈できないIDはどの行にも一致しないため、DBに問い合わせずに扱う。
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// compile-time interface check
var _ BookmarkRepository = (*PostgresBookmarkRepo)(nil)
