package model

import "time"

// Bookmark は保存されたリンク1件を表す。
// UserIDは所有者の識別子で、クライアントには返さない。
type Bookmark struct {
	ID         string    `json:"id"`
	UserID     string    `json:"-"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Summary    string    `json:"summary"`
	FaviconURL string    `json:"favicon_url"`
	Tags       []string  `json:"tags"`
	Position   int       `json:"position"`
	CreatedAt  time.Time `json:"created_at"`
}

// BookmarkInput はブックマーク作成時の入力を表す。
type BookmarkInput struct {
	URL        string   `json:"url"`
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	FaviconURL string   `json:"favicon_url"`
	Tags       []string `json:"tags"`
}

// BookmarkPatch はブックマークの部分更新を表す。
// nilのフィールドは「指定なし」で、既存値を変更しない。
type BookmarkPatch struct {
	URL        *string   `json:"url"`
	Title      *string   `json:"title"`
	Summary    *string   `json:"summary"`
	FaviconURL *string   `json:"favicon_url"`
	Tags       *[]string `json:"tags"`
}

// IsEmpty は更新対象のフィールドが1つもない場合にtrueを返す。
func (p BookmarkPatch) IsEmpty() bool {
	return p.URL == nil && p.Title == nil && p.Summary == nil && p.FaviconURL == nil && p.Tags == nil
}

// PositionUpdate は並び替えバッチの1要素を表す。
type PositionUpdate struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
}

// TagMatch はタグフィルタの一致方式を表す。
type TagMatch string

const (
	// TagMatchAny は指定タグのいずれかを含むブックマークに一致する。
	TagMatchAny TagMatch = "any"
	// TagMatchAll は指定タグをすべて含むブックマークに一致する。
	TagMatchAll TagMatch = "all"
)

// SearchQuery は検索条件を表す。
// TextとTagsの両方が指定された場合はAND条件で結合する。
type SearchQuery struct {
	Text  string
	Tags  []string
	Match TagMatch
}

// Preview はURLから取得したメタデータのプレビューを表す。
type Preview struct {
	Title      string `json:"title"`
	Summary    string `json:"summary"`
	FaviconURL string `json:"favicon_url"`
}
