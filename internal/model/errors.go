// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, bookmark, preview, system
	Action   string // ユーザー向け対処方法
	Detail   string // 下位レイヤーのエラーメッセージ（5xxのみ設定）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeMissingFields      = "MISSING_FIELDS"
	ErrCodeNoUpdateFields     = "NO_UPDATE_FIELDS"
	ErrCodeInvalidURL         = "INVALID_URL"
	ErrCodeSSRFBlocked        = "SSRF_BLOCKED"
	ErrCodeInvalidPayload     = "INVALID_PAYLOAD"
	ErrCodeInvalidMatch       = "INVALID_MATCH"
	ErrCodeInvalidFeedFormat  = "INVALID_FEED_FORMAT"
	ErrCodeBookmarkNotFound   = "BOOKMARK_NOT_FOUND"
	ErrCodeReorderFailed      = "REORDER_FAILED"
	ErrCodePreviewFailed      = "PREVIEW_FAILED"
	ErrCodeInvalidEmail       = "INVALID_EMAIL"
	ErrCodeWeakPassword       = "WEAK_PASSWORD"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeEmailTaken         = "EMAIL_TAKEN"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeCSRFInvalid        = "CSRF_TOKEN_INVALID"
	ErrCodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストの形式が不正です。",
		Category: "validation",
		Action:   "リクエストボディを確認してください。",
	}
}

// NewMissingFieldsError は必須フィールド未指定エラーを生成する。
func NewMissingFieldsError(fields []string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingFields,
		Message:  fmt.Sprintf("必須項目が入力されていません: %s", strings.Join(fields, ", ")),
		Category: "validation",
		Action:   "URL、タイトル、概要、ファビコンURLをすべて入力してください。",
	}
}

// NewNoUpdateFieldsError は更新対象フィールドが1つもない場合のエラーを生成する。
func NewNoUpdateFieldsError() *APIError {
	return &APIError{
		Code:     ErrCodeNoUpdateFields,
		Message:  "更新する項目が指定されていません。",
		Category: "validation",
		Action:   "url、title、summary、favicon_url、tagsのいずれかを指定してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewInvalidPayloadError は並び替えリクエストの形式が不正な場合のエラーを生成する。
func NewInvalidPayloadError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPayload,
		Message:  fmt.Sprintf("並び替えリクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "updatesに {id, position} の配列を指定してください。",
	}
}

// NewInvalidMatchError はタグ一致方式が無効な場合のエラーを生成する。
func NewInvalidMatchError(match string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMatch,
		Message:  fmt.Sprintf("無効なタグ一致方式です: %s", match),
		Category: "validation",
		Action:   "match には any または all を指定してください。",
	}
}

// NewInvalidFeedFormatError はエクスポート形式が無効な場合のエラーを生成する。
func NewInvalidFeedFormatError(format string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFeedFormat,
		Message:  fmt.Sprintf("無効なエクスポート形式です: %s", format),
		Category: "validation",
		Action:   "format には rss または atom を指定してください。",
	}
}

// NewBookmarkNotFoundError はブックマーク未検出エラーを生成する。
// 他ユーザーのブックマークも同じエラーになる。
func NewBookmarkNotFoundError(bookmarkID string) *APIError {
	return &APIError{
		Code:     ErrCodeBookmarkNotFound,
		Message:  fmt.Sprintf("指定されたブックマークが見つかりません: %s", bookmarkID),
		Category: "bookmark",
		Action:   "ブックマーク一覧を再読み込みしてください。",
	}
}

// NewReorderFailedError は並び替えの一括更新に失敗した場合のエラーを生成する。
func NewReorderFailedError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeReorderFailed,
		Message:  "並び順の更新に失敗しました。",
		Category: "system",
		Action:   "一覧を再読み込みしてから、もう一度並び替えてください。",
		Detail:   errorDetail(err),
	}
}

// NewPreviewFailedError はプレビュー取得失敗エラーを生成する。
func NewPreviewFailedError(err error) *APIError {
	return &APIError{
		Code:     ErrCodePreviewFailed,
		Message:  "プレビューの取得に失敗しました。",
		Category: "preview",
		Action:   "URLが正しいか確認するか、タイトルと概要を手動で入力してください。",
		Detail:   errorDetail(err),
	}
}

// NewInvalidEmailError はメールアドレス形式エラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  "メールアドレスの形式が正しくありません。",
		Category: "validation",
		Action:   "有効なメールアドレスを入力してください。",
	}
}

// NewWeakPasswordError はパスワードポリシー違反エラーを生成する。
func NewWeakPasswordError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  fmt.Sprintf("パスワードが要件を満たしていません: %s", reason),
		Category: "validation",
		Action:   "8文字以上で、大文字・数字・記号をそれぞれ1文字以上含めてください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// メールアドレスとパスワードのどちらが誤っているかは区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して、もう一度ログインしてください。",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、別のメールアドレスで登録してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewCSRFInvalidError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから、もう一度お試しください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。下位レイヤーのメッセージをDetailにそのまま含める。
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
		Detail:   errorDetail(err),
	}
}

func errorDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
