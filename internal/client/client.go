// Package client はbookmarkman APIの型付きHTTPクライアントを提供する。
// セッションCookieはCookieJarで保持し、状態変更リクエストにはCSRFトークンを付与する。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/bookmarkman/internal/middleware"
	"github.com/hitoshi/bookmarkman/internal/model"
)

const userAgent = "Bookmarkman/1.0 (+client)"

// StatusError はAPIがエラーステータスを返した場合のエラー。
// errors.Asで*model.APIErrorとしても取り出せる。
type StatusError struct {
	StatusCode int
	APIError   *model.APIError
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.APIError.Error())
}

// Unwrap は*model.APIErrorを返す。
func (e *StatusError) Unwrap() error {
	return e.APIError
}

// Client はbookmarkman APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string

	mu        sync.Mutex
	csrfToken string
}

// New はClientを生成する。
// httpClientがnilの場合はCookieJar付きのクライアントを生成する。
// 渡す場合はJarを設定しておくこと。
func New(baseURL string, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("ベースURLが不正です: %w", err)
	}
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("CookieJarの生成に失敗しました: %w", err)
		}
		httpClient = &http.Client{Jar: jar, Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}, nil
}

// --- 認証 ---

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userEnvelope struct {
	User *model.User `json:"user"`
}

// Signup はユーザーを登録してログイン状態にする。
func (c *Client) Signup(ctx context.Context, email, password string) (*model.User, error) {
	var out userEnvelope
	if err := c.do(ctx, http.MethodPost, "/auth/signup", credentials{email, password}, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

// Login はログインしてセッションCookieを保持する。
func (c *Client) Login(ctx context.Context, email, password string) (*model.User, error) {
	var out userEnvelope
	if err := c.do(ctx, http.MethodPost, "/auth/login", credentials{email, password}, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

// Logout はセッションを破棄する。
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
	c.clearCSRFToken()
	return err
}

// Me は現在のユーザーを返す。未ログインの場合はnil。
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var out userEnvelope
	err := c.do(ctx, http.MethodGet, "/auth/me", nil, &out)
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out.User, nil
}

// --- ブックマーク ---

type bookmarkList struct {
	Bookmarks []*model.Bookmark `json:"bookmarks"`
}

type bookmarkEnvelope struct {
	Bookmark *model.Bookmark `json:"bookmark"`
}

// List はブックマーク一覧をposition順で返す。
func (c *Client) List(ctx context.Context) ([]*model.Bookmark, error) {
	var out bookmarkList
	if err := c.do(ctx, http.MethodGet, "/bookmarks", nil, &out); err != nil {
		return nil, err
	}
	return out.Bookmarks, nil
}

// Search はテキストとタグで絞り込んだブックマークを返す。
func (c *Client) Search(ctx context.Context, query model.SearchQuery) ([]*model.Bookmark, error) {
	q := url.Values{}
	if query.Text != "" {
		q.Set("search", query.Text)
	}
	if len(query.Tags) > 0 {
		q.Set("tags", strings.Join(query.Tags, ","))
	}
	if query.Match != "" {
		q.Set("match", string(query.Match))
	}

	var out bookmarkList
	if err := c.do(ctx, http.MethodGet, "/bookmarks/search?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Bookmarks, nil
}

// Get はブックマーク1件を返す。
func (c *Client) Get(ctx context.Context, id string) (*model.Bookmark, error) {
	var out model.Bookmark
	if err := c.do(ctx, http.MethodGet, "/bookmarks/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create はブックマークを作成する。
func (c *Client) Create(ctx context.Context, input model.BookmarkInput) (*model.Bookmark, error) {
	var out bookmarkEnvelope
	if err := c.do(ctx, http.MethodPost, "/bookmarks", input, &out); err != nil {
		return nil, err
	}
	return out.Bookmark, nil
}

// Update は指定フィールドのみを更新する。
func (c *Client) Update(ctx context.Context, id string, patch model.BookmarkPatch) (*model.Bookmark, error) {
	var out bookmarkEnvelope
	if err := c.do(ctx, http.MethodPatch, "/bookmarks/"+url.PathEscape(id), patch, &out); err != nil {
		return nil, err
	}
	return out.Bookmark, nil
}

// Delete はブックマークを削除する。
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/bookmarks/"+url.PathEscape(id), nil, nil)
}

// Reorder は並び替えバッチを1回のリクエストで送信する。
func (c *Client) Reorder(ctx context.Context, updates []model.PositionUpdate) error {
	body := struct {
		Updates []model.PositionUpdate `json:"updates"`
	}{Updates: updates}
	if body.Updates == nil {
		body.Updates = []model.PositionUpdate{}
	}
	return c.do(ctx, http.MethodPatch, "/bookmarks/reorder", body, nil)
}

// Tags は使用中のタグ一覧を返す。
func (c *Client) Tags(ctx context.Context) ([]string, error) {
	var out struct {
		Tags []string `json:"tags"`
	}
	if err := c.do(ctx, http.MethodGet, "/bookmarks/tags", nil, &out); err != nil {
		return nil, err
	}
	return out.Tags, nil
}

// Export はブックマークをフィード形式（rss、atom、json）で取得する。
func (c *Client) Export(ctx context.Context, format string) ([]byte, error) {
	var out bytes.Buffer
	if err := c.do(ctx, http.MethodGet, "/bookmarks/feed?format="+url.QueryEscape(format), nil, &out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Preview はURLのタイトル・概要・ファビコンURLを取得する。
func (c *Client) Preview(ctx context.Context, rawURL string) (*model.Preview, error) {
	var out model.Preview
	body := struct {
		URL string `json:"url"`
	}{URL: rawURL}
	if err := c.do(ctx, http.MethodPost, "/preview", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Withdraw は退会する。
func (c *Client) Withdraw(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/users/me", nil, nil)
}

// --- 共通処理 ---

// do はリクエストを送信し、2xxならoutにデコードする。
// outが*bytes.Bufferの場合はボディをそのまま書き込む。
// 状態変更リクエストがCSRF検証で拒否された場合はトークンを取り直して1回だけ再送する。
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
		}
		payload = b
	}

	err := c.send(ctx, method, path, payload, out)
	if isSafeMethod(method) || !isCSRFRejection(err) {
		return err
	}

	c.logger.Warn("CSRFトークンが無効なため再取得します",
		slog.String("method", method),
		slog.String("path", path),
	)
	c.clearCSRFToken()
	return c.send(ctx, method, path, payload, out)
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, out interface{}) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if !isSafeMethod(method) {
		token, err := c.ensureCSRFToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set(middleware.CSRFHeaderName, token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("APIの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if buf, ok := out.(*bytes.Buffer); ok {
		_, err := io.Copy(buf, resp.Body)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}

// ensureCSRFToken は送信に使うCSRFトークンを返す。
// CookieJarにcsrf_token Cookieがあればその値を使う。サーバーが再発行した場合も追従する。
// 無ければ /csrf-token から取得する。
func (c *Client) ensureCSRFToken(ctx context.Context) (string, error) {
	if c.httpClient.Jar != nil {
		if token := c.csrfTokenFromJar(); token != "" {
			c.mu.Lock()
			c.csrfToken = token
			c.mu.Unlock()
			return token, nil
		}
		// Cookieが失効しているのでキャッシュは使えない
		c.clearCSRFToken()
	}

	c.mu.Lock()
	token := c.csrfToken
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := c.send(ctx, http.MethodGet, "/csrf-token", nil, &out); err != nil {
		return "", fmt.Errorf("CSRFトークンの取得に失敗しました: %w", err)
	}
	if out.Token == "" {
		return "", errors.New("CSRFトークンが空です")
	}

	c.mu.Lock()
	c.csrfToken = out.Token
	c.mu.Unlock()
	return out.Token, nil
}

func (c *Client) csrfTokenFromJar() string {
	u, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return ""
	}
	for _, cookie := range c.httpClient.Jar.Cookies(u) {
		if cookie.Name == middleware.CSRFCookieName {
			return cookie.Value
		}
	}
	return ""
}

func (c *Client) clearCSRFToken() {
	c.mu.Lock()
	c.csrfToken = ""
	c.mu.Unlock()
}

func isCSRFRejection(err error) bool {
	var se *StatusError
	return errors.As(err, &se) &&
		se.StatusCode == http.StatusForbidden &&
		se.APIError.Code == model.ErrCodeCSRFInvalid
}

func decodeError(resp *http.Response) error {
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Code == "" {
		return &StatusError{
			StatusCode: resp.StatusCode,
			APIError: &model.APIError{
				Code:    model.ErrCodeInternal,
				Message: http.StatusText(resp.StatusCode),
			},
		}
	}
	return &StatusError{
		StatusCode: resp.StatusCode,
		APIError: &model.APIError{
			Code:     body.Code,
			Message:  body.Message,
			Category: body.Category,
			Action:   body.Action,
			Detail:   body.Error,
		},
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
