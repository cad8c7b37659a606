package preview

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// DefaultSummaryEndpoint は要約サービスのエンドポイント。対象URLをパスとして連結して呼び出す。
const DefaultSummaryEndpoint = "https://r.jina.ai/"

// Summarizer は外部の要約サービスのクライアント。
type Summarizer struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
	maxSize    int64
}

// NewSummarizer はSummarizerを生成する。endpointが空の場合はDefaultSummaryEndpointを使用する。
func NewSummarizer(httpClient *http.Client, logger *slog.Logger, endpoint string, maxSize int64) *Summarizer {
	if endpoint == "" {
		endpoint = DefaultSummaryEndpoint
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   endpoint,
		maxSize:    maxSize,
	}
}

// Summarize は対象URLの要約テキストを取得する。
// 2xx以外のステータスはエラーとして扱う。
func (s *Summarizer) Summarize(ctx context.Context, target string) (string, error) {
	reqURL := strings.TrimRight(s.endpoint, "/") + "/" + url.PathEscape(target)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("要約リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/plain")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Error("要約サービスの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("url", target),
		)
		return "", fmt.Errorf("summary request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Error("要約サービスがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("url", target),
		)
		return "", fmt.Errorf("summary service returned status %d", resp.StatusCode)
	}

	body, err := readLimited(resp.Body, s.maxSize)
	if err != nil {
		return "", fmt.Errorf("failed to read summary: %w", err)
	}
	return string(body), nil
}

// readLimited はmaxSizeバイトまで読み込む。maxSizeが0以下の場合は制限しない。
func readLimited(r io.Reader, maxSize int64) ([]byte, error) {
	if maxSize > 0 {
		r = io.LimitReader(r, maxSize)
	}
	return io.ReadAll(r)
}
