// Package preview はURLからタイトル・概要・faviconを推定するプレビュー機能を提供する。
package preview

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/bookmarkman/internal/model"
	"github.com/hitoshi/bookmarkman/internal/security"
)

// MetricsRecorder はプレビュー結果を記録するインターフェース。
type MetricsRecorder interface {
	RecordPreview(result string)
	RecordPreviewCacheHit()
}

type noopMetrics struct{}

func (noopMetrics) RecordPreview(string)   {}
func (noopMetrics) RecordPreviewCacheHit() {}

// TextCleaner は取得したテキストからマークアップを除去する。
type TextCleaner interface {
	Clean(raw string) string
}

// ServiceConfig はプレビューサービスの設定。
type ServiceConfig struct {
	Timeout         time.Duration // ページ取得と要約取得それぞれのタイムアウト
	MaxSize         int64         // レスポンスボディの最大サイズ
	SummaryEndpoint string
}

// Service はプレビュー取得のビジネスロジックを提供する。
type Service struct {
	guard      security.URLGuard
	summarizer *Summarizer
	pageClient *http.Client
	cleaner    TextCleaner
	cache      Cache
	metrics    MetricsRecorder
	config     ServiceConfig
}

// NewService はServiceを生成する。
// ページ取得にはguardのSSRF対策済みクライアントを使用する。cacheとmetricsはnilでもよい。
func NewService(guard security.URLGuard, cleaner TextCleaner, cache Cache, metrics MetricsRecorder, config ServiceConfig) *Service {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if cache == nil {
		cache = NopCache{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Service{
		guard:      guard,
		summarizer: NewSummarizer(&http.Client{Timeout: config.Timeout}, slog.Default(), config.SummaryEndpoint, config.MaxSize),
		pageClient: guard.Client(config.Timeout),
		cleaner:    cleaner,
		cache:      cache,
		metrics:    metrics,
		config:     config,
	}
}

// Preview はURLのタイトル・要約・faviconを返す。
// 要約の取得とページの取得は並行に行い、どちらかが失敗した場合は
// 両方のエラーをまとめたPREVIEW_FAILEDを返す。
func (s *Service) Preview(ctx context.Context, rawURL string) (*model.Preview, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, model.NewMissingFieldsError([]string{"url"})
	}

	u, err := s.guard.Check(rawURL)
	if err != nil {
		if errors.Is(err, security.ErrBlockedDestination) {
			slog.Warn("プレビュー対象がブロックされました",
				slog.String("url", rawURL),
				slog.String("error", err.Error()),
			)
			return nil, model.NewSSRFBlockedError()
		}
		return nil, model.NewInvalidURLError(err.Error())
	}

	if cached, err := s.cache.Get(ctx, u.String()); err != nil {
		slog.Warn("プレビューキャッシュの取得に失敗しました", slog.String("error", err.Error()))
	} else if cached != nil {
		s.metrics.RecordPreviewCacheHit()
		s.metrics.RecordPreview("success")
		return cached, nil
	}

	var (
		wg         sync.WaitGroup
		summary    string
		pg         *page
		summaryErr error
		pageErr    error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		summary, summaryErr = s.summarizer.Summarize(ctx, u.String())
	}()
	go func() {
		defer wg.Done()
		pg, pageErr = fetchPage(ctx, s.pageClient, u, s.config.MaxSize)
	}()
	wg.Wait()

	if err := errors.Join(summaryErr, pageErr); err != nil {
		s.metrics.RecordPreview("failure")
		slog.Error("プレビューの取得に失敗しました",
			slog.String("url", u.String()),
			slog.String("error", err.Error()),
		)
		return nil, model.NewPreviewFailedError(err)
	}

	p := &model.Preview{
		Title:      s.cleaner.Clean(pg.title(u)),
		Summary:    s.cleaner.Clean(summary),
		FaviconURL: faviconURL(u),
	}
	if p.Title == "" {
		p.Title = u.String()
	}

	if err := s.cache.Set(ctx, u.String(), p); err != nil {
		slog.Warn("プレビューキャッシュの保存に失敗しました", slog.String("error", err.Error()))
	}

	s.metrics.RecordPreview("success")
	return p, nil
}
