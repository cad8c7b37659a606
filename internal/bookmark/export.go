package bookmark

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/feeds"

	"github.com/hitoshi/bookmarkman/internal/model"
)

// ExportFormat はエクスポート形式を表す。
type ExportFormat string

const (
	ExportRSS  ExportFormat = "rss"
	ExportAtom ExportFormat = "atom"
	ExportJSON ExportFormat = "json"
)

// ContentType は形式に対応するContent-Typeを返す。
func (f ExportFormat) ContentType() string {
	switch f {
	case ExportAtom:
		return "application/atom+xml; charset=utf-8"
	case ExportJSON:
		return "application/feed+json; charset=utf-8"
	default:
		return "application/rss+xml; charset=utf-8"
	}
}

// ParseExportFormat は形式名を解釈する。空の場合はrss。
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return ExportRSS, nil
	case ExportRSS, ExportAtom, ExportJSON:
		return f, nil
	default:
		return "", model.NewInvalidFeedFormatError(s)
	}
}

// Export はユーザーのブックマークをposition順のフィードとして出力する。
func (s *Service) Export(ctx context.Context, userID string, format ExportFormat) (string, error) {
	bookmarks, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to list bookmarks: %w", err)
	}

	feed := buildFeed(bookmarks, s.config.BaseURL, time.Now().UTC())

	var out string
	switch format {
	case ExportAtom:
		out, err = feed.ToAtom()
	case ExportJSON:
		out, err = feed.ToJSON()
	default:
		out, err = feed.ToRss()
	}
	if err != nil {
		return "", fmt.Errorf("failed to render %s feed: %w", format, err)
	}
	return out, nil
}

func buildFeed(bookmarks []*model.Bookmark, baseURL string, now time.Time) *feeds.Feed {
	feed := &feeds.Feed{
		Title:       "Bookmarks",
		Link:        &feeds.Link{Href: baseURL},
		Description: "保存したブックマーク",
		Created:     now,
	}

	for _, b := range bookmarks {
		feed.Add(&feeds.Item{
			Id:          b.ID,
			Title:       b.Title,
			Link:        &feeds.Link{Href: b.URL},
			Description: b.Summary,
			Created:     b.CreatedAt,
		})
	}
	return feed
}
