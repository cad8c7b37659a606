package preview

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"
)

const userAgent = "Bookmarkman/1.0 (+preview)"

// page は取得したページの本文とContent-Type。
type page struct {
	body        []byte
	contentType string
}

// fetchPage は対象URLを取得する。2xx以外のステータスはエラーとして扱う。
func fetchPage(ctx context.Context, client *http.Client, u *url.URL, maxSize int64) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build page request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html, application/xhtml+xml, application/rss+xml, application/atom+xml, */*")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("page request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	body, err := readLimited(resp.Body, maxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}
	return &page{body: body, contentType: resp.Header.Get("Content-Type")}, nil
}

// title はページのタイトルを決定する。
// フィードの場合はフィードのタイトル、HTMLの場合は最初の<title>要素、
// どちらも無い場合はreadabilityが推定したタイトル、最後に対象URLを使う。
func (p *page) title(u *url.URL) string {
	if isFeed(p.contentType, p.body) {
		if t := feedTitle(p.body); t != "" {
			return t
		}
	}
	if t := htmlTitle(p.body); t != "" {
		return t
	}
	if t := readabilityTitle(p.body, u); t != "" {
		return t
	}
	return u.String()
}

var (
	feedMediaTypes = []string{"application/rss+xml", "application/atom+xml"}
	xmlMediaTypes  = []string{"text/xml", "application/xml"}
)

// isFeed はContent-Typeと本文の先頭からRSS/Atomフィードかを判定する。
func isFeed(contentType string, body []byte) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	mediaType = strings.ToLower(mediaType)

	for _, mt := range feedMediaTypes {
		if mediaType == mt {
			return true
		}
	}

	isXML := false
	for _, mt := range xmlMediaTypes {
		if mediaType == mt {
			isXML = true
			break
		}
	}
	if !isXML || len(body) == 0 {
		return false
	}

	// 先頭4KBにルート要素が含まれる
	n := min(len(body), 4096)
	prefix := strings.ToLower(string(body[:n]))
	if strings.Contains(prefix, "<rss") || strings.Contains(prefix, "<rdf:rdf") {
		return true
	}
	return strings.Contains(prefix, "<feed") && strings.Contains(prefix, "http://www.w3.org/2005/atom")
}

func feedTitle(body []byte) string {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(feed.Title)
}

// htmlTitle は最初の<title>要素のテキストを返す。
// svg内のtitle要素は対象外。
func htmlTitle(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	inSVG := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""

		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "svg":
				inSVG++
			case "title":
				if inSVG > 0 {
					continue
				}
				var sb strings.Builder
				for {
					tt := tokenizer.Next()
					if tt == html.TextToken {
						sb.Write(tokenizer.Text())
						continue
					}
					break
				}
				return strings.TrimSpace(sb.String())
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "svg" && inSVG > 0 {
				inSVG--
			}
		}
	}
}

func readabilityTitle(body []byte, u *url.URL) string {
	article, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(article.Title)
}

// faviconURL は慣例に従いオリジン直下の/favicon.icoを返す。
func faviconURL(u *url.URL) string {
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/favicon.ico"}).String()
}
