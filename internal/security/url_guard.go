// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// ErrBlockedDestination はSSRF対策で拒否された宛先を表す。
var ErrBlockedDestination = errors.New("destination is not allowed")

// URLGuard はプレビュー取得先URLの検証とSSRF対策済みHTTPクライアントの生成を行う。
type URLGuard interface {
	// Check はURLを静的に検証し、解析済みのURLを返す。
	// スキームやホストが不正な場合はエラー、
	// プライベートIPやlocalhostの場合はErrBlockedDestinationをラップしたエラーを返す。
	Check(rawURL string) (*url.URL, error)

	// Client はSSRF対策済みのHTTPクライアントを返す。
	// DNS解決後のIPアドレスもsafeurlが検証する。
	Client(timeout time.Duration) *http.Client
}

var (
	guardSchemes = []string{"http", "https"}
	guardPorts   = []uint16{80, 443}

	// 0.0.0.0/8 と :: は未指定アドレス
	guardCIDRs = []string{
		"0.0.0.0/8",
		"10.0.0.0/8",
		"100.64.0.0/10",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"::/128",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
	}
)

type urlGuard struct {
	networks []*net.IPNet
}

// NewURLGuard はURLGuardを生成する。
func NewURLGuard() URLGuard {
	g := &urlGuard{}
	for _, cidr := range guardCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %s: %v", cidr, err))
		}
		g.networks = append(g.networks, network)
	}
	return g
}

func (g *urlGuard) Check(rawURL string) (*url.URL, error) {
	u, err := ParseHTTPURL(rawURL)
	if err != nil {
		return nil, err
	}

	host := strings.ToLower(u.Hostname())
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return nil, fmt.Errorf("%w: %s", ErrBlockedDestination, host)
	}

	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			ip = v4
		}
		for _, n := range g.networks {
			if n.Contains(ip) {
				return nil, fmt.Errorf("%w: %s", ErrBlockedDestination, ip)
			}
		}
	}

	return u, nil
}

func (g *urlGuard) Client(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(guardSchemes...).
		SetAllowedPorts(toInts(guardPorts)...).
		Build()

	return safeurl.Client(cfg).Client
}

func toInts(ports []uint16) []int {
	out := make([]int, len(ports))
	for i, p := range ports {
		out[i] = int(p)
	}
	return out
}

// ParseHTTPURL はhttpまたはhttpsの絶対URLのみを受け付けて解析する。
// ブックマークのurl、favicon_urlの検証にも使用する。
func ParseHTTPURL(rawURL string) (*url.URL, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, errors.New("empty URL")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("malformed URL: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, errors.New("missing host")
	}

	return u, nil
}
