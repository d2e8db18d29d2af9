// Package feed はフィードの取得・解析とフィード自動検出を提供する。
package feed

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// logoTimeout はロゴ探索時のHTTPタイムアウト。
const logoTimeout = 5 * time.Second

// maxLogoPageSize はロゴ探索時に読み込む最大ページサイズ（1MB）。
const maxLogoPageSize = 1 * 1024 * 1024

// LogoResolverService はソースロゴURL解決のインターフェース。
type LogoResolverService interface {
	// ResolveLogoURL はサイトURLからロゴURLを解決する。
	// <link rel="icon">を優先し、見つからなければ/favicon.icoの存在を確認する。
	// 解決できない場合は空文字列を返す（エラーは返さない）。
	ResolveLogoURL(ctx context.Context, siteURL string) string
}

// LogoResolver はLogoResolverServiceの実装。
// ロゴはバイナリを保存せず、URLのみをソースに記録する。
type LogoResolver struct {
	ssrfGuard SSRFValidator
	logger    *slog.Logger
}

// NewLogoResolver はLogoResolverの新しいインスタンスを生成する。
func NewLogoResolver(ssrfGuard SSRFValidator, logger *slog.Logger) *LogoResolver {
	return &LogoResolver{
		ssrfGuard: ssrfGuard,
		logger:    logger,
	}
}

// ResolveLogoURL はサイトURLからロゴURLを解決する。
// 失敗はすべて「ロゴなし」に縮退する。ロゴは表示上の装飾であり、
// ソース登録を失敗させる理由にならない。
func (r *LogoResolver) ResolveLogoURL(ctx context.Context, siteURL string) string {
	if siteURL == "" {
		return ""
	}
	if err := r.ssrfGuard.ValidateURL(siteURL); err != nil {
		r.logger.Warn("ロゴ解決: SSRFブロック", "url", siteURL, "error", err)
		return ""
	}

	client := r.ssrfGuard.NewSafeClient(logoTimeout, maxLogoPageSize)

	// サイトHTMLの<link rel="icon">を探索
	if logoURL := r.findIconLink(ctx, client, siteURL); logoURL != "" {
		return logoURL
	}

	// フォールバック: /favicon.ico の存在確認
	faviconURL := guessDefaultFaviconURL(siteURL)
	if faviconURL == "" {
		return ""
	}
	if r.probeImage(ctx, client, faviconURL) {
		return faviconURL
	}

	return ""
}

// findIconLink はサイトHTMLのheadから<link rel="icon">のhrefを探す。
func (r *LogoResolver) findIconLink(ctx context.Context, client *http.Client, siteURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, siteURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", "Huddle/1.0 Fantasy Football Aggregator")

	resp, err := client.Do(req)
	if err != nil {
		r.logger.Warn("ロゴ解決: HTTPリクエスト失敗", "url", siteURL, "error", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLogoPageSize))
	if err != nil {
		return ""
	}

	baseU, err := url.Parse(siteURL)
	if err != nil {
		return ""
	}

	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			tagName := string(tn)

			if tagName == "body" {
				return ""
			}
			if tagName != "link" || !hasAttr {
				continue
			}

			var rel, href string
			for {
				key, val, more := tokenizer.TagAttr()
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = strings.ToLower(string(val))
				case "href":
					href = string(val)
				}
				if !more {
					break
				}
			}

			// rel="icon" / rel="shortcut icon" / rel="apple-touch-icon" を対象
			if href == "" || !strings.Contains(rel, "icon") {
				continue
			}
			return resolveURL(baseU, href)
		}
	}
}

// probeImage は指定URLが画像として取得可能かを確認する。
func (r *LogoResolver) probeImage(ctx context.Context, client *http.Client, imageURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", "Huddle/1.0 Fantasy Football Aggregator")

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxLogoPageSize))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}
	return isImageMime(extractMimeType(resp.Header.Get("Content-Type")))
}

// guessDefaultFaviconURL はサイトURLからデフォルトのfavicon URLを推測する。
func guessDefaultFaviconURL(siteURL string) string {
	u, err := url.Parse(siteURL)
	if err != nil {
		return ""
	}

	u.Path = "/favicon.ico"
	u.RawQuery = ""
	u.Fragment = ""

	return u.String()
}

// extractMimeType はContent-Typeヘッダーからメディアタイプを抽出する。
func extractMimeType(contentType string) string {
	if contentType == "" {
		return ""
	}
	// セミコロンの前の部分（charset等を除去）
	parts := strings.SplitN(contentType, ";", 2)
	return strings.TrimSpace(strings.ToLower(parts[0]))
}

// isImageMime はMIMEタイプが画像かどうかを判定する。
func isImageMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

// compile-time interface check
var _ LogoResolverService = (*LogoResolver)(nil)
