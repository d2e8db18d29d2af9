// Package feed はフィードの取得・解析とフィード自動検出を提供する。
package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/huddle/internal/model"
)

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceを抽象化してテスタビリティを向上させる。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Fetcher はフィードドキュメントのHTTPフェッチとパースを行う。
// SSRF検証、タイムアウトとサイズ上限付きの取得、gofeedによるパースを実行し、
// 正規化前の生アイテム列（model.RawItem）を返す。
// ネットワーク障害・非2xx応答・パース不能はいずれも単一の
// 「フェッチ失敗」エラー（FETCH_FAILED）として原因文字列付きで返す。
// リトライ可否の判断はフェッチャーではなくオーケストレータの責務。
type Fetcher struct {
	ssrfGuard   SSRFValidator
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
func NewFetcher(ssrfGuard SSRFValidator, logger *slog.Logger, timeout time.Duration, maxBodySize int64) *Fetcher {
	return &Fetcher{
		ssrfGuard:   ssrfGuard,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// Fetch は指定URLのフィードを取得し、生アイテム列を返す。
// 空のアイテム列はエラーではない（そのサイクルに新着がないだけ）。
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]model.RawItem, error) {
	start := time.Now()

	// SSRF検証
	if err := f.ssrfGuard.ValidateURL(feedURL); err != nil {
		f.logger.Error("SSRF検証に失敗しました",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewFetchFailedError(fmt.Sprintf("SSRF検証失敗: %s", err.Error()))
	}

	// HTTPリクエスト構築
	client := f.ssrfGuard.NewSafeClient(f.timeout, f.maxBodySize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, model.NewFetchFailedError(fmt.Sprintf("リクエスト作成失敗: %s", err.Error()))
	}

	req.Header.Set("User-Agent", "Huddle/1.0 Fantasy Football Aggregator")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	// HTTPリクエスト実行
	resp, err := client.Do(req)
	if err != nil {
		f.logger.Error("HTTPリクエストに失敗しました",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewFetchFailedError(fmt.Sprintf("HTTPリクエスト失敗: %s", err.Error()))
	}
	defer resp.Body.Close()

	// 非2xxはフェッチ失敗
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.logger.Error("フィードが異常なHTTPステータスを返しました",
			slog.String("feed_url", feedURL),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, model.NewFetchFailedError(fmt.Sprintf("HTTPステータス %d", resp.StatusCode))
	}

	// レスポンスボディを読み込み（最大サイズ制限付き）
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, model.NewFetchFailedError(fmt.Sprintf("レスポンス読み取り失敗: %s", err.Error()))
	}

	// gofeedでフィードをパース
	parser := gofeed.NewParser()
	parsedFeed, err := parser.ParseString(string(body))
	if err != nil {
		f.logger.Error("フィードのパースに失敗しました",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewFetchFailedError(fmt.Sprintf("パース失敗: %s", err.Error()))
	}

	items := convertGofeedItems(parsedFeed.Items)

	f.logger.Info("フィードフェッチが完了しました",
		slog.String("feed_url", feedURL),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("items_total", len(items)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return items, nil
}

// convertGofeedItems はgofeedのアイテムをmodel.RawItemに変換する。
// サムネイル抽出に必要な名前空間拡張フィールド
// （media:group、media:thumbnail、iTunes image）もここで取り出す。
func convertGofeedItems(items []*gofeed.Item) []model.RawItem {
	rawItems := make([]model.RawItem, 0, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}

		raw := model.RawItem{
			GUID:                item.GUID,
			Link:                item.Link,
			Title:               item.Title,
			Description:         item.Description,
			Content:             item.Content,
			Categories:          item.Categories,
			PublishedRaw:        item.Published,
			MediaGroupThumbnail: mediaGroupThumbnail(item),
			MediaThumbnail:      mediaThumbnail(item),
			ITunesImage:         itunesImage(item),
		}

		// 著者情報
		if item.Author != nil {
			raw.Author = item.Author.Name
		}
		if raw.Author == "" && len(item.Authors) > 0 && item.Authors[0] != nil {
			raw.Author = item.Authors[0].Name
		}

		// 公開日時: gofeedがパース済みの値を優先する
		if item.PublishedParsed != nil {
			t := *item.PublishedParsed
			raw.Published = &t
		} else if item.UpdatedParsed != nil {
			t := *item.UpdatedParsed
			raw.Published = &t
		}
		if raw.PublishedRaw == "" {
			raw.PublishedRaw = item.Updated
		}

		// エンクロージャ
		for _, enc := range item.Enclosures {
			if enc == nil {
				continue
			}
			raw.Enclosures = append(raw.Enclosures, model.Enclosure{
				URL:  enc.URL,
				Type: enc.Type,
			})
		}

		rawItems = append(rawItems, raw)
	}

	return rawItems
}

// mediaGroupThumbnail はmedia:group配下のmedia:thumbnailのurl属性を返す。
// YouTubeチャンネルフィードはこの形式でサムネイルを提供する。
func mediaGroupThumbnail(item *gofeed.Item) string {
	for _, group := range item.Extensions["media"]["group"] {
		for _, thumb := range group.Children["thumbnail"] {
			if url := thumb.Attrs["url"]; url != "" {
				return url
			}
		}
	}
	return ""
}

// mediaThumbnail はアイテム直下のmedia:thumbnailのurl属性を返す。
func mediaThumbnail(item *gofeed.Item) string {
	for _, thumb := range item.Extensions["media"]["thumbnail"] {
		if url := thumb.Attrs["url"]; url != "" {
			return url
		}
	}
	return ""
}

// itunesImage はiTunes名前空間のimageを返す。
func itunesImage(item *gofeed.Item) string {
	if item.ITunesExt != nil {
		return item.ITunesExt.Image
	}
	return ""
}
