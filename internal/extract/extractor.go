// Package extract はフィードアイテムからのメタデータ抽出を提供する。
//
// Extractorは形の揃わないフィードアイテムから正規URL・タイトル・説明文・
// 公開日時・サムネイルURLを優先順位付きの抽出戦略で導出し、
// 正規化済みアイテム（model.NormalizedItem）を生成する。
package extract

import (
	"errors"
	"regexp"
	"time"

	"github.com/hitoshi/huddle/internal/model"
)

// ErrNoCanonicalURL はリンクもGUIDも持たないアイテムを表す。
// 該当アイテムはログに記録してスキップされ、バッチは失敗しない。
var ErrNoCanonicalURL = errors.New("item has neither link nor guid")

// placeholderTitle はタイトルを持たないアイテムに与える定数タイトル。
// タイトル欠落はアイテムを棄却する理由にならない。
const placeholderTitle = "(no title)"

// imgSrcPattern はコンテンツ本文から最初の<img src="...">を抽出する正規表現。
// サムネイル抽出の最終フォールバックとして使用する。
var imgSrcPattern = regexp.MustCompile(`<img[^>]+src\s*=\s*["']([^"']+)["']`)

// TextExtractor はHTMLからプレーンテキストを抽出するインターフェース。
// security.ContentSanitizerServiceのPlainTextを抽象化する。
type TextExtractor interface {
	PlainText(rawHTML string) string
}

// Extractor は生アイテムから正規化済みアイテムを導出する。
type Extractor struct {
	text TextExtractor
}

// NewExtractor はExtractorの新しいインスタンスを生成する。
func NewExtractor(text TextExtractor) *Extractor {
	return &Extractor{text: text}
}

// Extract は生アイテムとソース種別から正規化済みアイテムを生成する。
// 抽出規則は優先順位付きで、最初に一致した戦略が採用される。
// リンクもGUIDも持たないアイテムにはErrNoCanonicalURLを返す。
func (e *Extractor) Extract(item model.RawItem, sourceKind model.SourceKind) (*model.NormalizedItem, error) {
	// 正規URL: link優先、なければguid。どちらもなければ棄却。
	canonicalURL := item.Link
	if canonicalURL == "" {
		canonicalURL = item.GUID
	}
	if canonicalURL == "" {
		return nil, ErrNoCanonicalURL
	}

	// タイトル: 欠落時はプレースホルダで補完
	title := item.Title
	if title == "" {
		title = placeholderTitle
	}

	// 公開日時: パース済みの値がなければ抽出時点の現在時刻
	publishedAt := time.Now()
	if item.Published != nil {
		publishedAt = *item.Published
	}

	normalized := &model.NormalizedItem{
		CanonicalURL: canonicalURL,
		Title:        title,
		Description:  e.extractDescription(item),
		ThumbnailURL: extractThumbnail(item),
		Kind:         sourceKind.ContentKindFor(),
		Author:       item.Author,
		Categories:   item.Categories,
		PublishedAt:  publishedAt,
	}

	return normalized, nil
}

// extractDescription は説明文を優先順位付きで抽出する。
// 1. descriptionのプレーンテキストスニペット
// 2. 生のコンテンツ本文
// 3. 生のdescription/summary
// いずれも空なら空文字列（永続化時にNULL）。
func (e *Extractor) extractDescription(item model.RawItem) string {
	if snippet := e.text.PlainText(item.Description); snippet != "" {
		return snippet
	}
	if item.Content != "" {
		return item.Content
	}
	return item.Description
}

// extractThumbnail はサムネイルURLを優先順位付きで抽出する。
// 1. media:group配下のサムネイル（YouTubeフィード）
// 2. MIMEタイプがimage/で始まるエンクロージャ
// 3. 汎用media:thumbnail
// 4. iTunes image
// 5. コンテンツ本文中の最初の<img src="...">
// いずれも空なら空文字列（UI側がプレースホルダを補う）。
func extractThumbnail(item model.RawItem) string {
	if item.MediaGroupThumbnail != "" {
		return item.MediaGroupThumbnail
	}

	for _, enc := range item.Enclosures {
		if enc.URL != "" && hasImageMime(enc.Type) {
			return enc.URL
		}
	}

	if item.MediaThumbnail != "" {
		return item.MediaThumbnail
	}

	if item.ITunesImage != "" {
		return item.ITunesImage
	}

	return firstImgSrc(item.Content)
}

// hasImageMime はMIMEタイプがimage/で始まるかを判定する。
func hasImageMime(mimeType string) bool {
	return len(mimeType) >= 6 && mimeType[:6] == "image/"
}

// firstImgSrc はHTML本文から最初の<img>タグのsrc属性値を返す。
func firstImgSrc(body string) string {
	if body == "" {
		return ""
	}
	matches := imgSrcPattern.FindStringSubmatch(body)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}
