// Package model はドメインモデルを定義する。
package model

import "time"

// Content は取り込み済みの1コンテンツを表す。
// CanonicalURLはコーパス全体で一意であり、重複排除の唯一のキーとなる。
// 取り込み後にインジェストコアが内容を変更することはない。
type Content struct {
	ID           string
	SourceID     string
	Title        string
	Description  string
	CanonicalURL string
	ThumbnailURL string
	Kind         ContentKind
	Author       string
	Categories   []string
	PublishedAt  time.Time
	FetchedAt    time.Time
	CreatedAt    time.Time
}

// ContentKind はコンテンツの種別を表す。
type ContentKind string

const (
	// ContentKindArticle は記事コンテンツ。
	ContentKindArticle ContentKind = "article"
	// ContentKindVideo は動画コンテンツ。
	ContentKindVideo ContentKind = "video"
	// ContentKindAudio は音声コンテンツ。
	ContentKindAudio ContentKind = "audio"
)

// RawItem はフィードパーサーが返す生のフィードアイテムを表す。
// フェッチャーがgofeedのアイテムから変換し、Extractorに渡される。
type RawItem struct {
	GUID                string
	Link                string
	Title               string
	Description         string // 未加工のdescription/summary
	Content             string // 未加工のコンテンツ本文（content:encoded等）
	Author              string
	Categories          []string
	Published           *time.Time
	PublishedRaw        string
	Enclosures          []Enclosure
	MediaGroupThumbnail string // media:group配下のmedia:thumbnail（YouTubeフィード）
	MediaThumbnail      string // 汎用media:thumbnail
	ITunesImage         string // iTunes名前空間のimage
}

// Enclosure はフィードアイテムのエンクロージャ（添付メディア）を表す。
type Enclosure struct {
	URL  string
	Type string
}

// NormalizedItem はExtractorが生成する正規化済みアイテムを表す。
// 重複排除ゲートウェイに渡され、新規の場合のみContentとして永続化される。
type NormalizedItem struct {
	CanonicalURL string
	Title        string
	Description  string
	ThumbnailURL string
	Kind         ContentKind
	Author       string
	Categories   []string
	PublishedAt  time.Time
}

// BatchStats は1バッチ実行の集計結果を表す。
type BatchStats struct {
	SourcesSucceeded int
	SourcesFailed    int
	ItemsIngested    int
	ItemsSkipped     int
	Duration         time.Duration
}
