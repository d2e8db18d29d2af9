// Package model はドメインモデルを定義する。
package model

import "time"

// Source はコンテンツの取得元（RSSフィード、YouTubeチャンネル、ポッドキャスト）を表す。
type Source struct {
	ID             string
	Name           string
	Kind           SourceKind
	FeedURL        string
	SiteURL        string
	LogoURL        string
	Active         bool
	LastFetchedAt  *time.Time
	LastIngestedAt *time.Time
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SourceKind はソースの種別を表す。
type SourceKind string

const (
	// SourceKindRSS はRSS/Atom形式の記事フィード。
	SourceKindRSS SourceKind = "rss"
	// SourceKindYouTube はYouTubeチャンネルフィード。
	SourceKindYouTube SourceKind = "youtube"
	// SourceKindPodcast はポッドキャスト（音声）フィード。
	SourceKindPodcast SourceKind = "podcast"
)

// ValidSourceKind はソース種別が定義済みの値かを検証する。
func ValidSourceKind(kind SourceKind) bool {
	switch kind {
	case SourceKindRSS, SourceKindYouTube, SourceKindPodcast:
		return true
	}
	return false
}

// ContentKindFor はソース種別から生成されるコンテンツ種別を返す。
// この対応はソース種別のみで決まり、アイテムの内容には依存しない。
func (k SourceKind) ContentKindFor() ContentKind {
	switch k {
	case SourceKindYouTube:
		return ContentKindVideo
	case SourceKindPodcast:
		return ContentKindAudio
	default:
		return ContentKindArticle
	}
}
