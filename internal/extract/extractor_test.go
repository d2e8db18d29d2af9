package extract

import (
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/huddle/internal/model"
)

// mockTextExtractor はTextExtractorのテスト用モック。
type mockTextExtractor struct {
	plainTextFunc func(rawHTML string) string
}

func (m *mockTextExtractor) PlainText(rawHTML string) string {
	if m.plainTextFunc != nil {
		return m.plainTextFunc(rawHTML)
	}
	return rawHTML
}

// stripTags は簡易的なプレーンテキスト化を模倣するテスト用ヘルパー。
func newPassthroughExtractor() *Extractor {
	return NewExtractor(&mockTextExtractor{})
}

func TestExtract_CanonicalURL_PrefersLink(t *testing.T) {
	e := newPassthroughExtractor()

	item := model.RawItem{
		Link:  "https://example.com/article",
		GUID:  "guid-123",
		Title: "Article",
	}

	got, err := e.Extract(item, model.SourceKindRSS)
	if err != nil {
		t.Fatalf("Extract は失敗してはならない: %v", err)
	}
	if got.CanonicalURL != "https://example.com/article" {
		t.Errorf("CanonicalURL = %q, want link", got.CanonicalURL)
	}
}

func TestExtract_CanonicalURL_FallsBackToGUID(t *testing.T) {
	e := newPassthroughExtractor()

	item := model.RawItem{
		GUID:  "https://example.com/guid-entry",
		Title: "Article",
	}

	got, err := e.Extract(item, model.SourceKindRSS)
	if err != nil {
		t.Fatalf("Extract は失敗してはならない: %v", err)
	}
	if got.CanonicalURL != "https://example.com/guid-entry" {
		t.Errorf("CanonicalURL = %q, want guid", got.CanonicalURL)
	}
}

func TestExtract_NoLinkNoGUID_ReturnsError(t *testing.T) {
	e := newPassthroughExtractor()

	item := model.RawItem{Title: "orphan"}

	_, err := e.Extract(item, model.SourceKindRSS)
	if !errors.Is(err, ErrNoCanonicalURL) {
		t.Errorf("err = %v, want ErrNoCanonicalURL", err)
	}
}

func TestExtract_MissingTitle_UsesPlaceholder(t *testing.T) {
	e := newPassthroughExtractor()

	item := model.RawItem{Link: "https://example.com/a"}

	got, err := e.Extract(item, model.SourceKindRSS)
	if err != nil {
		t.Fatalf("Extract は失敗してはならない: %v", err)
	}
	if got.Title != "(no title)" {
		t.Errorf("Title = %q, want %q", got.Title, "(no title)")
	}
}

func TestExtract_MissingPublished_FallsBackToNow(t *testing.T) {
	e := newPassthroughExtractor()

	before := time.Now()
	got, err := e.Extract(model.RawItem{Link: "https://example.com/a"}, model.SourceKindRSS)
	after := time.Now()

	if err != nil {
		t.Fatalf("Extract は失敗してはならない: %v", err)
	}
	if got.PublishedAt.Before(before) || got.PublishedAt.After(after) {
		t.Errorf("PublishedAt = %v, want between %v and %v", got.PublishedAt, before, after)
	}
}

func TestExtract_Published_UsesParsedValue(t *testing.T) {
	e := newPassthroughExtractor()

	published := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	got, err := e.Extract(model.RawItem{
		Link:      "https://example.com/a",
		Published: &published,
	}, model.SourceKindRSS)

	if err != nil {
		t.Fatalf("Extract は失敗してはならない: %v", err)
	}
	if !got.PublishedAt.Equal(published) {
		t.Errorf("PublishedAt = %v, want %v", got.PublishedAt, published)
	}
}

func TestExtract_Kind_FollowsSourceKind(t *testing.T) {
	e := newPassthroughExtractor()

	tests := []struct {
		kind model.SourceKind
		want model.ContentKind
	}{
		{model.SourceKindRSS, model.ContentKindArticle},
		{model.SourceKindYouTube, model.ContentKindVideo},
		{model.SourceKindPodcast, model.ContentKindAudio},
	}

	for _, tt := range tests {
		got, err := e.Extract(model.RawItem{Link: "https://example.com/a"}, tt.kind)
		if err != nil {
			t.Fatalf("Extract は失敗してはならない: %v", err)
		}
		if got.Kind != tt.want {
			t.Errorf("Kind(%s) = %q, want %q", tt.kind, got.Kind, tt.want)
		}
	}
}

func TestExtractDescription_PrefersPlainTextSnippet(t *testing.T) {
	e := NewExtractor(&mockTextExtractor{
		plainTextFunc: func(rawHTML string) string {
			if rawHTML == "<p>summary</p>" {
				return "summary"
			}
			return ""
		},
	})

	got, err := e.Extract(model.RawItem{
		Link:        "https://example.com/a",
		Description: "<p>summary</p>",
		Content:     "<div>full body</div>",
	}, model.SourceKindRSS)
	if err != nil {
		t.Fatalf("Extract は失敗してはならない: %v", err)
	}
	if got.Description != "summary" {
		t.Errorf("Description = %q, want plain text snippet", got.Description)
	}
}

func TestExtractDescription_FallsBackToContentBody(t *testing.T) {
	// プレーンテキスト化が空を返すケース（descriptionがタグのみ等）
	e := NewExtractor(&mockTextExtractor{
		plainTextFunc: func(string) string { return "" },
	})

	got, err := e.Extract(model.RawItem{
		Link:    "https://example.com/a",
		Content: "<div>full body</div>",
	}, model.SourceKindRSS)
	if err != nil {
		t.Fatalf("Extract は失敗してはならない: %v", err)
	}
	if got.Description != "<div>full body</div>" {
		t.Errorf("Description = %q, want raw content body", got.Description)
	}
}

func TestExtractDescription_FallsBackToRawDescription(t *testing.T) {
	e := NewExtractor(&mockTextExtractor{
		plainTextFunc: func(string) string { return "" },
	})

	got, err := e.Extract(model.RawItem{
		Link:        "https://example.com/a",
		Description: "<img src=\"x.png\">",
	}, model.SourceKindRSS)
	if err != nil {
		t.Fatalf("Extract は失敗してはならない: %v", err)
	}
	if got.Description != "<img src=\"x.png\">" {
		t.Errorf("Description = %q, want raw description", got.Description)
	}
}

func TestExtractThumbnail_PrefersMediaGroup(t *testing.T) {
	item := model.RawItem{
		MediaGroupThumbnail: "https://i.ytimg.com/vi/abc/hq.jpg",
		MediaThumbnail:      "https://example.com/generic.jpg",
		ITunesImage:         "https://example.com/itunes.jpg",
		Enclosures: []model.Enclosure{
			{URL: "https://example.com/enc.jpg", Type: "image/jpeg"},
		},
	}

	if got := extractThumbnail(item); got != "https://i.ytimg.com/vi/abc/hq.jpg" {
		t.Errorf("thumbnail = %q, want media:group thumbnail", got)
	}
}

func TestExtractThumbnail_ImageEnclosureBeatsMediaThumbnail(t *testing.T) {
	item := model.RawItem{
		MediaThumbnail: "https://example.com/generic.jpg",
		Enclosures: []model.Enclosure{
			{URL: "https://example.com/audio.mp3", Type: "audio/mpeg"},
			{URL: "https://example.com/enc.jpg", Type: "image/jpeg"},
		},
	}

	if got := extractThumbnail(item); got != "https://example.com/enc.jpg" {
		t.Errorf("thumbnail = %q, want image enclosure", got)
	}
}

func TestExtractThumbnail_SkipsNonImageEnclosures(t *testing.T) {
	item := model.RawItem{
		Enclosures: []model.Enclosure{
			{URL: "https://example.com/audio.mp3", Type: "audio/mpeg"},
		},
		ITunesImage: "https://example.com/itunes.jpg",
	}

	if got := extractThumbnail(item); got != "https://example.com/itunes.jpg" {
		t.Errorf("thumbnail = %q, want iTunes image", got)
	}
}

func TestExtractThumbnail_FallsBackToFirstImgSrc(t *testing.T) {
	item := model.RawItem{
		Content: `<p>intro</p><img class="hero" src="https://example.com/hero.png" alt=""><img src="https://example.com/second.png">`,
	}

	if got := extractThumbnail(item); got != "https://example.com/hero.png" {
		t.Errorf("thumbnail = %q, want first img src", got)
	}
}

func TestExtractThumbnail_NothingFound_ReturnsEmpty(t *testing.T) {
	item := model.RawItem{Content: "<p>no images here</p>"}

	if got := extractThumbnail(item); got != "" {
		t.Errorf("thumbnail = %q, want empty", got)
	}
}
