// Package model はドメインモデルを定義する。
package model

import "fmt"

// IngestError は統一エラーフォーマットを表す。
// 運用者に提示する原因カテゴリと対処方法を含む。
type IngestError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: fetch, validation, ingest, system
	Action   string // 運用者向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *IngestError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeFetchFailed         = "FETCH_FAILED"
	ErrCodeSourceNotFound      = "SOURCE_NOT_FOUND"
	ErrCodeDictionaryNotLoaded = "DICTIONARY_NOT_LOADED"
	ErrCodeInvalidURL          = "INVALID_URL"
	ErrCodeSSRFBlocked         = "SSRF_BLOCKED"
	ErrCodeFeedNotDetected     = "FEED_NOT_DETECTED"
	ErrCodeInvalidSourceKind   = "INVALID_SOURCE_KIND"
	ErrCodeDuplicateSource     = "DUPLICATE_SOURCE"
)

// NewFetchFailedError はフェッチ失敗エラーを生成する。
// ネットワーク障害、タイムアウト、非2xx応答、パース不能なドキュメントの
// いずれも単一の「フェッチ失敗」として扱い、原因文字列を保持する。
func NewFetchFailedError(reason string) *IngestError {
	return &IngestError{
		Code:     ErrCodeFetchFailed,
		Message:  fmt.Sprintf("フィードの取得に失敗しました: %s", reason),
		Category: "fetch",
		Action:   "フィードURLが正しいか確認し、しばらく待ってから再度お試しください。",
	}
}

// NewSourceNotFoundError はソース未検出エラーを生成する。
func NewSourceNotFoundError(sourceID string) *IngestError {
	return &IngestError{
		Code:     ErrCodeSourceNotFound,
		Message:  fmt.Sprintf("指定されたソースが見つかりません: %s", sourceID),
		Category: "ingest",
		Action:   "ソースIDを確認してください。",
	}
}

// NewDictionaryNotLoadedError はタグ辞書未ロードエラーを生成する。
// 初期化漏れによるプログラミングエラーであり、静かにタグなしへ
// 縮退させず必ず呼び出し元へ伝播させる。
func NewDictionaryNotLoadedError() *IngestError {
	return &IngestError{
		Code:     ErrCodeDictionaryNotLoaded,
		Message:  "タグ辞書がロードされていません。",
		Category: "system",
		Action:   "バッチ実行前にLoadDictionaryを呼び出してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *IngestError {
	return &IngestError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *IngestError {
	return &IngestError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewFeedNotDetectedError はフィード未検出エラーを生成する。
func NewFeedNotDetectedError(url string) *IngestError {
	return &IngestError{
		Code:     ErrCodeFeedNotDetected,
		Message:  fmt.Sprintf("指定されたURLからRSS/Atomフィードを検出できませんでした: %s", url),
		Category: "feed",
		Action:   "フィードのURLを直接入力するか、フィードが公開されているページのURLを確認してください。",
	}
}

// NewDuplicateSourceError はソース重複エラーを生成する。
func NewDuplicateSourceError(feedURL string) *IngestError {
	return &IngestError{
		Code:     ErrCodeDuplicateSource,
		Message:  fmt.Sprintf("同じフィードURLのソースが既に登録されています: %s", feedURL),
		Category: "validation",
		Action:   "既存のソースを確認してください。",
	}
}

// NewInvalidSourceKindError は無効なソース種別エラーを生成する。
func NewInvalidSourceKindError(kind string) *IngestError {
	return &IngestError{
		Code:     ErrCodeInvalidSourceKind,
		Message:  fmt.Sprintf("無効なソース種別です: %s", kind),
		Category: "validation",
		Action:   "ソース種別には rss、youtube、podcast のいずれかを指定してください。",
	}
}
