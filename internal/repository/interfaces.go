// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/huddle/internal/model"
)

// SourceRepository はソースデータの永続化インターフェース。
type SourceRepository interface {
	// FindByID は指定IDのソースを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Source, error)

	// FindByFeedURL はフィードURLでソースを検索する。見つからない場合はnilを返す。
	FindByFeedURL(ctx context.Context, feedURL string) (*model.Source, error)

	// Create はソースを作成する。
	Create(ctx context.Context, source *model.Source) error

	// Update はソース情報を更新する。
	Update(ctx context.Context, source *model.Source) error

	// ListAll は全ソースを名前の昇順で返す。
	ListAll(ctx context.Context) ([]*model.Source, error)

	// ListActive はアクティブなソースを名前の昇順で返す。
	// バッチはこの順序でソースを処理し、ログの再現性を保つ。
	ListActive(ctx context.Context) ([]*model.Source, error)

	// ListStale はlast_ingested_atがNULLまたはthresholdより古い
	// アクティブなソースを名前の昇順で返す。
	ListStale(ctx context.Context, threshold time.Duration) ([]*model.Source, error)

	// UpdateIngestHealth はソースの取り込み健全性フィールド
	// （last_fetched_at、last_ingested_at、last_error）を更新する。
	UpdateIngestHealth(ctx context.Context, source *model.Source) error

	// SetActive はソースのアクティブフラグを切り替える。
	// 指定IDのソースが存在しない場合はmodel.IngestError(SOURCE_NOT_FOUND)を返す。
	SetActive(ctx context.Context, id string, active bool) error
}

// ContentRepository はコンテンツデータの永続化インターフェース。
type ContentRepository interface {
	// FindByCanonicalURL は正規URLでコンテンツを検索する。見つからない場合はnilを返す。
	FindByCanonicalURL(ctx context.Context, canonicalURL string) (*model.Content, error)

	// CreateWithTags はコンテンツとそのタグ関連付けを単一トランザクションで作成する。
	// コンテンツのみ・タグのみの部分書き込みは観測されない。
	// 正規URLの一意制約違反（並行取り込みによる重複）の場合は
	// ErrDuplicateCanonicalURLを返し、行は作成されない。
	CreateWithTags(ctx context.Context, content *model.Content, tagIDs []string) error

	// CountBySourceID は指定ソースのコンテンツ数を返す。
	CountBySourceID(ctx context.Context, sourceID string) (int, error)
}

// TagRepository はタグデータの永続化インターフェース。
type TagRepository interface {
	// ListWithPatterns は全タグをパターン付きで名前の昇順で返す。
	// パターンはtag_patternsのposition順に並ぶ。
	ListWithPatterns(ctx context.Context) ([]*model.Tag, error)
}
