// Package ingest はコンテンツ取り込みパイプラインの中核を提供する。
// 重複排除ゲートウェイ、ソース単位のオーケストレータ、
// 全ソースを処理するバッチとその単一実行ガードを含む。
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/huddle/internal/model"
	"github.com/hitoshi/huddle/internal/repository"
)

// Gateway は正規化済みアイテムの重複排除と永続化を行う。
// 正規URLの一意性がコーパス全体での唯一の重複排除機構であり、
// あいまい一致による二次的な重複排除は行わない。
type Gateway struct {
	contentRepo repository.ContentRepository
	logger      *slog.Logger
}

// NewGateway はGatewayの新しいインスタンスを生成する。
func NewGateway(contentRepo repository.ContentRepository, logger *slog.Logger) *Gateway {
	return &Gateway{
		contentRepo: contentRepo,
		logger:      logger,
	}
}

// Store は正規化済みアイテムをタグ関連付けとともに永続化する。
// 正規URLが既存の場合は何も書き込まず created=false を返す（スキップ集計用）。
// 新規の場合はContentとContentTagを単一トランザクションで作成する。
// 並行取り込みが同一正規URLを同時に書き込んだ場合、一意制約違反を
// スキップとして吸収する（行が重複することはない）。
func (g *Gateway) Store(ctx context.Context, sourceID string, item *model.NormalizedItem, tagIDs []string) (created bool, err error) {
	existing, err := g.contentRepo.FindByCanonicalURL(ctx, item.CanonicalURL)
	if err != nil {
		return false, fmt.Errorf("正規URLの照会に失敗しました: %w", err)
	}
	if existing != nil {
		return false, nil
	}

	now := time.Now()
	content := &model.Content{
		ID:           uuid.New().String(),
		SourceID:     sourceID,
		Title:        item.Title,
		Description:  item.Description,
		CanonicalURL: item.CanonicalURL,
		ThumbnailURL: item.ThumbnailURL,
		Kind:         item.Kind,
		Author:       item.Author,
		Categories:   item.Categories,
		PublishedAt:  item.PublishedAt,
		FetchedAt:    now,
		CreatedAt:    now,
	}

	if err := g.contentRepo.CreateWithTags(ctx, content, tagIDs); err != nil {
		if errors.Is(err, repository.ErrDuplicateCanonicalURL) {
			// 照会と挿入の間に別の取り込みが同一URLを書き込んだ
			g.logger.Info("並行取り込みによる重複を検出したためスキップします",
				slog.String("canonical_url", item.CanonicalURL),
			)
			return false, nil
		}
		return false, fmt.Errorf("コンテンツの永続化に失敗しました: %w", err)
	}

	return true, nil
}
