// Package gapcheck は取り込みの空白期間を検出して回復するワーカーを提供する。
// プロセス再起動やスケジューラの停止で定期取り込みが走らなかった場合に、
// 起動時と日次のチェックで遅れを取り戻す。
package gapcheck

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/huddle/internal/model"
	"github.com/hitoshi/huddle/internal/repository"
)

// BatchRunner はバッチ取り込みの実行インターフェース。
type BatchRunner interface {
	RunBatch(ctx context.Context) (*model.BatchStats, error)
}

// Checker は取り込みが滞っているソースを検出し、バッチ取り込みを起動する。
// 「滞っている」とは、アクティブなソースのlast_ingested_atが閾値より
// 古い、または一度も取り込まれていない状態を指す。
type Checker struct {
	sourceRepo repository.SourceRepository
	batch      BatchRunner
	logger     *slog.Logger
	threshold  time.Duration
}

// NewChecker はCheckerの新しいインスタンスを生成する。
func NewChecker(
	sourceRepo repository.SourceRepository,
	batch BatchRunner,
	logger *slog.Logger,
	threshold time.Duration,
) *Checker {
	return &Checker{
		sourceRepo: sourceRepo,
		batch:      batch,
		logger:     logger,
		threshold:  threshold,
	}
}

// Start は起動直後に1回チェックを実行し、以後は指定間隔で繰り返す。
// コンテキストがキャンセルされるまで実行を継続する。
func (c *Checker) Start(ctx context.Context, interval time.Duration) {
	c.logger.Info("空白期間チェッカーを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("stale_threshold", c.threshold),
	)

	// 起動直後に1回実行（再起動による空白をここで検出する）
	if err := c.RunOnce(ctx); err != nil {
		c.logger.Error("空白期間チェックに失敗しました",
			slog.String("error", err.Error()),
		)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("空白期間チェッカーを停止しました")
			return
		case <-ticker.C:
			if err := c.RunOnce(ctx); err != nil {
				c.logger.Error("空白期間チェックに失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は滞留ソースを1回検出し、見つかった場合はバッチ取り込みを起動する。
// 滞留ソースがなければ何もしない。
func (c *Checker) RunOnce(ctx context.Context) error {
	stale, err := c.sourceRepo.ListStale(ctx, c.threshold)
	if err != nil {
		return err
	}

	if len(stale) == 0 {
		c.logger.Info("取り込みが滞っているソースはありません")
		return nil
	}

	now := time.Now()
	for _, source := range stale {
		if source.LastIngestedAt == nil {
			c.logger.Warn("一度も取り込まれていないソースを検出しました",
				slog.String("source_id", source.ID),
				slog.String("source_name", source.Name),
			)
			continue
		}
		c.logger.Warn("取り込みが滞っているソースを検出しました",
			slog.String("source_id", source.ID),
			slog.String("source_name", source.Name),
			slog.Duration("staleness", now.Sub(*source.LastIngestedAt)),
		)
	}

	c.logger.Info("空白期間の回復のためバッチ取り込みを起動します",
		slog.Int("stale_count", len(stale)),
	)

	// バッチは全アクティブソースを対象とする。重複排除が効くため
	// 滞っていないソースを含めても新規作成は発生しない。
	if _, err := c.batch.RunBatch(ctx); err != nil {
		return err
	}
	return nil
}
