// Package ingest は全ソース取り込みの定期実行を提供する。
// 固定間隔のティッカーでバッチ取り込みを駆動する。
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/huddle/internal/model"
)

// BatchRunner はバッチ取り込みの実行インターフェース。
type BatchRunner interface {
	// RunBatch は全アクティブソースを取り込む。実行中の場合は (nil, nil) を返す。
	RunBatch(ctx context.Context) (*model.BatchStats, error)
}

// Scheduler はバッチ取り込みの定期実行を行う。
// 単一実行ガードはBatchIngestor側が持つため、ティッカーの発火が
// 前回の実行と重なっても二重実行にはならない。
type Scheduler struct {
	batch  BatchRunner
	logger *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(batch BatchRunner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		batch:  batch,
		logger: logger,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// 起動直後にも1回実行し、コンテキストがキャンセルされるまで継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("取り込みスケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("取り込みスケジューラを停止しました")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce はバッチ取り込みを1回実行する。
// バッチ自体の失敗はログに記録し、スケジューラは停止しない。
func (s *Scheduler) RunOnce(ctx context.Context) {
	if _, err := s.batch.RunBatch(ctx); err != nil {
		s.logger.Error("バッチ取り込みの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}
