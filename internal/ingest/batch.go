package ingest

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hitoshi/huddle/internal/model"
	"github.com/hitoshi/huddle/internal/repository"
)

// DictionaryLoader はタグ辞書の遅延ロードを提供する。
type DictionaryLoader interface {
	// EnsureLoaded は辞書が未ロードの場合のみロードする。
	EnsureLoaded(ctx context.Context) error
}

// BatchMetricsRecorder はバッチ実行のメトリクスを記録する。
// ソース単位・アイテム単位のカウンタは処理の都度更新し、
// RecordBatchRunはバッチ自体の実行回数と所要時間のみを記録する。
type BatchMetricsRecorder interface {
	RecordFetchSuccess(sourceID string)
	RecordFetchFailure(sourceID string)
	RecordItemsIngested(count int)
	RecordItemsSkipped(count int)
	RecordBatchRun(stats *model.BatchStats)
	RecordBatchSkipped()
}

// SourceIngestorService はソース単位の取り込みインターフェース。
type SourceIngestorService interface {
	IngestSource(ctx context.Context, sourceID string) (*IngestResult, error)
}

// BatchIngestor は全アクティブソースの一括取り込みを実行する。
// 単一実行ガードを持ち、前回のバッチが実行中であれば新しいバッチは
// 開始せずにスキップする。ソース間の障害は分離され、1ソースの失敗が
// バッチ全体を止めることはない。
type BatchIngestor struct {
	sourceRepo repository.SourceRepository
	ingestor   SourceIngestorService
	dictionary DictionaryLoader
	metrics    BatchMetricsRecorder
	logger     *slog.Logger
	running    atomic.Bool
}

// NewBatchIngestor はBatchIngestorの新しいインスタンスを生成する。
func NewBatchIngestor(
	sourceRepo repository.SourceRepository,
	ingestor SourceIngestorService,
	dictionary DictionaryLoader,
	metrics BatchMetricsRecorder,
	logger *slog.Logger,
) *BatchIngestor {
	return &BatchIngestor{
		sourceRepo: sourceRepo,
		ingestor:   ingestor,
		dictionary: dictionary,
		metrics:    metrics,
		logger:     logger,
	}
}

// RunBatch は全アクティブソースを順に取り込む。
// 既にバッチが実行中の場合はスキップし (nil, nil) を返す。
// ソース一覧の取得失敗などバッチ自体を開始できない場合のみerrorを返す。
func (b *BatchIngestor) RunBatch(ctx context.Context) (*model.BatchStats, error) {
	if !b.running.CompareAndSwap(false, true) {
		b.logger.Warn("前回のバッチが実行中のためスキップします")
		if b.metrics != nil {
			b.metrics.RecordBatchSkipped()
		}
		return nil, nil
	}
	defer b.running.Store(false)

	start := time.Now()
	b.logger.Info("バッチ取り込みを開始します")

	if err := b.dictionary.EnsureLoaded(ctx); err != nil {
		return nil, err
	}

	sources, err := b.sourceRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	stats := &model.BatchStats{}
	for _, source := range sources {
		select {
		case <-ctx.Done():
			b.logger.Warn("コンテキストのキャンセルによりバッチを中断します",
				slog.String("error", ctx.Err().Error()),
			)
			stats.Duration = time.Since(start)
			return stats, ctx.Err()
		default:
		}

		result, err := b.ingestor.IngestSource(ctx, source.ID)
		if err != nil {
			stats.SourcesFailed++
			if b.metrics != nil {
				b.metrics.RecordFetchFailure(source.ID)
			}
			b.logger.Error("ソースの取り込みに失敗しました",
				slog.String("source_id", source.ID),
				slog.String("source_name", source.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		stats.SourcesSucceeded++
		stats.ItemsIngested += result.Created
		stats.ItemsSkipped += result.Skipped
		if b.metrics != nil {
			b.metrics.RecordFetchSuccess(source.ID)
			b.metrics.RecordItemsIngested(result.Created)
			b.metrics.RecordItemsSkipped(result.Skipped)
		}
	}

	stats.Duration = time.Since(start)
	if b.metrics != nil {
		b.metrics.RecordBatchRun(stats)
	}

	b.logger.Info("バッチ取り込みが完了しました",
		slog.Int("sources_total", len(sources)),
		slog.Int("sources_succeeded", stats.SourcesSucceeded),
		slog.Int("sources_failed", stats.SourcesFailed),
		slog.Int("items_ingested", stats.ItemsIngested),
		slog.Int("items_skipped", stats.ItemsSkipped),
		slog.Float64("duration_ms", float64(stats.Duration.Milliseconds())),
	)

	return stats, nil
}

// Running は現在バッチが実行中かどうかを返す。
func (b *BatchIngestor) Running() bool {
	return b.running.Load()
}
