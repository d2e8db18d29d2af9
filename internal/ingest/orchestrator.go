package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/huddle/internal/extract"
	"github.com/hitoshi/huddle/internal/model"
	"github.com/hitoshi/huddle/internal/repository"
)

// maxErrorLength はSource.LastErrorに記録するエラーメッセージの最大長（rune数）。
const maxErrorLength = 500

// FeedFetcherService はフィードフェッチの実行インターフェース。
type FeedFetcherService interface {
	// Fetch は指定URLのフィードを取得し、生アイテム列を返す。
	Fetch(ctx context.Context, feedURL string) ([]model.RawItem, error)
}

// ItemExtractorService はメタデータ抽出のインターフェース。
type ItemExtractorService interface {
	Extract(item model.RawItem, sourceKind model.SourceKind) (*model.NormalizedItem, error)
}

// TagMatcherService はタグ分類のインターフェース。
type TagMatcherService interface {
	MatchTags(title, description string) ([]string, error)
}

// ContentStorer は重複排除付き永続化のインターフェース。
type ContentStorer interface {
	Store(ctx context.Context, sourceID string, item *model.NormalizedItem, tagIDs []string) (created bool, err error)
}

// IngestResult は1ソースの取り込み結果を表す。
type IngestResult struct {
	Created    int // 新規作成されたコンテンツ数
	Skipped    int // 正規URL一致でスキップされた数
	ItemErrors int // アイテム単位で失敗した数
}

// Orchestrator は1ソースの取り込みをエンドツーエンドで駆動する。
// フェッチ → (アイテムごとに) 抽出 → タグ分類 → 永続化 の順に処理し、
// ソースの健全性フィールド（last_fetched_at、last_ingested_at、last_error）を
// 書き戻す。障害はアイテム単位・ソース単位で分離される。
type Orchestrator struct {
	sourceRepo  repository.SourceRepository
	contentRepo repository.ContentRepository
	fetcher     FeedFetcherService
	extractor   ItemExtractorService
	matcher     TagMatcherService
	storer      ContentStorer
	logger      *slog.Logger
}

// NewOrchestrator はOrchestratorの新しいインスタンスを生成する。
func NewOrchestrator(
	sourceRepo repository.SourceRepository,
	contentRepo repository.ContentRepository,
	fetcher FeedFetcherService,
	extractor ItemExtractorService,
	matcher TagMatcherService,
	storer ContentStorer,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		sourceRepo:  sourceRepo,
		contentRepo: contentRepo,
		fetcher:     fetcher,
		extractor:   extractor,
		matcher:     matcher,
		storer:      storer,
		logger:      logger,
	}
}

// IngestSource は指定IDのソースを1回取り込む。
//
// 成功パス: 全アイテムを処理（個々の失敗は記録してスキップ）した後、
// last_fetched_at=now、last_ingested_at=now、last_error=NULL を書き込み、
// 結果を返す。
//
// 失敗パス（フェッチ自体の失敗）: last_fetched_at=now は書き込み
// （試行があったことを運用者が確認できるように）、last_errorに切り詰めた
// 失敗メッセージを設定し、last_ingested_atは変更せず、エラーを呼び出し元へ
// 再送出する（バッチ集計用）。
//
// タグ辞書が未ロードの場合はアイテム単位の失敗として吸収せず、
// 健全性フィールドに触れないまま取り込みを中断してエラーを返す。
func (o *Orchestrator) IngestSource(ctx context.Context, sourceID string) (*IngestResult, error) {
	source, err := o.sourceRepo.FindByID(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("ソースの取得に失敗しました: %w", err)
	}
	if source == nil {
		return nil, model.NewSourceNotFoundError(sourceID)
	}

	start := time.Now()
	o.logger.Info("ソースの取り込みを開始します",
		slog.String("source_id", source.ID),
		slog.String("source_name", source.Name),
		slog.String("feed_url", source.FeedURL),
	)

	items, err := o.fetcher.Fetch(ctx, source.FeedURL)
	if err != nil {
		o.recordFetchFailure(ctx, source, err)
		return nil, fmt.Errorf("ソース %s のフェッチに失敗しました: %w", source.Name, err)
	}

	// 空フィードは有効な「新着なし」だが、過去にコンテンツを生んでいた
	// ソースが空を返した場合はパース側の静かな失敗の可能性があるため
	// 警告として記録する。取り込み自体は成功として扱う。
	if len(items) == 0 {
		o.warnIfPreviouslyNonEmpty(ctx, source)
	}

	result := &IngestResult{}
	for _, raw := range items {
		if err := o.processItem(ctx, source, raw, result); err != nil {
			// 辞書未ロードは初期化漏れのプログラミングエラー。
			// ソースの状態とは無関係なため健全性フィールドには触れず、
			// 取り込みを中断してバッチ集計へそのまま伝播させる。
			if isDictionaryNotLoaded(err) {
				return nil, fmt.Errorf("ソース %s のタグ分類に失敗しました: %w", source.Name, err)
			}
			// それ以外のアイテム単位の失敗は吸収して残りの処理を続ける
			result.ItemErrors++
			o.logger.Warn("アイテムの処理に失敗したためスキップします",
				slog.String("source_id", source.ID),
				slog.String("item_link", raw.Link),
				slog.String("item_guid", raw.GUID),
				slog.String("error", err.Error()),
			)
		}
	}

	now := time.Now()
	source.LastFetchedAt = &now
	source.LastIngestedAt = &now
	source.LastError = ""
	if err := o.sourceRepo.UpdateIngestHealth(ctx, source); err != nil {
		return result, fmt.Errorf("取り込み状態の更新に失敗しました: %w", err)
	}

	o.logger.Info("ソースの取り込みが完了しました",
		slog.String("source_id", source.ID),
		slog.String("source_name", source.Name),
		slog.Int("items_total", len(items)),
		slog.Int("items_created", result.Created),
		slog.Int("items_skipped", result.Skipped),
		slog.Int("item_errors", result.ItemErrors),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return result, nil
}

// processItem は1アイテムを抽出・タグ分類・永続化する。
func (o *Orchestrator) processItem(ctx context.Context, source *model.Source, raw model.RawItem, result *IngestResult) error {
	normalized, err := o.extractor.Extract(raw, source.Kind)
	if err != nil {
		if errors.Is(err, extract.ErrNoCanonicalURL) {
			// リンクもGUIDもないアイテム: 記録してスキップ、失敗にはしない
			o.logger.Warn("正規URLを導出できないアイテムをスキップします",
				slog.String("source_id", source.ID),
				slog.String("item_title", raw.Title),
			)
			return nil
		}
		return fmt.Errorf("メタデータ抽出に失敗: %w", err)
	}

	tagIDs, err := o.matcher.MatchTags(normalized.Title, normalized.Description)
	if err != nil {
		return fmt.Errorf("タグ分類に失敗: %w", err)
	}

	created, err := o.storer.Store(ctx, source.ID, normalized, tagIDs)
	if err != nil {
		return fmt.Errorf("永続化に失敗: %w", err)
	}

	if created {
		result.Created++
	} else {
		result.Skipped++
	}
	return nil
}

// recordFetchFailure はフェッチ失敗をソースの健全性フィールドに記録する。
// last_fetched_atは書き込み、last_ingested_atは変更しない。
func (o *Orchestrator) recordFetchFailure(ctx context.Context, source *model.Source, fetchErr error) {
	now := time.Now()
	source.LastFetchedAt = &now
	source.LastError = truncateError(fetchErr.Error())

	if err := o.sourceRepo.UpdateIngestHealth(ctx, source); err != nil {
		o.logger.Error("フェッチ失敗の記録に失敗しました",
			slog.String("source_id", source.ID),
			slog.String("error", err.Error()),
		)
	}
}

// warnIfPreviouslyNonEmpty は過去にコンテンツを生んでいたソースが
// 空フィードを返した場合に警告を記録する。
func (o *Orchestrator) warnIfPreviouslyNonEmpty(ctx context.Context, source *model.Source) {
	count, err := o.contentRepo.CountBySourceID(ctx, source.ID)
	if err != nil {
		o.logger.Error("コンテンツ数の取得に失敗しました",
			slog.String("source_id", source.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if count > 0 {
		o.logger.Warn("過去に非空だったフィードが0件を返しました",
			slog.String("source_id", source.ID),
			slog.String("source_name", source.Name),
			slog.Int("existing_content_count", count),
		)
	} else {
		o.logger.Info("フィードにアイテムがありません",
			slog.String("source_id", source.ID),
			slog.String("source_name", source.Name),
		)
	}
}

// isDictionaryNotLoaded はタグ辞書未ロードエラーかどうかを判定する。
func isDictionaryNotLoaded(err error) bool {
	var ingestErr *model.IngestError
	return errors.As(err, &ingestErr) && ingestErr.Code == model.ErrCodeDictionaryNotLoaded
}

// truncateError はエラーメッセージをmaxErrorLength runeに切り詰める。
func truncateError(msg string) string {
	runes := []rune(msg)
	if len(runes) <= maxErrorLength {
		return msg
	}
	return string(runes[:maxErrorLength])
}
