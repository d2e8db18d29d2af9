package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/huddle/internal/model"
	"github.com/hitoshi/huddle/internal/repository"
)

// DetectorService はフィード検出のインターフェース。
// テスタビリティのためDetectorを抽象化する。
type DetectorService interface {
	DetectFeedURL(ctx context.Context, inputURL string) (string, error)
}

// SourceService はソース登録・管理のサービス層。
// 検出 → 重複チェック → ロゴ解決 → 保存 のフローを統括する。
type SourceService struct {
	sourceRepo   repository.SourceRepository
	detector     DetectorService
	logoResolver LogoResolverService
	logger       *slog.Logger
}

// NewSourceService はSourceServiceの新しいインスタンスを生成する。
func NewSourceService(
	sourceRepo repository.SourceRepository,
	detector DetectorService,
	logoResolver LogoResolverService,
	logger *slog.Logger,
) *SourceService {
	return &SourceService{
		sourceRepo:   sourceRepo,
		detector:     detector,
		logoResolver: logoResolver,
		logger:       logger,
	}
}

// RegisterSource はURLからフィードを検出しソースを登録する。
// フロー: 種別検証 → フィードURL検出 → 重複チェック → ロゴ解決 → 保存
func (s *SourceService) RegisterSource(ctx context.Context, name string, kind model.SourceKind, inputURL string) (*model.Source, error) {
	if !model.ValidSourceKind(kind) {
		return nil, model.NewInvalidSourceKindError(string(kind))
	}

	feedURL, err := s.detector.DetectFeedURL(ctx, inputURL)
	if err != nil {
		return nil, err
	}

	existing, err := s.sourceRepo.FindByFeedURL(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("ソースの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateSourceError(feedURL)
	}

	siteURL := extractSiteURL(inputURL)

	// ロゴ解決は任意。失敗しても登録を止めない。
	logoURL := s.logoResolver.ResolveLogoURL(ctx, siteURL)

	now := time.Now()
	source := &model.Source{
		ID:        uuid.New().String(),
		Name:      name,
		Kind:      kind,
		FeedURL:   feedURL,
		SiteURL:   siteURL,
		LogoURL:   logoURL,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if source.Name == "" {
		// 名前未指定の場合はフィードURLをそのまま使う
		source.Name = feedURL
	}

	if err := s.sourceRepo.Create(ctx, source); err != nil {
		return nil, fmt.Errorf("ソースの保存に失敗しました: %w", err)
	}

	s.logger.Info("ソースを登録しました",
		slog.String("source_id", source.ID),
		slog.String("source_name", source.Name),
		slog.String("kind", string(source.Kind)),
		slog.String("feed_url", source.FeedURL),
	)

	return source, nil
}

// ListSources は全ソースを返す。
func (s *SourceService) ListSources(ctx context.Context) ([]*model.Source, error) {
	sources, err := s.sourceRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("ソース一覧の取得に失敗しました: %w", err)
	}
	return sources, nil
}

// SetSourceActive はソースの有効フラグを更新する。
func (s *SourceService) SetSourceActive(ctx context.Context, sourceID string, active bool) error {
	if err := s.sourceRepo.SetActive(ctx, sourceID, active); err != nil {
		return err
	}
	s.logger.Info("ソースの有効フラグを更新しました",
		slog.String("source_id", sourceID),
		slog.Bool("active", active),
	)
	return nil
}

// extractSiteURL は入力URLからスキームとホストのみのサイトURLを導出する。
func extractSiteURL(inputURL string) string {
	u, err := url.Parse(inputURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return inputURL
	}
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host)
}
