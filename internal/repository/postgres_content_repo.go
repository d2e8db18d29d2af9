package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/huddle/internal/model"
)

// ErrDuplicateCanonicalURL は正規URLの一意制約違反を表す。
// 並行する取り込みが同一URLを同時に書き込んだ場合に返され、
// 呼び出し側は「既存のためスキップ」として扱う。
var ErrDuplicateCanonicalURL = errors.New("canonical URL already exists")

// uniqueViolation はPostgreSQLのunique_violationエラーコード。
const uniqueViolation = "23505"

// PostgresContentRepo はPostgreSQLを使用したコンテンツリポジトリ。
type PostgresContentRepo struct {
	db *sql.DB
}

// NewPostgresContentRepo はPostgresContentRepoを生成する。
func NewPostgresContentRepo(db *sql.DB) *PostgresContentRepo {
	return &PostgresContentRepo{db: db}
}

// FindByCanonicalURL は正規URLでコンテンツを検索する。見つからない場合はnilを返す。
func (r *PostgresContentRepo) FindByCanonicalURL(ctx context.Context, canonicalURL string) (*model.Content, error) {
	content := &model.Content{}
	var description, thumbnailURL, author sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, source_id, title, description, canonical_url, thumbnail_url,
		        kind, author, categories, published_at, fetched_at, created_at
		 FROM contents WHERE canonical_url = $1`,
		canonicalURL,
	).Scan(
		&content.ID, &content.SourceID, &content.Title, &description,
		&content.CanonicalURL, &thumbnailURL, &content.Kind, &author,
		pq.Array(&content.Categories),
		&content.PublishedAt, &content.FetchedAt, &content.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("正規URLによるコンテンツの検索に失敗しました: %w", err)
	}

	content.Description = nullStringValue(description)
	content.ThumbnailURL = nullStringValue(thumbnailURL)
	content.Author = nullStringValue(author)

	return content, nil
}

// CreateWithTags はコンテンツとそのタグ関連付けを単一トランザクションで作成する。
// 正規URLの一意制約違反の場合はErrDuplicateCanonicalURLを返す。
func (r *PostgresContentRepo) CreateWithTags(ctx context.Context, content *model.Content, tagIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO contents (id, source_id, title, description, canonical_url,
		                       thumbnail_url, kind, author, categories,
		                       published_at, fetched_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		content.ID, content.SourceID, content.Title, nullString(content.Description),
		content.CanonicalURL, nullString(content.ThumbnailURL), content.Kind,
		nullString(content.Author), pq.Array(content.Categories),
		content.PublishedAt, content.FetchedAt, content.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCanonicalURL
		}
		return fmt.Errorf("コンテンツの作成に失敗しました: %w", err)
	}

	for _, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO content_tags (content_id, tag_id) VALUES ($1, $2)`,
			content.ID, tagID,
		); err != nil {
			return fmt.Errorf("タグ関連付けの作成に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// CountBySourceID は指定ソースのコンテンツ数を返す。
func (r *PostgresContentRepo) CountBySourceID(ctx context.Context, sourceID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM contents WHERE source_id = $1`, sourceID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("コンテンツ数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// isUniqueViolation はエラーがunique_violationかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}

// compile-time interface check
var _ ContentRepository = (*PostgresContentRepo)(nil)
