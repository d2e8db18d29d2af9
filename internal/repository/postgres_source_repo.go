package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/huddle/internal/model"
)

// PostgresSourceRepo はPostgreSQLを使用したソースリポジトリ。
type PostgresSourceRepo struct {
	db *sql.DB
}

// NewPostgresSourceRepo はPostgresSourceRepoを生成する。
func NewPostgresSourceRepo(db *sql.DB) *PostgresSourceRepo {
	return &PostgresSourceRepo{db: db}
}

const sourceColumns = `id, name, kind, feed_url, site_url, logo_url, active,
	        last_fetched_at, last_ingested_at, last_error, created_at, updated_at`

// scanSource は1行分のソースを読み取る。
func scanSource(scanner interface{ Scan(dest ...any) error }) (*model.Source, error) {
	source := &model.Source{}
	var siteURL, logoURL, lastError sql.NullString
	var lastFetchedAt, lastIngestedAt sql.NullTime

	err := scanner.Scan(
		&source.ID, &source.Name, &source.Kind, &source.FeedURL,
		&siteURL, &logoURL, &source.Active,
		&lastFetchedAt, &lastIngestedAt, &lastError,
		&source.CreatedAt, &source.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	source.SiteURL = nullStringValue(siteURL)
	source.LogoURL = nullStringValue(logoURL)
	source.LastError = nullStringValue(lastError)
	if lastFetchedAt.Valid {
		source.LastFetchedAt = &lastFetchedAt.Time
	}
	if lastIngestedAt.Valid {
		source.LastIngestedAt = &lastIngestedAt.Time
	}

	return source, nil
}

// FindByID は指定IDのソースを取得する。見つからない場合はnilを返す。
func (r *PostgresSourceRepo) FindByID(ctx context.Context, id string) (*model.Source, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id)

	source, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ソースの取得に失敗しました: %w", err)
	}
	return source, nil
}

// FindByFeedURL はフィードURLでソースを検索する。見つからない場合はnilを返す。
func (r *PostgresSourceRepo) FindByFeedURL(ctx context.Context, feedURL string) (*model.Source, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE feed_url = $1`, feedURL)

	source, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィードURLによるソースの検索に失敗しました: %w", err)
	}
	return source, nil
}

// Create はソースを作成する。
func (r *PostgresSourceRepo) Create(ctx context.Context, source *model.Source) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sources (id, name, kind, feed_url, site_url, logo_url, active,
		                      last_fetched_at, last_ingested_at, last_error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		source.ID, source.Name, source.Kind, source.FeedURL,
		nullString(source.SiteURL), nullString(source.LogoURL), source.Active,
		nullTime(source.LastFetchedAt), nullTime(source.LastIngestedAt),
		nullString(source.LastError), source.CreatedAt, source.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ソースの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はソース情報を更新する。
func (r *PostgresSourceRepo) Update(ctx context.Context, source *model.Source) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sources SET
		    name = $2, kind = $3, feed_url = $4, site_url = $5,
		    logo_url = $6, active = $7, updated_at = now()
		 WHERE id = $1`,
		source.ID, source.Name, source.Kind, source.FeedURL,
		nullString(source.SiteURL), nullString(source.LogoURL), source.Active,
	)
	if err != nil {
		return fmt.Errorf("ソースの更新に失敗しました: %w", err)
	}
	return nil
}

// ListAll は全ソースを名前の昇順で返す。
func (r *PostgresSourceRepo) ListAll(ctx context.Context) ([]*model.Source, error) {
	return r.list(ctx,
		`SELECT `+sourceColumns+` FROM sources ORDER BY name ASC`)
}

// ListActive はアクティブなソースを名前の昇順で返す。
func (r *PostgresSourceRepo) ListActive(ctx context.Context) ([]*model.Source, error) {
	return r.list(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE active ORDER BY name ASC`)
}

// ListStale はlast_ingested_atがNULLまたはthresholdより古いアクティブなソースを返す。
func (r *PostgresSourceRepo) ListStale(ctx context.Context, threshold time.Duration) ([]*model.Source, error) {
	interval := fmt.Sprintf("%d seconds", int(threshold.Seconds()))
	return r.list(ctx,
		`SELECT `+sourceColumns+` FROM sources
		 WHERE active
		   AND (last_ingested_at IS NULL OR last_ingested_at < now() - $1::interval)
		 ORDER BY name ASC`, interval)
}

func (r *PostgresSourceRepo) list(ctx context.Context, query string, args ...any) ([]*model.Source, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ソース一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var sources []*model.Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("ソース一覧の読み取りに失敗しました: %w", err)
		}
		sources = append(sources, source)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ソース一覧の走査に失敗しました: %w", err)
	}

	return sources, nil
}

// UpdateIngestHealth はソースの取り込み健全性フィールドを更新する。
func (r *PostgresSourceRepo) UpdateIngestHealth(ctx context.Context, source *model.Source) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sources SET
		    last_fetched_at = $2,
		    last_ingested_at = $3,
		    last_error = $4,
		    updated_at = now()
		 WHERE id = $1`,
		source.ID,
		nullTime(source.LastFetchedAt),
		nullTime(source.LastIngestedAt),
		nullString(source.LastError),
	)
	if err != nil {
		return fmt.Errorf("取り込み状態の更新に失敗しました: %w", err)
	}
	return nil
}

// SetActive はソースのアクティブフラグを切り替える。
func (r *PostgresSourceRepo) SetActive(ctx context.Context, id string, active bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sources SET active = $2, updated_at = now() WHERE id = $1`,
		id, active,
	)
	if err != nil {
		return fmt.Errorf("アクティブフラグの更新に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if affected == 0 {
		return model.NewSourceNotFoundError(id)
	}
	return nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullTime は*time.Timeをsql.NullTimeに変換する。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// compile-time interface check
var _ SourceRepository = (*PostgresSourceRepo)(nil)
