package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/huddle/internal/model"
)

// PostgresTagRepo はPostgreSQLを使用したタグリポジトリ。
type PostgresTagRepo struct {
	db *sql.DB
}

// NewPostgresTagRepo はPostgresTagRepoを生成する。
func NewPostgresTagRepo(db *sql.DB) *PostgresTagRepo {
	return &PostgresTagRepo{db: db}
}

// ListWithPatterns は全タグをパターン付きで名前の昇順で返す。
// タグとパターンをLEFT JOINで一括取得し、タグ単位に組み立てる。
// パターンを持たないタグも返る（辞書ロード側でスキップされる）。
func (r *PostgresTagRepo) ListWithPatterns(ctx context.Context) ([]*model.Tag, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.name, t.type, t.created_at, t.updated_at, p.pattern
		 FROM tags t
		 LEFT JOIN tag_patterns p ON p.tag_id = t.id
		 ORDER BY t.name ASC, p.position ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("タグ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var tags []*model.Tag
	byID := make(map[string]*model.Tag)

	for rows.Next() {
		var (
			id, name  string
			tagType   model.TagType
			createdAt sql.NullTime
			updatedAt sql.NullTime
			pattern   sql.NullString
		)
		if err := rows.Scan(&id, &name, &tagType, &createdAt, &updatedAt, &pattern); err != nil {
			return nil, fmt.Errorf("タグ一覧の読み取りに失敗しました: %w", err)
		}

		tag, ok := byID[id]
		if !ok {
			tag = &model.Tag{
				ID:        id,
				Name:      name,
				Type:      tagType,
				CreatedAt: createdAt.Time,
				UpdatedAt: updatedAt.Time,
			}
			byID[id] = tag
			tags = append(tags, tag)
		}
		if pattern.Valid {
			tag.Patterns = append(tag.Patterns, pattern.String)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("タグ一覧の走査に失敗しました: %w", err)
	}

	return tags, nil
}

// compile-time interface check
var _ TagRepository = (*PostgresTagRepo)(nil)
