// Package tag はタグ辞書の管理とコンテンツのタグ分類を提供する。
package tag

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/hitoshi/huddle/internal/model"
	"github.com/hitoshi/huddle/internal/repository"
)

// entry はコンパイル済みのタグ辞書エントリ。
type entry struct {
	tagID    string
	patterns []*regexp.Regexp
}

// Matcher はタグ辞書を保持し、タイトル+説明文をタグ識別子へ分類する。
// 辞書はバッチ開始前に1回ロードされ、バッチ実行中はイミュータブル。
// タグ定義の変更後は明示的なLoadDictionaryの再呼び出しで反映する
// （自動リフレッシュはしない）。
type Matcher struct {
	tagRepo repository.TagRepository
	logger  *slog.Logger

	mu      sync.RWMutex
	entries []entry
	loaded  bool
}

// NewMatcher はMatcherの新しいインスタンスを生成する。
func NewMatcher(tagRepo repository.TagRepository, logger *slog.Logger) *Matcher {
	return &Matcher{
		tagRepo: tagRepo,
		logger:  logger,
	}
}

// LoadDictionary は全タグを読み込み、パターンを大文字小文字を区別せず
// コンパイルしてインメモリ辞書を構築する。
// パターンが空、またはコンパイルできないパターンしか持たないタグは
// スキップされる（エラーにはしない）。
func (m *Matcher) LoadDictionary(ctx context.Context) error {
	tags, err := m.tagRepo.ListWithPatterns(ctx)
	if err != nil {
		return fmt.Errorf("タグ辞書の読み込みに失敗しました: %w", err)
	}

	entries := make([]entry, 0, len(tags))
	skipped := 0

	for _, t := range tags {
		var compiled []*regexp.Regexp
		for _, pattern := range t.Patterns {
			re, err := regexp.Compile("(?i)" + pattern)
			if err != nil {
				m.logger.Warn("タグパターンのコンパイルに失敗したためスキップします",
					slog.String("tag_id", t.ID),
					slog.String("tag_name", t.Name),
					slog.String("pattern", pattern),
					slog.String("error", err.Error()),
				)
				continue
			}
			compiled = append(compiled, re)
		}

		if len(compiled) == 0 {
			skipped++
			continue
		}

		entries = append(entries, entry{tagID: t.ID, patterns: compiled})
	}

	m.mu.Lock()
	m.entries = entries
	m.loaded = true
	m.mu.Unlock()

	m.logger.Info("タグ辞書をロードしました",
		slog.Int("tags_loaded", len(entries)),
		slog.Int("tags_skipped", skipped),
	)

	return nil
}

// EnsureLoaded は辞書が未ロードの場合のみLoadDictionaryを実行する。
// バッチ初回実行時の遅延ロードに使用する。
func (m *Matcher) EnsureLoaded(ctx context.Context) error {
	m.mu.RLock()
	loaded := m.loaded
	m.mu.RUnlock()

	if loaded {
		return nil
	}
	return m.LoadDictionary(ctx)
}

// MatchTags はタイトルと説明文を連結したテキストをタグ識別子の集合へ分類する。
// 辞書順にタグを走査し、タグのいずれかのパターンが最初に一致した時点で
// そのタグを1回だけ記録して次のタグへ進む（同一タグの複数パターンが
// 重複した関連付けを生むことはない）。
// LoadDictionary完了前の呼び出しはDICTIONARY_NOT_LOADEDエラーを返す。
// バッチ全体を静かにタグなしへ縮退させないための防御。
func (m *Matcher) MatchTags(title, description string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.loaded {
		return nil, model.NewDictionaryNotLoadedError()
	}

	blob := title + " " + description

	var tagIDs []string
	for _, e := range m.entries {
		for _, re := range e.patterns {
			if re.MatchString(blob) {
				tagIDs = append(tagIDs, e.tagID)
				break
			}
		}
	}

	return tagIDs, nil
}
