// Package model はドメインモデルを定義する。
package model

import "time"

// Tag はコンテンツ分類用のタグを表す。
// Patternsはtag_patternsテーブルから読み込まれた正規表現文字列のリストで、
// タグ辞書のロード時に大文字小文字を区別せずコンパイルされる。
type Tag struct {
	ID        string
	Name      string
	Type      TagType
	Patterns  []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TagType はタグの分類種別を表す。
type TagType string

const (
	// TagTypePlayer は選手タグ。
	TagTypePlayer TagType = "player"
	// TagTypeTeam はチームタグ。
	TagTypeTeam TagType = "team"
	// TagTypePosition はポジションタグ。
	TagTypePosition TagType = "position"
	// TagTypeTopic はトピックタグ。
	TagTypeTopic TagType = "topic"
	// TagTypeKeyword はキーワードタグ。
	TagTypeKeyword TagType = "keyword"
)
