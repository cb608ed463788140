// Package model はドメインモデルを定義する。
package model

import (
	"sort"
	"time"
)

// UseCase は構成提案の用途区分を表す。
// ワイヤ上の値は固定enumであり、クライアント/サーバー間の契約の一部。
type UseCase string

const (
	// UseCaseGames はゲーム用途。
	UseCaseGames UseCase = "games"
	// UseCaseEditing は動画編集用途。
	UseCaseEditing UseCase = "edicao"
	// UseCaseWork は仕事用途。
	UseCaseWork UseCase = "trabalho"
	// UseCaseStudy は学習用途。
	UseCaseStudy UseCase = "estudo"
)

// validUseCases は有効な用途区分のセット。
var validUseCases = map[UseCase]bool{
	UseCaseGames:   true,
	UseCaseEditing: true,
	UseCaseWork:    true,
	UseCaseStudy:   true,
}

// IsValid は用途区分が既知の値かどうかを返す。
func (u UseCase) IsValid() bool {
	return validUseCases[u]
}

// Query は過去の構成提案リクエストの履歴レコードを表す。
// 提案バックエンドが生成時に書き込む追記専用データで、以後は不変。
type Query struct {
	ID        string
	UserID    string
	Budget    string
	UseCase   UseCase
	Result    string
	CreatedAt time.Time
}

// SortQueries は履歴レコードを表示順に整列する。
// created_at降順、同時刻の場合はID昇順（安定・決定的な順序）。
// サーバーのSQLとクライアントの再整列の両方でこの規則に従う。
func SortQueries(queries []Query) {
	sort.SliceStable(queries, func(i, j int) bool {
		if !queries[i].CreatedAt.Equal(queries[j].CreatedAt) {
			return queries[i].CreatedAt.After(queries[j].CreatedAt)
		}
		return queries[i].ID < queries[j].ID
	})
}
