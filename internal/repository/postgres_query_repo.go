package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/buildman/internal/model"
)

// PostgresQueryRepo はPostgreSQLを使用した提案履歴リポジトリ。
// 履歴は追記専用であり、INSERT時にトリガーがqueries_changedチャネルへ通知する。
type PostgresQueryRepo struct {
	db *sql.DB
}

// NewPostgresQueryRepo はPostgresQueryRepoを生成する。
func NewPostgresQueryRepo(db *sql.DB) *PostgresQueryRepo {
	return &PostgresQueryRepo{db: db}
}

// Create は履歴レコードを追加する。
func (r *PostgresQueryRepo) Create(ctx context.Context, query *model.Query) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO queries (id, user_id, budget, use_case, result, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		query.ID, query.UserID, query.Budget, string(query.UseCase), query.Result, query.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert query: %w", err)
	}
	return nil
}

// ListByUserID は指定ユーザーの全履歴をcreated_at降順（同時刻はID昇順）で返す。
func (r *PostgresQueryRepo) ListByUserID(ctx context.Context, userID string) ([]model.Query, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, budget, use_case, result, created_at
		 FROM queries
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list queries: %w", err)
	}
	defer rows.Close()

	var queries []model.Query
	for rows.Next() {
		var q model.Query
		var useCase string
		if err := rows.Scan(&q.ID, &q.UserID, &q.Budget, &useCase, &q.Result, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan query row: %w", err)
		}
		q.UseCase = model.UseCase(useCase)
		queries = append(queries, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate query rows: %w", err)
	}

	return queries, nil
}

// compile-time interface check
var _ QueryRepository = (*PostgresQueryRepo)(nil)
