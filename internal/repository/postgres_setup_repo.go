package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/buildman/internal/model"
)

// PostgresSetupRepo はPostgreSQLを使用したPC構成リポジトリ。
type PostgresSetupRepo struct {
	db *sql.DB
}

// NewPostgresSetupRepo はPostgresSetupRepoを生成する。
func NewPostgresSetupRepo(db *sql.DB) *PostgresSetupRepo {
	return &PostgresSetupRepo{db: db}
}

// FindByUserID は指定ユーザーの構成を取得する。未登録の場合はnilを返す。
func (r *PostgresSetupRepo) FindByUserID(ctx context.Context, userID string) (*model.Setup, error) {
	setup := &model.Setup{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, cpu, motherboard, gpu, ram, storage, psu, pc_case, updated_at
		 FROM setups WHERE user_id = $1`,
		userID,
	).Scan(&setup.UserID, &setup.CPU, &setup.Motherboard, &setup.GPU,
		&setup.RAM, &setup.Storage, &setup.PSU, &setup.PCCase, &setup.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find setup: %w", err)
	}

	return setup, nil
}

// Merge は構成をマージ書き込みする。
// INSERT ... ON CONFLICTとCOALESCEにより、パッチにないフィールド（NULL）は
// 既存の値を維持し、パッチにあるフィールドのみ上書きする。
// 同時書き込みは到着順のlast-write-winsとなり、競合検出は行わない。
func (r *PostgresSetupRepo) Merge(ctx context.Context, userID string, patch *model.SetupPatch) (*model.Setup, error) {
	setup := &model.Setup{}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO setups (user_id, cpu, motherboard, gpu, ram, storage, psu, pc_case, updated_at)
		 VALUES ($1,
		         COALESCE($2, ''), COALESCE($3, ''), COALESCE($4, ''),
		         COALESCE($5, ''), COALESCE($6, ''), COALESCE($7, ''), COALESCE($8, ''),
		         now())
		 ON CONFLICT (user_id) DO UPDATE SET
		         cpu         = COALESCE($2, setups.cpu),
		         motherboard = COALESCE($3, setups.motherboard),
		         gpu         = COALESCE($4, setups.gpu),
		         ram         = COALESCE($5, setups.ram),
		         storage     = COALESCE($6, setups.storage),
		         psu         = COALESCE($7, setups.psu),
		         pc_case     = COALESCE($8, setups.pc_case),
		         updated_at  = now()
		 RETURNING user_id, cpu, motherboard, gpu, ram, storage, psu, pc_case, updated_at`,
		userID, patch.CPU, patch.Motherboard, patch.GPU,
		patch.RAM, patch.Storage, patch.PSU, patch.PCCase,
	).Scan(&setup.UserID, &setup.CPU, &setup.Motherboard, &setup.GPU,
		&setup.RAM, &setup.Storage, &setup.PSU, &setup.PCCase, &setup.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to merge setup: %w", err)
	}

	return setup, nil
}

// compile-time interface check
var _ SetupRepository = (*PostgresSetupRepo)(nil)
