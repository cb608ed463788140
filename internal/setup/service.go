// Package setup はPC構成ドキュメントの管理機能を提供する。
package setup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/buildman/internal/model"
	"github.com/hitoshi/buildman/internal/repository"
)

// Service はPC構成の取得・保存のサービス。
type Service struct {
	setupRepo repository.SetupRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(setupRepo repository.SetupRepository) *Service {
	return &Service{
		setupRepo: setupRepo,
	}
}

// GetSetup は指定ユーザーの構成を返す。
// ドキュメントが未登録の場合はSETUP_NOT_FOUNDエラーを返す。
func (s *Service) GetSetup(ctx context.Context, userID string) (*model.Setup, error) {
	setup, err := s.setupRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find setup: %w", err)
	}
	if setup == nil {
		return nil, model.NewSetupNotFoundError()
	}
	return setup, nil
}

// SaveSetup は構成をマージ書き込みする。
// パッチに含まれないフィールドは既存の値を維持する。
// 初回保存時のみ、マージ結果に必須フィールドがすべて揃っていることを検証する。
func (s *Service) SaveSetup(ctx context.Context, userID string, patch *model.SetupPatch) (*model.Setup, error) {
	if patch == nil || patch.IsEmpty() {
		return nil, model.NewValidationError([]string{"cpu", "motherboard", "ram", "storage", "psu"})
	}

	// 1. 既存構成の取得（初回判定のため）
	existing, err := s.setupRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find setup: %w", err)
	}

	// 2. 初回保存は必須フィールドの網羅を要求する
	if existing == nil {
		merged := patch.Apply(model.Setup{UserID: userID})
		if missing := merged.MissingRequiredFields(); len(missing) > 0 {
			return nil, model.NewValidationError(missing)
		}
	}

	// 3. マージ書き込み
	saved, err := s.setupRepo.Merge(ctx, userID, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to merge setup: %w", err)
	}

	slog.Info("setup saved",
		slog.String("user_id", userID),
		slog.Bool("first_save", existing == nil),
	)

	return saved, nil
}
