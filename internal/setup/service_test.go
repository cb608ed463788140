package setup

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/buildman/internal/model"
	"github.com/hitoshi/buildman/internal/repository"
)

// --- モック定義 ---

type mockSetupRepository struct {
	findByUserIDFn func(ctx context.Context, userID string) (*model.Setup, error)
	mergeFn        func(ctx context.Context, userID string, patch *model.SetupPatch) (*model.Setup, error)
}

func (m *mockSetupRepository) FindByUserID(ctx context.Context, userID string) (*model.Setup, error) {
	if m.findByUserIDFn != nil {
		return m.findByUserIDFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockSetupRepository) Merge(ctx context.Context, userID string, patch *model.SetupPatch) (*model.Setup, error) {
	if m.mergeFn != nil {
		return m.mergeFn(ctx, userID, patch)
	}
	return nil, nil
}

var _ repository.SetupRepository = (*mockSetupRepository)(nil)

func strPtr(s string) *string {
	return &s
}

func fullPatch() *model.SetupPatch {
	return &model.SetupPatch{
		CPU:         strPtr("Ryzen 5 5600"),
		Motherboard: strPtr("B550M"),
		GPU:         strPtr("RTX 3060"),
		RAM:         strPtr("16GB DDR4"),
		Storage:     strPtr("1TB NVMe"),
		PSU:         strPtr("650W 80+ Bronze"),
		PCCase:      strPtr("Mid Tower"),
	}
}

// --- GetSetup のテスト ---

func TestGetSetup_ReturnsExistingSetup(t *testing.T) {
	repo := &mockSetupRepository{
		findByUserIDFn: func(ctx context.Context, userID string) (*model.Setup, error) {
			return &model.Setup{UserID: userID, CPU: "Ryzen 5 5600"}, nil
		},
	}

	svc := NewService(repo)

	got, err := svc.GetSetup(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.CPU != "Ryzen 5 5600" {
		t.Errorf("CPU = %q, want %q", got.CPU, "Ryzen 5 5600")
	}
}

func TestGetSetup_NotFound_ReturnsSetupNotFoundError(t *testing.T) {
	repo := &mockSetupRepository{
		findByUserIDFn: func(ctx context.Context, userID string) (*model.Setup, error) {
			return nil, nil
		},
	}

	svc := NewService(repo)

	_, err := svc.GetSetup(context.Background(), "user-1")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if code := model.ErrorCode(err); code != "setup/not-found" {
		t.Errorf("error code = %q, want %q", code, "setup/not-found")
	}
}

func TestGetSetup_RepositoryError_WrapsError(t *testing.T) {
	repoErr := errors.New("connection refused")
	repo := &mockSetupRepository{
		findByUserIDFn: func(ctx context.Context, userID string) (*model.Setup, error) {
			return nil, repoErr
		},
	}

	svc := NewService(repo)

	_, err := svc.GetSetup(context.Background(), "user-1")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, repoErr) {
		t.Errorf("expected wrapped repository error, got %v", err)
	}
}

// --- SaveSetup のテスト ---

func TestSaveSetup_FirstSave_AllRequiredFields_Succeeds(t *testing.T) {
	var mergedPatch *model.SetupPatch
	repo := &mockSetupRepository{
		findByUserIDFn: func(ctx context.Context, userID string) (*model.Setup, error) {
			return nil, nil // 未登録
		},
		mergeFn: func(ctx context.Context, userID string, patch *model.SetupPatch) (*model.Setup, error) {
			mergedPatch = patch
			return &model.Setup{UserID: userID, CPU: *patch.CPU}, nil
		},
	}

	svc := NewService(repo)

	got, err := svc.SaveSetup(context.Background(), "user-1", fullPatch())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.CPU != "Ryzen 5 5600" {
		t.Errorf("unexpected saved setup: %+v", got)
	}
	if mergedPatch == nil {
		t.Error("expected Merge to be called")
	}
}

func TestSaveSetup_FirstSave_MissingRequiredFields_ReturnsValidationError(t *testing.T) {
	repo := &mockSetupRepository{
		findByUserIDFn: func(ctx context.Context, userID string) (*model.Setup, error) {
			return nil, nil
		},
		mergeFn: func(ctx context.Context, userID string, patch *model.SetupPatch) (*model.Setup, error) {
			t.Fatal("Merge should not be called on validation failure")
			return nil, nil
		},
	}

	svc := NewService(repo)

	// CPUのみのパッチ: 初回保存は必須フィールドが不足
	patch := &model.SetupPatch{CPU: strPtr("Ryzen 5 5600")}
	_, err := svc.SaveSetup(context.Background(), "user-1", patch)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if code := model.ErrorCode(err); code != "validation/missing-required" {
		t.Errorf("error code = %q, want %q", code, "validation/missing-required")
	}
}

func TestSaveSetup_PartialUpdate_KeepsExistingFields(t *testing.T) {
	existing := &model.Setup{
		UserID:      "user-1",
		CPU:         "Ryzen 5 5600",
		Motherboard: "B550M",
		RAM:         "16GB DDR4",
		Storage:     "1TB NVMe",
		PSU:         "650W",
	}

	repo := &mockSetupRepository{
		findByUserIDFn: func(ctx context.Context, userID string) (*model.Setup, error) {
			return existing, nil
		},
		mergeFn: func(ctx context.Context, userID string, patch *model.SetupPatch) (*model.Setup, error) {
			merged := patch.Apply(*existing)
			return &merged, nil
		},
	}

	svc := NewService(repo)

	// GPUのみの部分更新: 他フィールドは維持される
	patch := &model.SetupPatch{GPU: strPtr("RTX 4070")}
	got, err := svc.SaveSetup(context.Background(), "user-1", patch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.GPU != "RTX 4070" {
		t.Errorf("GPU = %q, want %q", got.GPU, "RTX 4070")
	}
	if got.CPU != "Ryzen 5 5600" {
		t.Errorf("CPU = %q, want %q (should be kept)", got.CPU, "Ryzen 5 5600")
	}
	if got.Storage != "1TB NVMe" {
		t.Errorf("Storage = %q, want %q (should be kept)", got.Storage, "1TB NVMe")
	}
}

func TestSaveSetup_EmptyPatch_ReturnsValidationError(t *testing.T) {
	repo := &mockSetupRepository{}
	svc := NewService(repo)

	_, err := svc.SaveSetup(context.Background(), "user-1", &model.SetupPatch{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if code := model.ErrorCode(err); code != "validation/missing-required" {
		t.Errorf("error code = %q, want %q", code, "validation/missing-required")
	}
}

func TestSaveSetup_NilPatch_ReturnsValidationError(t *testing.T) {
	repo := &mockSetupRepository{}
	svc := NewService(repo)

	_, err := svc.SaveSetup(context.Background(), "user-1", nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestSaveSetup_MergeError_WrapsError(t *testing.T) {
	repoErr := errors.New("deadlock detected")
	repo := &mockSetupRepository{
		findByUserIDFn: func(ctx context.Context, userID string) (*model.Setup, error) {
			return &model.Setup{UserID: userID, CPU: "x", Motherboard: "x", RAM: "x", Storage: "x", PSU: "x"}, nil
		},
		mergeFn: func(ctx context.Context, userID string, patch *model.SetupPatch) (*model.Setup, error) {
			return nil, repoErr
		},
	}

	svc := NewService(repo)

	_, err := svc.SaveSetup(context.Background(), "user-1", &model.SetupPatch{GPU: strPtr("RTX 4070")})
	if !errors.Is(err, repoErr) {
		t.Errorf("expected wrapped repository error, got %v", err)
	}
}
