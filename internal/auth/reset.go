package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/buildman/internal/model"
	"github.com/hitoshi/buildman/internal/repository"
)

// ResetService はパスワード再設定フローを提供する。
// トークンは平文を保存せず、SHA-256ハッシュのみを永続化する。
type ResetService struct {
	userRepo    repository.UserRepository
	tokenRepo   repository.ResetTokenRepository
	sessionRepo repository.SessionRepository
	sender      EmailSender
	baseURL     string
	tokenTTL    time.Duration
}

// NewResetService はResetServiceを生成する。
func NewResetService(
	userRepo repository.UserRepository,
	tokenRepo repository.ResetTokenRepository,
	sessionRepo repository.SessionRepository,
	sender EmailSender,
	baseURL string,
	tokenTTL time.Duration,
) *ResetService {
	return &ResetService{
		userRepo:    userRepo,
		tokenRepo:   tokenRepo,
		sessionRepo: sessionRepo,
		sender:      sender,
		baseURL:     baseURL,
		tokenTTL:    tokenTTL,
	}
}

// RequestReset は再設定リンクをメール送信する。
// メールアドレスの存在有無を外部から判別できないよう、
// 未登録アドレスでもエラーを返さず成功として扱う。
func (s *ResetService) RequestReset(ctx context.Context, email string) error {
	if !isValidEmail(email) {
		return model.NewAuthError(model.ErrCodeAuthInvalidEmail)
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		// 列挙攻撃対策: 未登録でも成功扱い
		slog.Info("reset requested for unknown email")
		return nil
	}

	token, err := generateResetToken()
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}

	record := &model.PasswordResetToken{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: hashResetToken(token),
		ExpiresAt: time.Now().Add(s.tokenTTL),
		CreatedAt: time.Now(),
	}

	if err := s.tokenRepo.Create(ctx, record); err != nil {
		return fmt.Errorf("failed to save reset token: %w", err)
	}

	link := fmt.Sprintf("%s/reset?token=%s", s.baseURL, token)
	if err := s.sender.SendPasswordReset(ctx, email, link, int(s.tokenTTL.Minutes())); err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}

	slog.Info("password reset email sent", slog.String("user_id", user.ID))
	return nil
}

// CompleteReset はトークンを検証して新しいパスワードを設定する。
// 成功時はトークンを使用済みにし、該当ユーザーの全セッションを破棄する。
func (s *ResetService) CompleteReset(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return model.NewAuthError(model.ErrCodeAuthWeakPassword)
	}

	record, err := s.tokenRepo.FindValidByTokenHash(ctx, hashResetToken(token))
	if err != nil {
		return fmt.Errorf("failed to find reset token: %w", err)
	}
	if record == nil {
		return model.NewAuthError(model.ErrCodeAuthUnknown)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.userRepo.UpdatePasswordHash(ctx, record.UserID, string(hash)); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := s.tokenRepo.MarkUsed(ctx, record.ID); err != nil {
		return fmt.Errorf("failed to mark token used: %w", err)
	}

	// 旧パスワードで張られたセッションをすべて無効化する
	if err := s.sessionRepo.DeleteByUserID(ctx, record.UserID); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}

	slog.Info("password reset completed", slog.String("user_id", record.UserID))
	return nil
}

// generateResetToken は暗号的に安全な再設定トークンを生成する。
func generateResetToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// hashResetToken はトークンの保存用ハッシュを計算する。
func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
