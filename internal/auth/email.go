package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// EmailSender はパスワード再設定メールの送信インターフェース。
type EmailSender interface {
	// SendPasswordReset は再設定リンクを指定アドレスに送信する。
	// linkはユーザーがクリックする完全なURL、expiresInMinutesは有効期間（分）。
	SendPasswordReset(ctx context.Context, to, link string, expiresInMinutes int) error
}

// SMTPConfig はSMTPメール送信の設定。
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPEmailSender はSMTP経由でメールを送信する。
type SMTPEmailSender struct {
	cfg SMTPConfig
}

// NewSMTPEmailSender はSMTPEmailSenderを生成する。
func NewSMTPEmailSender(cfg SMTPConfig) *SMTPEmailSender {
	return &SMTPEmailSender{cfg: cfg}
}

// SendPasswordReset は再設定リンクをSMTPで送信する。
func (s *SMTPEmailSender) SendPasswordReset(ctx context.Context, to, link string, expiresInMinutes int) error {
	subject := "パスワード再設定のご案内"
	body := fmt.Sprintf(
		"以下のリンクからパスワードを再設定してください。\r\n\r\n%s\r\n\r\nこのリンクは%d分間有効です。心当たりがない場合はこのメールを無視してください。\r\n",
		link, expiresInMinutes,
	)

	var msg strings.Builder
	msg.WriteString("From: " + s.cfg.From + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)

	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	return nil
}

// LogEmailSender はメールを送信せずログに出力する開発用の実装。
// SMTP設定が未指定の場合のフォールバックとして使う。
type LogEmailSender struct{}

// SendPasswordReset はリンクをログに出力する。
func (s *LogEmailSender) SendPasswordReset(ctx context.Context, to, link string, expiresInMinutes int) error {
	slog.Info("password reset link (email disabled)",
		slog.String("to", to),
		slog.String("link", link),
		slog.Int("expires_in_minutes", expiresInMinutes),
	)
	return nil
}

// compile-time interface checks
var _ EmailSender = (*SMTPEmailSender)(nil)
var _ EmailSender = (*LogEmailSender)(nil)
