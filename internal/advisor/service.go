package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hitoshi/buildman/internal/model"
	"github.com/hitoshi/buildman/internal/repository"
)

// Config はLLMプロバイダーの設定。
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// ChatClient はチャット補完APIのインターフェース。
// go-openaiクライアントの必要部分のみを切り出し、テストで差し替え可能にする。
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Service は構成提案の生成サービス。
// LLMへの問い合わせ、結果テキストのサニタイズ、履歴レコードの追記を行う。
type Service struct {
	client    ChatClient
	queryRepo repository.QueryRepository
	policy    *bluemonday.Policy
	model     string
	timeout   time.Duration
	logger    *slog.Logger

	// テスト用に差し替え可能な現在時刻取得関数
	now func() time.Time
}

// NewService はServiceを生成する。
func NewService(cfg Config, queryRepo repository.QueryRepository, logger *slog.Logger) *Service {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	client := openai.NewClientWithConfig(clientConfig)

	return newService(client, cfg, queryRepo, logger)
}

// newService は依存を直接注入してServiceを生成する。テストで使用する。
func newService(client ChatClient, cfg Config, queryRepo repository.QueryRepository, logger *slog.Logger) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Service{
		client:    client,
		queryRepo: queryRepo,
		policy:    bluemonday.StrictPolicy(),
		model:     cfg.Model,
		timeout:   timeout,
		logger:    logger,
		now:       time.Now,
	}
}

// Generate は予算と用途から構成提案テキストを生成し、履歴レコードを追記する。
// ユーザーアクション1回につきLLM呼び出しは1回のみで、リトライは行わない。
// 履歴の追記失敗は提案自体の失敗にはせず、ログに記録して結果を返す。
func (s *Service) Generate(ctx context.Context, userID, budget string, useCase model.UseCase) (string, error) {
	if !useCase.IsValid() {
		return "", fmt.Errorf("unknown use case: %s", useCase)
	}

	// タイムアウトはLLM呼び出しだけに適用する。補完が時間を使い切っても
	// 後続の履歴追記は呼び出し元のctxで行う。
	llmCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(llmCtx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: BuildPrompt(budget, useCase, s.now()),
			},
		},
	})
	if err != nil {
		s.logger.Error("chat completion failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("failed to generate suggestion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}

	// LLMの出力は信頼できないリモートコンテンツとして扱い、
	// タグを除去してから保存・返却する
	result := strings.TrimSpace(s.policy.Sanitize(resp.Choices[0].Message.Content))
	if result == "" {
		return "", fmt.Errorf("completion produced no usable text")
	}

	s.logger.Info("suggestion generated",
		slog.String("user_id", userID),
		slog.String("use_case", string(useCase)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	query := &model.Query{
		ID:        uuid.New().String(),
		UserID:    userID,
		Budget:    budget,
		UseCase:   useCase,
		Result:    result,
		CreatedAt: s.now(),
	}

	if err := s.queryRepo.Create(ctx, query); err != nil {
		// 履歴はあくまで補助情報のため、提案の成功は維持する
		s.logger.Error("failed to append query history",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	return result, nil
}
