package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/buildman/internal/middleware"
	"github.com/hitoshi/buildman/internal/model"
)

// AdvisorServiceInterface は構成生成ハンドラーが必要とするサービスインターフェース。
type AdvisorServiceInterface interface {
	Generate(ctx context.Context, userID, budget string, useCase model.UseCase) (string, error)
}

// GenerateMetrics は構成生成メトリクスの記録インターフェース。
type GenerateMetrics interface {
	RecordGenerateSuccess(useCase string)
	RecordGenerateFailure(useCase string, reason string)
	RecordGenerateLatency(duration time.Duration)
}

// GenerateHandler は構成生成のHTTPハンドラー。
// モバイルクライアントとのワイヤ互換のため、レスポンスは
// setup_gerado / error フィールドの形式を維持する。
type GenerateHandler struct {
	service AdvisorServiceInterface
	metrics GenerateMetrics
}

// NewGenerateHandler はGenerateHandlerを生成する。
func NewGenerateHandler(service AdvisorServiceInterface, metrics GenerateMetrics) *GenerateHandler {
	return &GenerateHandler{
		service: service,
		metrics: metrics,
	}
}

// generateRequest は構成生成のリクエストボディ。
type generateRequest struct {
	Budget string `json:"budget"`
	Use    string `json:"use"`
	UserID string `json:"userId"`
}

// generateResponse は構成生成の成功レスポンスボディ。
type generateResponse struct {
	SetupGerado string `json:"setup_gerado"`
}

// generateErrorResponse は構成生成の失敗レスポンスボディ。
// errorフィールドの文字列はクライアントが結果欄にそのまま表示する。
type generateErrorResponse struct {
	Error string `json:"error"`
}

// Generate はLLMによるPC構成の提案を生成する。
// POST /gerar-setup
func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	sessionUserID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGenerateError(w, http.StatusBadRequest, "リクエスト形式が正しくありません。")
		return
	}

	// 1. 入力バリデーション
	if req.Budget == "" || req.Use == "" {
		writeGenerateError(w, http.StatusBadRequest, "予算と用途を入力してください。")
		return
	}

	useCase := model.UseCase(req.Use)
	if !useCase.IsValid() {
		writeGenerateError(w, http.StatusBadRequest, "用途の値が正しくありません。")
		return
	}

	// 2. セッションユーザーとボディのuserIdの一致を検証
	// 他ユーザーの履歴への書き込みを防ぐ
	if req.UserID != "" && req.UserID != sessionUserID {
		slog.Warn("generate user mismatch",
			slog.String("session_user_id", sessionUserID),
			slog.String("body_user_id", req.UserID),
		)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	// 3. 構成の生成
	start := time.Now()
	result, err := h.service.Generate(r.Context(), sessionUserID, req.Budget, useCase)
	if h.metrics != nil {
		h.metrics.RecordGenerateLatency(time.Since(start))
	}
	if err != nil {
		slog.Error("failed to generate setup",
			slog.String("user_id", sessionUserID),
			slog.String("use_case", req.Use),
			slog.String("error", err.Error()),
		)
		if h.metrics != nil {
			h.metrics.RecordGenerateFailure(req.Use, "backend")
		}
		writeGenerateError(w, http.StatusInternalServerError, "提案の生成に失敗しました。しばらく待ってから再度お試しください。")
		return
	}

	if h.metrics != nil {
		h.metrics.RecordGenerateSuccess(req.Use)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(generateResponse{SetupGerado: result})
}

// writeGenerateError はerrorフィールド形式の失敗レスポンスを書き込む。
func writeGenerateError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(generateErrorResponse{Error: message})
}
