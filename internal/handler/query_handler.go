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

// QueryListerInterface は履歴ハンドラーが必要とするリポジトリインターフェース。
// repository.QueryRepositoryの部分集合として定義する。
type QueryListerInterface interface {
	ListByUserID(ctx context.Context, userID string) ([]model.Query, error)
}

// StreamSubscriberInterface はライブ配信の購読インターフェース。
// stream.Broadcasterの部分集合として定義する。
type StreamSubscriberInterface interface {
	Subscribe(userID string) (<-chan struct{}, func())
}

// StreamMetrics はSSE接続数メトリクスの記録インターフェース。
type StreamMetrics interface {
	RecordStreamConnected()
	RecordStreamDisconnected()
}

// QueryHandler は提案履歴関連のHTTPハンドラー。
// 一覧取得とSSEによるライブ配信を提供する。
type QueryHandler struct {
	queries    QueryListerInterface
	subscriber StreamSubscriberInterface
	metrics    StreamMetrics

	// heartbeatInterval はSSE接続維持のコメント送信間隔。テストで短縮する。
	heartbeatInterval time.Duration
}

// NewQueryHandler はQueryHandlerを生成する。
func NewQueryHandler(queries QueryListerInterface, subscriber StreamSubscriberInterface, metrics StreamMetrics) *QueryHandler {
	return &QueryHandler{
		queries:           queries,
		subscriber:        subscriber,
		metrics:           metrics,
		heartbeatInterval: 30 * time.Second,
	}
}

// queryResponse は履歴レコードのレスポンスボディ。
type queryResponse struct {
	ID        string    `json:"id"`
	Budget    string    `json:"budget"`
	UseCase   string    `json:"use"`
	Result    string    `json:"result"`
	CreatedAt time.Time `json:"created_at"`
}

// ListQueries は現在のユーザーの提案履歴を新しい順で返す。
// GET /api/queries
func (h *QueryHandler) ListQueries(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	queries, err := h.queries.ListByUserID(r.Context(), userID)
	if err != nil {
		slog.Error("failed to list queries",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toQueryResponses(queries))
}

// StreamQueries は提案履歴のライブ配信をSSEで提供する。
// 接続直後に現在の全履歴をsnapshotイベントで送信し、
// 以降は変更通知のたびに最新のsnapshotを送信する。
// GET /api/queries/stream
func (h *QueryHandler) StreamQueries(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	notify, cancel := h.subscriber.Subscribe(userID)
	defer cancel()

	if h.metrics != nil {
		h.metrics.RecordStreamConnected()
		defer h.metrics.RecordStreamDisconnected()
	}

	slog.Info("stream connected", slog.String("user_id", userID))

	// 1. 接続直後に現在のスナップショットを送信
	if err := h.writeSnapshot(r.Context(), w, userID); err != nil {
		slog.Error("failed to write initial snapshot",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	// 2. 変更通知のたびにスナップショットを再送信
	for {
		select {
		case <-r.Context().Done():
			slog.Info("stream disconnected", slog.String("user_id", userID))
			return

		case _, open := <-notify:
			if !open {
				// ブロードキャスターの停止。クライアントは再接続する
				return
			}
			if err := h.writeSnapshot(r.Context(), w, userID); err != nil {
				slog.Error("failed to write snapshot",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
				return
			}
			flusher.Flush()

		case <-heartbeat.C:
			// 接続維持のためのコメント行
			if _, err := w.Write([]byte(": heartbeat\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeSnapshot は現在の全履歴をsnapshotイベントとして書き込む。
func (h *QueryHandler) writeSnapshot(ctx context.Context, w http.ResponseWriter, userID string) error {
	queries, err := h.queries.ListByUserID(ctx, userID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(toQueryResponses(queries))
	if err != nil {
		return err
	}

	if _, err := w.Write([]byte("event: snapshot\ndata: ")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n\n"))
	return err
}

// toQueryResponses は履歴レコードをレスポンス形式に変換する。
// 空の履歴でもnullではなく空配列を返す。
func toQueryResponses(queries []model.Query) []queryResponse {
	responses := make([]queryResponse, len(queries))
	for i, q := range queries {
		responses[i] = queryResponse{
			ID:        q.ID,
			Budget:    q.Budget,
			UseCase:   string(q.UseCase),
			Result:    q.Result,
			CreatedAt: q.CreatedAt,
		}
	}
	return responses
}
