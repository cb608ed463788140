package history

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/buildman/internal/model"
)

// HTTPStreamOpener は /api/queries/stream のSSEエンドポイントに対するStreamOpener実装。
// 購読のスコープはセッションCookieで決まるため、サーバー側で識別子フィルタが適用される。
type HTTPStreamOpener struct {
	baseURL string
	client  *http.Client
}

var _ StreamOpener = (*HTTPStreamOpener)(nil)

// NewHTTPStreamOpener はHTTPStreamOpenerを生成する。
// clientには認証済みセッションのCookie jarを持つクライアントを渡す。
// SSEは長時間接続のため、クライアントのTimeoutは0であること。
func NewHTTPStreamOpener(baseURL string, client *http.Client) *HTTPStreamOpener {
	return &HTTPStreamOpener{baseURL: baseURL, client: client}
}

// Open はSSE接続を開く。identityIDはログ用であり、実際のスコープはセッションが決める。
func (o *HTTPStreamOpener) Open(ctx context.Context, identityID string) (SnapshotStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/queries/stream", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, model.NewRemoteUnavailableError(err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, model.NewSubscriptionError(fmt.Sprintf("stream rejected with status %d", resp.StatusCode))
	}

	return &sseStream{
		resp:   resp,
		reader: bufio.NewReader(resp.Body),
	}, nil
}

// sseStream はSSEのイベント境界を解析してスナップショットを復元する。
type sseStream struct {
	resp   *http.Response
	reader *bufio.Reader
}

// queryRecord はスナップショットイベントに含まれる履歴レコードのボディ。
type queryRecord struct {
	ID        string    `json:"id"`
	Budget    string    `json:"budget"`
	UseCase   string    `json:"use"`
	Result    string    `json:"result"`
	CreatedAt time.Time `json:"created_at"`
}

// Next は次のsnapshotイベントまで読み進める。
// ハートビートコメント行は読み飛ばす。接続断はエラーとして返る。
func (s *sseStream) Next() ([]model.Query, error) {
	var event string
	var data strings.Builder

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("stream read failed: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			// イベント境界
			if event == "snapshot" && data.Len() > 0 {
				return decodeSnapshot(data.String())
			}
			event = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// ハートビートコメント
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
}

// Close は接続を閉じる。以後のNextはエラーを返す。
func (s *sseStream) Close() error {
	return s.resp.Body.Close()
}

func decodeSnapshot(payload string) ([]model.Query, error) {
	var records []queryRecord
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		return nil, fmt.Errorf("malformed snapshot payload: %w", err)
	}

	queries := make([]model.Query, 0, len(records))
	for _, rec := range records {
		queries = append(queries, model.Query{
			ID:        rec.ID,
			Budget:    rec.Budget,
			UseCase:   model.UseCase(rec.UseCase),
			Result:    rec.Result,
			CreatedAt: rec.CreatedAt,
		})
	}
	return queries, nil
}
