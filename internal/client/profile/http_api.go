package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hitoshi/buildman/internal/model"
)

// HTTPSetupAPI はバックエンドの /api/setup エンドポイントに対するSetupAPI実装。
// セッションCookieを持つHTTPクライアントを共有して使う。
type HTTPSetupAPI struct {
	baseURL string
	client  *http.Client
}

var _ SetupAPI = (*HTTPSetupAPI)(nil)

// NewHTTPSetupAPI はHTTPSetupAPIを生成する。
// clientには認証済みセッションのCookie jarを持つクライアントを渡す。
func NewHTTPSetupAPI(baseURL string, client *http.Client) *HTTPSetupAPI {
	return &HTTPSetupAPI{baseURL: baseURL, client: client}
}

// setupBody は /api/setup のリクエスト/レスポンスボディ。
type setupBody struct {
	CPU         *string    `json:"cpu,omitempty"`
	Motherboard *string    `json:"motherboard,omitempty"`
	GPU         *string    `json:"gpu,omitempty"`
	RAM         *string    `json:"ram,omitempty"`
	Storage     *string    `json:"storage,omitempty"`
	PSU         *string    `json:"psu,omitempty"`
	PCCase      *string    `json:"pcCase,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// apiErrorBody は統一エラーフォーマットのレスポンスボディ。
type apiErrorBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// Get は現在のセッションのプロフィールドキュメントを取得する。
// 未登録（404 setup/not-found）の場合は (nil, nil) を返す。
func (a *HTTPSetupAPI) Get(ctx context.Context) (*model.Setup, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/setup", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, model.NewRemoteUnavailableError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 300 {
		return nil, decodeSetupError(resp)
	}

	return decodeSetup(resp)
}

// Merge はマージ書き込みを実行し、サーバー側のマージ結果を返す。
func (a *HTTPSetupAPI) Merge(ctx context.Context, patch model.SetupPatch) (*model.Setup, error) {
	body, err := json.Marshal(setupBody{
		CPU:         patch.CPU,
		Motherboard: patch.Motherboard,
		GPU:         patch.GPU,
		RAM:         patch.RAM,
		Storage:     patch.Storage,
		PSU:         patch.PSU,
		PCCase:      patch.PCCase,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal patch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, a.baseURL+"/api/setup", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	attachCSRFHeader(req, a.client)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, model.NewRemoteUnavailableError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, decodeSetupError(resp)
	}

	return decodeSetup(resp)
}

// attachCSRFHeader はjar内のCSRFトークンCookieを二重送信ヘッダーに載せる。
// トークン未取得の場合は何もしない（検証はサーバー側が行う）。
func attachCSRFHeader(req *http.Request, client *http.Client) {
	if client.Jar == nil {
		return
	}
	for _, c := range client.Jar.Cookies(req.URL) {
		if c.Name == "csrf_token" {
			req.Header.Set("X-CSRF-Token", c.Value)
			return
		}
	}
}

func decodeSetup(resp *http.Response) (*model.Setup, error) {
	var body setupBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, model.NewRemoteUnavailableError(fmt.Sprintf("malformed setup response: %v", err))
	}

	doc := &model.Setup{}
	assign := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	assign(&doc.CPU, body.CPU)
	assign(&doc.Motherboard, body.Motherboard)
	assign(&doc.GPU, body.GPU)
	assign(&doc.RAM, body.RAM)
	assign(&doc.Storage, body.Storage)
	assign(&doc.PSU, body.PSU)
	assign(&doc.PCCase, body.PCCase)
	if body.UpdatedAt != nil {
		doc.UpdatedAt = *body.UpdatedAt
	}

	return doc, nil
}

// decodeSetupError はエラーレスポンスをAPIErrorに復元する。
// ボディが読めない場合はトランスポート障害として扱う。
func decodeSetupError(resp *http.Response) error {
	var body apiErrorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Code == "" {
		return model.NewRemoteUnavailableError(fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}
	return &model.APIError{
		Code:     body.Code,
		Message:  body.Message,
		Category: body.Category,
		Action:   body.Action,
	}
}
