// Package generate は構成提案バックエンドへのワンショットクライアントと、
// 生成リクエストフォームのビューモデルを提供する。
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hitoshi/buildman/internal/model"
)

// Client は提案バックエンドの /gerar-setup へのHTTPクライアント。
// ユーザー操作1回につきちょうど1リクエストを送り、リトライは行わない。
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient はClientを生成する。
// clientには認証済みセッションのCookie jarを持つクライアントを渡す。
func NewClient(baseURL string, client *http.Client) *Client {
	return &Client{baseURL: baseURL, client: client}
}

// generateRequest は /gerar-setup のリクエストボディ。
type generateRequest struct {
	Budget string `json:"budget"`
	Use    string `json:"use"`
	UserID string `json:"userId"`
}

// generateResponse は成功時のレスポンスボディ。
type generateResponse struct {
	SetupGerado string `json:"setup_gerado"`
}

// generateErrorResponse は失敗時のレスポンスボディ。
type generateErrorResponse struct {
	Error string `json:"error"`
}

// Generate は構成提案を1回だけリクエストする。
// トランスポート障害はRemoteUnavailable、非2xxや不正なレスポンスはBackendErrorとして返す。
func (c *Client) Generate(ctx context.Context, budget string, useCase model.UseCase, identityID string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Budget: budget,
		Use:    string(useCase),
		UserID: identityID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/gerar-setup", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	attachCSRFHeader(req, c.client)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", model.NewRemoteUnavailableError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errBody generateErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil || errBody.Error == "" {
			return "", model.NewBackendError(fmt.Sprintf("提案サーバーがエラーを返しました（status %d）。", resp.StatusCode))
		}
		// バックエンドのインラインエラー文言をそのまま表示に使う
		return "", model.NewBackendError(errBody.Error)
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil || result.SetupGerado == "" {
		return "", model.NewBackendError("提案サーバーの応答を読み取れませんでした。")
	}

	return result.SetupGerado, nil
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
