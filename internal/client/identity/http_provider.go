package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/hitoshi/buildman/internal/model"
)

// ExternalSignInDelegate は外部プロバイダーのブラウザフローを代行する。
// Completeが正常に戻った時点でセッションCookieがHTTPクライアントのjarに格納されていること。
type ExternalSignInDelegate interface {
	// Complete はloginURLから始まるOAuthフローを完遂する。
	// ユーザーがフローを中断した場合はエラーを返す。
	Complete(ctx context.Context, loginURL string) error
}

// HTTPProvider はバックエンドの認証APIをIDプロバイダーとして公開する実装。
// Cookie jarでセッションを保持し、サインイン/サインアウトのたびに購読者へ通知する。
type HTTPProvider struct {
	baseURL  string
	client   *http.Client
	delegate ExternalSignInDelegate
	logger   *slog.Logger
	timeout  time.Duration

	mu          sync.Mutex
	subscribers map[int]func(*Identity)
	nextID      int
	current     *Identity
	resolved    bool

	resolveOnce sync.Once

	// notifyMu は配信順序を購読者ごとに直列化する
	notifyMu sync.Mutex
}

var _ Provider = (*HTTPProvider)(nil)

// NewHTTPProvider はHTTPProviderを生成する。
// delegateがnilの場合、外部プロバイダーでのサインインは常に中断扱いになる。
func NewHTTPProvider(baseURL string, delegate ExternalSignInDelegate, logger *slog.Logger) (*HTTPProvider, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPProvider{
		baseURL:     baseURL,
		client:      &http.Client{Jar: jar, Timeout: 30 * time.Second},
		delegate:    delegate,
		logger:      logger,
		timeout:     10 * time.Second,
		subscribers: make(map[int]func(*Identity)),
	}, nil
}

// userResponse は認証APIが返すユーザー情報のレスポンスボディ。
type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// errorResponse は統一エラーフォーマットのレスポンスボディ。
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SignIn はメール/パスワードでサインインする。
func (p *HTTPProvider) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	ident, err := p.postCredentials(ctx, "/auth/login", email, password)
	if err != nil {
		return nil, err
	}
	p.setCurrent(ident)
	return ident, nil
}

// SignUp は新規アカウントを作成しサインインする。
func (p *HTTPProvider) SignUp(ctx context.Context, email, password string) (*Identity, error) {
	ident, err := p.postCredentials(ctx, "/auth/signup", email, password)
	if err != nil {
		return nil, err
	}
	p.setCurrent(ident)
	return ident, nil
}

// SignInWithExternalProvider は外部プロバイダーのブラウザフローでサインインする。
func (p *HTTPProvider) SignInWithExternalProvider(ctx context.Context) (*Identity, error) {
	if p.delegate == nil {
		return nil, model.NewAuthError(model.ErrCodeAuthPopupClosed)
	}

	// 1. ブラウザフローを代行者に委任する（完了時にセッションCookieがjarに入る）
	if err := p.delegate.Complete(ctx, p.baseURL+"/auth/google/login"); err != nil {
		p.logger.Warn("external sign-in flow abandoned", slog.String("error", err.Error()))
		return nil, model.NewAuthError(model.ErrCodeAuthPopupClosed)
	}

	// 2. 確立したセッションからユーザー情報を取得する
	ident, err := p.fetchMe(ctx)
	if err != nil {
		return nil, err
	}
	if ident == nil {
		return nil, model.NewAuthError(model.ErrCodeAuthUnknown)
	}

	p.setCurrent(ident)
	return ident, nil
}

// SendPasswordReset はパスワード再設定メールの送信を依頼する。
// 登録の有無にかかわらずサーバーは受理を返すため、成功は送信の保証ではない。
func (p *HTTPProvider) SendPasswordReset(ctx context.Context, email string) error {
	body, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		return fmt.Errorf("failed to marshal reset request: %w", err)
	}

	resp, err := p.post(ctx, "/auth/reset/request", body)
	if err != nil {
		return model.NewRemoteUnavailableError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	return nil
}

// SignOut はセッションを終了する。
// リモート呼び出しの成否にかかわらず、ローカルでは未認証として確定し購読者へ通知する。
func (p *HTTPProvider) SignOut(ctx context.Context) error {
	resp, err := p.post(ctx, "/auth/logout", nil)
	if err != nil {
		p.setCurrent(nil)
		return model.NewRemoteUnavailableError(err.Error())
	}
	resp.Body.Close()

	p.setCurrent(nil)
	return nil
}

// Subscribe はセッション変化の購読を開始する。
// 初回解決前の購読はバックグラウンドで現在のセッションを確認してから配信する。
func (p *HTTPProvider) Subscribe(fn func(*Identity)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subscribers[id] = fn
	resolved := p.resolved
	current := p.current
	p.mu.Unlock()

	if resolved {
		p.notifyMu.Lock()
		fn(current)
		p.notifyMu.Unlock()
	} else {
		go p.resolveOnce.Do(p.resolveInitial)
	}

	return func() {
		p.mu.Lock()
		delete(p.subscribers, id)
		p.mu.Unlock()
	}
}

// resolveInitial は既存セッションの有無を確認し、最初の通知を配信する。
// 確認に失敗した場合は未認証として確定させる（購読者を待たせ続けない）。
func (p *HTTPProvider) resolveInitial() {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	ident, err := p.fetchMe(ctx)
	if err != nil {
		p.logger.Warn("failed to resolve current session, treating as unauthenticated",
			slog.String("error", err.Error()),
		)
		ident = nil
	}

	p.mu.Lock()
	if p.resolved {
		// サインイン完了が先に確定した場合は初回解決を破棄する
		p.mu.Unlock()
		return
	}
	p.resolved = true
	p.current = ident
	p.mu.Unlock()

	p.notify(ident)
}

// setCurrent は現在のセッションを更新し、購読者へ通知する。
func (p *HTTPProvider) setCurrent(ident *Identity) {
	p.mu.Lock()
	p.resolved = true
	p.current = ident
	p.mu.Unlock()

	p.notify(ident)
}

func (p *HTTPProvider) notify(ident *Identity) {
	p.mu.Lock()
	fns := make([]func(*Identity), 0, len(p.subscribers))
	for _, fn := range p.subscribers {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()
	for _, fn := range fns {
		fn(ident)
	}
}

// postCredentials は認証エンドポイントへ資格情報を送信し、ユーザー情報を返す。
func (p *HTTPProvider) postCredentials(ctx context.Context, path, email, password string) (*Identity, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credentials: %w", err)
	}

	resp, err := p.post(ctx, path, body)
	if err != nil {
		return nil, model.NewRemoteUnavailableError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp)
	}

	var user userResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, model.NewRemoteUnavailableError(fmt.Sprintf("malformed auth response: %v", err))
	}

	return &Identity{ID: user.ID, Email: user.Email, Name: user.Name}, nil
}

// fetchMe は現在のセッションに対応するユーザー情報を取得する。
// 未認証（401）の場合は (nil, nil) を返す。
func (p *HTTPProvider) fetchMe(ctx context.Context) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/auth/me", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, model.NewRemoteUnavailableError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, nil
	}
	if resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp)
	}

	var user userResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, model.NewRemoteUnavailableError(fmt.Sprintf("malformed auth response: %v", err))
	}

	return &Identity{ID: user.ID, Email: user.Email, Name: user.Name}, nil
}

func (p *HTTPProvider) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return p.client.Do(req)
}

// decodeAPIError はエラーレスポンスの{code}判別子をAPIErrorに写像する。
// ボディが読めない場合は汎用の認証エラーに落とす。
func decodeAPIError(resp *http.Response) error {
	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Code == "" {
		return model.NewAuthError(model.ErrCodeAuthUnknown)
	}
	return model.NewAuthError(body.Code)
}
