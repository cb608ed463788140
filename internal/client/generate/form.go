package generate

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/hitoshi/buildman/internal/model"
)

// Generator はフォームが必要とする生成操作。Clientの部分集合として定義する。
type Generator interface {
	Generate(ctx context.Context, budget string, useCase model.UseCase, identityID string) (string, error)
}

// Form は生成リクエストフォームのビューモデル。
// 成功時は結果を保持して入力をクリアし、失敗時は入力を保持したまま
// インラインエラー文言を表示する。どの経路でも再入力可能な状態に戻る。
type Form struct {
	client Generator

	mu      sync.Mutex
	budget  string
	useCase string
	result  string
	errText string
	busy    bool
}

// NewForm はFormを生成する。
func NewForm(client Generator) *Form {
	return &Form{client: client}
}

// SetBudget は予算入力を更新する。
func (f *Form) SetBudget(v string) {
	f.mu.Lock()
	f.budget = v
	f.mu.Unlock()
}

// SetUseCase は用途選択を更新する。
func (f *Form) SetUseCase(v string) {
	f.mu.Lock()
	f.useCase = v
	f.mu.Unlock()
}

// Budget は現在の予算入力を返す。
func (f *Form) Budget() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.budget
}

// UseCase は現在の用途選択を返す。
func (f *Form) UseCase() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.useCase
}

// Result は直近の生成結果を返す。
func (f *Form) Result() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result
}

// ErrorText は直近のインラインエラー文言を返す。エラーがない場合は空文字列。
func (f *Form) ErrorText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errText
}

// Busy はリクエストが進行中かどうかを返す。
func (f *Form) Busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy
}

// isNumeric は文字列が数字のみで構成されているかどうかを返す。
func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Submit は入力を検証し、提案バックエンドへちょうど1回リクエストする。
// ローカル検証に失敗した場合はリクエストを送らず、エラー文言だけを設定する。
// 成功時は結果を保持し、予算・用途の入力とエラー文言をクリアする。
// 失敗時は入力をクリアせず、エラー文言を結果の代わりに表示する。
func (f *Form) Submit(ctx context.Context, identityID string) error {
	f.mu.Lock()
	if f.busy {
		f.mu.Unlock()
		return errors.New("request already in progress")
	}

	budget := strings.TrimSpace(f.budget)
	useCase := model.UseCase(f.useCase)

	if !isNumeric(budget) {
		f.errText = "予算は数字で入力してください。"
		f.mu.Unlock()
		return model.NewValidationError([]string{"budget"})
	}
	if !useCase.IsValid() {
		f.errText = "用途を選択してください。"
		f.mu.Unlock()
		return model.NewValidationError([]string{"use"})
	}

	f.busy = true
	f.mu.Unlock()

	text, err := f.client.Generate(ctx, budget, useCase, identityID)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false

	if err != nil {
		// 入力はクリアしない
		f.result = ""
		f.errText = inlineErrorText(err)
		return err
	}

	f.result = text
	f.errText = ""
	f.budget = ""
	f.useCase = ""
	return nil
}

// inlineErrorText はエラーを結果欄に表示するインライン文言へ変換する。
// バックエンドが返した文言はそのまま使い、それ以外は合成した文言に落とす。
func inlineErrorText(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "提案の生成に失敗しました。しばらく待ってから再度お試しください。"
}
