package generate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/buildman/internal/model"
)

func TestClient_Generate_Success(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Method != http.MethodPost || r.URL.Path != "/gerar-setup" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}

		var req struct {
			Budget string `json:"budget"`
			Use    string `json:"use"`
			UserID string `json:"userId"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Budget != "3500" || req.Use != "games" || req.UserID != "user-1" {
			t.Errorf("request body = %+v", req)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"setup_gerado": "CPU: Ryzen 5 5600..."})
	}))
	defer server.Close()

	c := NewClient(server.URL, server.Client())

	text, err := c.Generate(context.Background(), "3500", model.UseCaseGames, "user-1")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if text != "CPU: Ryzen 5 5600..." {
		t.Errorf("text = %q", text)
	}
	if requests != 1 {
		t.Errorf("requests = %d, want exactly 1 (no retry)", requests)
	}
}

// 非2xxのエラーボディの文言はそのままインライン表示に使われる。
func TestClient_Generate_BackendErrorKeepsInlineText(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "boom"})
	}))
	defer server.Close()

	c := NewClient(server.URL, server.Client())

	_, err := c.Generate(context.Background(), "3500", model.UseCaseGames, "user-1")
	if model.ErrorCode(err) != model.ErrCodeBackendError {
		t.Fatalf("error code = %q, want %q", model.ErrorCode(err), model.ErrCodeBackendError)
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "boom" {
		t.Errorf("unexpected error: %v", err)
	}
	if requests != 1 {
		t.Errorf("requests = %d, want exactly 1 (no retry)", requests)
	}
}

func TestClient_Generate_MalformedSuccessBodyIsBackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	c := NewClient(server.URL, server.Client())

	_, err := c.Generate(context.Background(), "3500", model.UseCaseGames, "user-1")
	if model.ErrorCode(err) != model.ErrCodeBackendError {
		t.Errorf("error code = %q, want %q", model.ErrorCode(err), model.ErrCodeBackendError)
	}
}

func TestClient_Generate_TransportErrorIsRemoteUnavailable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", http.DefaultClient)

	_, err := c.Generate(context.Background(), "3500", model.UseCaseGames, "user-1")
	if model.ErrorCode(err) != model.ErrCodeRemoteUnavailable {
		t.Errorf("error code = %q, want %q", model.ErrorCode(err), model.ErrCodeRemoteUnavailable)
	}
}
