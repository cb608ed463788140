package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/buildman/internal/middleware"
	"github.com/hitoshi/buildman/internal/model"
)

// SetupServiceInterface はPC構成ハンドラーが必要とするサービスインターフェース。
type SetupServiceInterface interface {
	GetSetup(ctx context.Context, userID string) (*model.Setup, error)
	SaveSetup(ctx context.Context, userID string, patch *model.SetupPatch) (*model.Setup, error)
}

// SetupHandler はPC構成関連のHTTPハンドラー。
type SetupHandler struct {
	service SetupServiceInterface
}

// NewSetupHandler はSetupHandlerを生成する。
func NewSetupHandler(service SetupServiceInterface) *SetupHandler {
	return &SetupHandler{
		service: service,
	}
}

// setupResponse はPC構成のレスポンスボディ。
type setupResponse struct {
	CPU         string    `json:"cpu"`
	Motherboard string    `json:"motherboard"`
	GPU         string    `json:"gpu"`
	RAM         string    `json:"ram"`
	Storage     string    `json:"storage"`
	PSU         string    `json:"psu"`
	PCCase      string    `json:"pcCase"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// setupPatchRequest はPC構成の部分更新のリクエストボディ。
// 省略されたフィールドは既存の値を維持する。
type setupPatchRequest struct {
	CPU         *string `json:"cpu"`
	Motherboard *string `json:"motherboard"`
	GPU         *string `json:"gpu"`
	RAM         *string `json:"ram"`
	Storage     *string `json:"storage"`
	PSU         *string `json:"psu"`
	PCCase      *string `json:"pcCase"`
}

// GetSetup は現在のユーザーのPC構成を返す。
// 未登録の場合は404とsetup/not-foundコードを返す。
// GET /api/setup
func (h *SetupHandler) GetSetup(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	setup, err := h.service.GetSetup(r.Context(), userID)
	if err != nil {
		writeSetupError(w, err)
		return
	}

	writeSetupResponse(w, http.StatusOK, setup)
}

// SaveSetup はPC構成をマージ書き込みする。
// リクエストに含まれないフィールドは既存の値を維持する。
// PATCH /api/setup
func (h *SetupHandler) SaveSetup(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req setupPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(nil))
		return
	}

	patch := &model.SetupPatch{
		CPU:         req.CPU,
		Motherboard: req.Motherboard,
		GPU:         req.GPU,
		RAM:         req.RAM,
		Storage:     req.Storage,
		PSU:         req.PSU,
		PCCase:      req.PCCase,
	}

	saved, err := h.service.SaveSetup(r.Context(), userID, patch)
	if err != nil {
		writeSetupError(w, err)
		return
	}

	writeSetupResponse(w, http.StatusOK, saved)
}

// writeSetupResponse はPC構成をJSONで書き込む。
func writeSetupResponse(w http.ResponseWriter, status int, setup *model.Setup) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(setupResponse{
		CPU:         setup.CPU,
		Motherboard: setup.Motherboard,
		GPU:         setup.GPU,
		RAM:         setup.RAM,
		Storage:     setup.Storage,
		PSU:         setup.PSU,
		PCCase:      setup.PCCase,
		UpdatedAt:   setup.UpdatedAt,
	})
}

// writeSetupError は構成操作のエラーをコード別のHTTPステータスで書き込む。
func writeSetupError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		slog.Error("unexpected setup error", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	switch apiErr.Code {
	case model.ErrCodeSetupNotFound:
		middleware.WriteErrorResponse(w, http.StatusNotFound, apiErr)
	case model.ErrCodeValidation:
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
	default:
		middleware.WriteInternalServerError(w)
	}
}
