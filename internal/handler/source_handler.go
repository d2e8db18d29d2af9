// Package handler は管理APIのHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/huddle/internal/model"
)

// SourceServiceInterface はソースハンドラーが必要とするサービスインターフェース。
type SourceServiceInterface interface {
	// RegisterSource はURLからフィードを検出しソースを登録する。
	RegisterSource(ctx context.Context, name string, kind model.SourceKind, inputURL string) (*model.Source, error)
	// ListSources は全ソースを返す。
	ListSources(ctx context.Context) ([]*model.Source, error)
	// SetSourceActive はソースの有効フラグを更新する。
	SetSourceActive(ctx context.Context, sourceID string, active bool) error
}

// SourceHandler はソース管理のHTTPハンドラー。
type SourceHandler struct {
	service SourceServiceInterface
	logger  *slog.Logger
}

// NewSourceHandler はSourceHandlerを生成する。
func NewSourceHandler(service SourceServiceInterface, logger *slog.Logger) *SourceHandler {
	return &SourceHandler{
		service: service,
		logger:  logger,
	}
}

// registerSourceRequest はソース登録リクエストのボディ。
type registerSourceRequest struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

// setActiveRequest は有効フラグ更新リクエストのボディ。
type setActiveRequest struct {
	Active bool `json:"active"`
}

// sourceResponse はソース情報のAPIレスポンス。
type sourceResponse struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Kind           string     `json:"kind"`
	FeedURL        string     `json:"feed_url"`
	SiteURL        string     `json:"site_url"`
	LogoURL        string     `json:"logo_url,omitempty"`
	Active         bool       `json:"active"`
	LastFetchedAt  *time.Time `json:"last_fetched_at,omitempty"`
	LastIngestedAt *time.Time `json:"last_ingested_at,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// RegisterSource はソース登録を処理する。
// POST /admin/sources
func (h *SourceHandler) RegisterSource(w http.ResponseWriter, r *http.Request) {
	var req registerSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.IngestError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	if req.URL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("URLが空です"))
		return
	}

	source, err := h.service.RegisterSource(r.Context(), req.Name, model.SourceKind(req.Kind), req.URL)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toSourceResponse(source))
}

// ListSources は登録済みソースの一覧を返す。
// GET /admin/sources
func (h *SourceHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.service.ListSources(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	resp := make([]sourceResponse, 0, len(sources))
	for _, s := range sources {
		resp = append(resp, toSourceResponse(s))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"sources": resp,
	})
}

// SetActive はソースの有効フラグを更新する。
// PATCH /admin/sources/{id}/active
func (h *SourceHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "id")

	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.IngestError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	if err := h.service.SetSourceActive(r.Context(), sourceID, req.Active); err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":     sourceID,
		"active": req.Active,
	})
}

// handleServiceError はサービス層のエラーをHTTPレスポンスへ変換する。
func (h *SourceHandler) handleServiceError(w http.ResponseWriter, err error) {
	var ingestErr *model.IngestError
	if errors.As(err, &ingestErr) {
		writeAPIErrorResponse(w, mapIngestErrorToHTTPStatus(ingestErr), ingestErr)
		return
	}

	h.logger.Error("internal server error", slog.String("error", err.Error()))
	writeInternalServerError(w)
}

// toSourceResponse はドメインモデルをAPIレスポンスへ変換する。
func toSourceResponse(s *model.Source) sourceResponse {
	return sourceResponse{
		ID:             s.ID,
		Name:           s.Name,
		Kind:           string(s.Kind),
		FeedURL:        s.FeedURL,
		SiteURL:        s.SiteURL,
		LogoURL:        s.LogoURL,
		Active:         s.Active,
		LastFetchedAt:  s.LastFetchedAt,
		LastIngestedAt: s.LastIngestedAt,
		LastError:      s.LastError,
	}
}

// mapIngestErrorToHTTPStatus はエラーコードをHTTPステータスへ対応付ける。
func mapIngestErrorToHTTPStatus(ingestErr *model.IngestError) int {
	switch ingestErr.Code {
	case model.ErrCodeFeedNotDetected:
		return http.StatusUnprocessableEntity
	case model.ErrCodeInvalidURL, model.ErrCodeInvalidSourceKind:
		return http.StatusBadRequest
	case model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	case model.ErrCodeFetchFailed:
		return http.StatusBadGateway
	case model.ErrCodeDuplicateSource:
		return http.StatusConflict
	case model.ErrCodeSourceNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, ingestErr *model.IngestError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     ingestErr.Code,
		Message:  ingestErr.Message,
		Category: ingestErr.Category,
		Action:   ingestErr.Action,
	})
}

// writeInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、呼び出し元には一般的なメッセージを返す。
func writeInternalServerError(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.IngestError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
