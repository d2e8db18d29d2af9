package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/huddle/internal/model"
)

// BatchTrigger はバッチ取り込みの起動インターフェース。
type BatchTrigger interface {
	// RunBatch は全アクティブソースを取り込む。実行中の場合は (nil, nil) を返す。
	RunBatch(ctx context.Context) (*model.BatchStats, error)
	// Running は現在バッチが実行中かどうかを返す。
	Running() bool
}

// IngestHandler は取り込みトリガーのHTTPハンドラー。
// 取り込みはリクエストのライフサイクルから切り離してバックグラウンドで
// 実行し、202 Acceptedを即座に返す。
type IngestHandler struct {
	batch  BatchTrigger
	logger *slog.Logger
}

// NewIngestHandler はIngestHandlerを生成する。
func NewIngestHandler(batch BatchTrigger, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{
		batch:  batch,
		logger: logger,
	}
}

// TriggerIngest はバッチ取り込みをバックグラウンドで起動する。
// POST /admin/ingest
//
// 単一実行ガードはバッチ側が持つため、実行中の二重トリガーは
// バックグラウンド側でスキップされる。レスポンスのrunningフィールドで
// トリガー時点の実行状態を通知する。
func (h *IngestHandler) TriggerIngest(w http.ResponseWriter, r *http.Request) {
	alreadyRunning := h.batch.Running()

	// リクエストコンテキストは応答後にキャンセルされるため使わない
	go func() {
		if _, err := h.batch.RunBatch(context.Background()); err != nil {
			h.logger.Error("バッチ取り込みの実行に失敗しました",
				slog.String("error", err.Error()),
			)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "accepted",
		"running": alreadyRunning,
	})
}
