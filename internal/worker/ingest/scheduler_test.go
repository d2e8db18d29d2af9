package ingest

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/huddle/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// mockBatchRunner はBatchRunnerのテスト用モック。
type mockBatchRunner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockBatchRunner) RunBatch(_ context.Context) (*model.BatchStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &model.BatchStats{}, nil
}

func (m *mockBatchRunner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestRunOnce_InvokesBatch(t *testing.T) {
	var buf bytes.Buffer

	batch := &mockBatchRunner{}
	s := NewScheduler(batch, newTestLogger(&buf))

	s.RunOnce(context.Background())

	if batch.callCount() != 1 {
		t.Errorf("batch callCount = %d, want 1", batch.callCount())
	}
}

func TestRunOnce_BatchError_LoggedNotPanic(t *testing.T) {
	var buf bytes.Buffer

	batch := &mockBatchRunner{err: errors.New("db down")}
	s := NewScheduler(batch, newTestLogger(&buf))

	s.RunOnce(context.Background())

	if !strings.Contains(buf.String(), "db down") {
		t.Error("バッチの失敗はログに記録されなければならない")
	}
}

func TestStart_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer

	batch := &mockBatchRunner{}
	s := NewScheduler(batch, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Start(ctx, time.Hour)
		close(done)
	}()

	// 起動直後の1回目の実行を待つ
	deadline := time.After(2 * time.Second)
	for batch.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("起動直後のバッチが実行されていない")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("キャンセル後にStartが終了していない")
	}
}

func TestStart_TickerFiresRepeatedly(t *testing.T) {
	var buf bytes.Buffer

	batch := &mockBatchRunner{}
	s := NewScheduler(batch, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Start(ctx, 20*time.Millisecond)
		close(done)
	}()

	// 起動直後の1回 + ティッカー発火分で2回以上になるまで待つ
	deadline := time.After(2 * time.Second)
	for batch.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatal("ティッカーによる周期実行が観測できない")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}
