package gapcheck

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

// mockSourceRepo はSourceRepositoryのテスト用モック。
type mockSourceRepo struct {
	listStaleFunc func(ctx context.Context, threshold time.Duration) ([]*model.Source, error)
}

func (m *mockSourceRepo) FindByID(_ context.Context, _ string) (*model.Source, error) {
	return nil, nil
}

func (m *mockSourceRepo) FindByFeedURL(_ context.Context, _ string) (*model.Source, error) {
	return nil, nil
}

func (m *mockSourceRepo) Create(_ context.Context, _ *model.Source) error { return nil }

func (m *mockSourceRepo) Update(_ context.Context, _ *model.Source) error { return nil }

func (m *mockSourceRepo) ListAll(_ context.Context) ([]*model.Source, error) { return nil, nil }

func (m *mockSourceRepo) ListActive(_ context.Context) ([]*model.Source, error) { return nil, nil }

func (m *mockSourceRepo) ListStale(ctx context.Context, threshold time.Duration) ([]*model.Source, error) {
	if m.listStaleFunc != nil {
		return m.listStaleFunc(ctx, threshold)
	}
	return nil, nil
}

func (m *mockSourceRepo) UpdateIngestHealth(_ context.Context, _ *model.Source) error { return nil }

func (m *mockSourceRepo) SetActive(_ context.Context, _ string, _ bool) error { return nil }

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
	return &model.BatchStats{}, m.err
}

func (m *mockBatchRunner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestRunOnce_NoStaleSources_DoesNotTriggerBatch(t *testing.T) {
	var buf bytes.Buffer

	batch := &mockBatchRunner{}
	c := NewChecker(&mockSourceRepo{}, batch, newTestLogger(&buf), 2*time.Hour)

	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce は失敗してはならない: %v", err)
	}
	if batch.callCount() != 0 {
		t.Errorf("滞留ソースなしでバッチが起動されてはならない: callCount = %d", batch.callCount())
	}
}

func TestRunOnce_StaleSources_TriggersBatch(t *testing.T) {
	var buf bytes.Buffer

	stale := time.Now().Add(-5 * time.Hour)
	repo := &mockSourceRepo{
		listStaleFunc: func(_ context.Context, _ time.Duration) ([]*model.Source, error) {
			return []*model.Source{
				{ID: "s1", Name: "Stale Source", LastIngestedAt: &stale},
			}, nil
		},
	}

	batch := &mockBatchRunner{}
	c := NewChecker(repo, batch, newTestLogger(&buf), 2*time.Hour)

	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce は失敗してはならない: %v", err)
	}
	if batch.callCount() != 1 {
		t.Errorf("batch callCount = %d, want 1", batch.callCount())
	}

	// 滞留ソースごとに警告が記録される
	if !strings.Contains(buf.String(), "Stale Source") {
		t.Error("滞留ソースの情報がログに記録されなければならない")
	}
}

func TestRunOnce_NeverIngestedSource_TriggersBatch(t *testing.T) {
	var buf bytes.Buffer

	repo := &mockSourceRepo{
		listStaleFunc: func(_ context.Context, _ time.Duration) ([]*model.Source, error) {
			return []*model.Source{
				{ID: "s1", Name: "Fresh Source", LastIngestedAt: nil},
			}, nil
		},
	}

	batch := &mockBatchRunner{}
	c := NewChecker(repo, batch, newTestLogger(&buf), 2*time.Hour)

	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce は失敗してはならない: %v", err)
	}
	if batch.callCount() != 1 {
		t.Errorf("batch callCount = %d, want 1", batch.callCount())
	}
}

func TestRunOnce_ThresholdPassedToRepo(t *testing.T) {
	var buf bytes.Buffer

	var gotThreshold time.Duration
	repo := &mockSourceRepo{
		listStaleFunc: func(_ context.Context, threshold time.Duration) ([]*model.Source, error) {
			gotThreshold = threshold
			return nil, nil
		},
	}

	c := NewChecker(repo, &mockBatchRunner{}, newTestLogger(&buf), 2*time.Hour)

	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce は失敗してはならない: %v", err)
	}
	if gotThreshold != 2*time.Hour {
		t.Errorf("threshold = %v, want 2h", gotThreshold)
	}
}

func TestRunOnce_ListStaleError_Propagates(t *testing.T) {
	var buf bytes.Buffer

	repo := &mockSourceRepo{
		listStaleFunc: func(_ context.Context, _ time.Duration) ([]*model.Source, error) {
			return nil, errors.New("db down")
		},
	}

	c := NewChecker(repo, &mockBatchRunner{}, newTestLogger(&buf), 2*time.Hour)

	if err := c.RunOnce(context.Background()); err == nil {
		t.Fatal("リポジトリエラーは伝播しなければならない")
	}
}

func TestStart_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer

	stale := time.Now().Add(-5 * time.Hour)
	repo := &mockSourceRepo{
		listStaleFunc: func(_ context.Context, _ time.Duration) ([]*model.Source, error) {
			return []*model.Source{
				{ID: "s1", Name: "Stale", LastIngestedAt: &stale},
			}, nil
		},
	}

	batch := &mockBatchRunner{}
	c := NewChecker(repo, batch, newTestLogger(&buf), 2*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Start(ctx, time.Hour)
		close(done)
	}()

	// 起動直後の1回目の実行を待ってからキャンセル
	deadline := time.After(2 * time.Second)
	for batch.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("起動直後のチェックが実行されていない")
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
