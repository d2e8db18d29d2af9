package ingest

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hitoshi/huddle/internal/model"
)

// mockIngestor はSourceIngestorServiceのテスト用モック。
type mockIngestor struct {
	ingestFunc func(ctx context.Context, sourceID string) (*IngestResult, error)
}

func (m *mockIngestor) IngestSource(ctx context.Context, sourceID string) (*IngestResult, error) {
	if m.ingestFunc != nil {
		return m.ingestFunc(ctx, sourceID)
	}
	return &IngestResult{}, nil
}

// mockDictionary はDictionaryLoaderのテスト用モック。
type mockDictionary struct {
	err       error
	callCount int
}

func (m *mockDictionary) EnsureLoaded(_ context.Context) error {
	m.callCount++
	return m.err
}

// mockBatchMetrics はBatchMetricsRecorderのテスト用モック。
type mockBatchMetrics struct {
	mu            sync.Mutex
	fetchSuccess  []string
	fetchFailure  []string
	itemsIngested int
	itemsSkipped  int
	runs          []*model.BatchStats
	skipped       int
}

func (m *mockBatchMetrics) RecordFetchSuccess(sourceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchSuccess = append(m.fetchSuccess, sourceID)
}

func (m *mockBatchMetrics) RecordFetchFailure(sourceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchFailure = append(m.fetchFailure, sourceID)
}

func (m *mockBatchMetrics) RecordItemsIngested(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.itemsIngested += count
}

func (m *mockBatchMetrics) RecordItemsSkipped(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.itemsSkipped += count
}

func (m *mockBatchMetrics) RecordBatchRun(stats *model.BatchStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, stats)
}

func (m *mockBatchMetrics) RecordBatchSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped++
}

func listActiveSources(sources ...*model.Source) *mockSourceRepo {
	return &mockSourceRepo{
		listActiveFunc: func(_ context.Context) ([]*model.Source, error) {
			return sources, nil
		},
	}
}

func TestRunBatch_ProcessesAllActiveSources(t *testing.T) {
	var buf bytes.Buffer

	var mu sync.Mutex
	var processed []string
	ingestor := &mockIngestor{
		ingestFunc: func(_ context.Context, sourceID string) (*IngestResult, error) {
			mu.Lock()
			processed = append(processed, sourceID)
			mu.Unlock()
			return &IngestResult{Created: 2, Skipped: 1}, nil
		},
	}

	metrics := &mockBatchMetrics{}
	b := NewBatchIngestor(
		listActiveSources(activeSource("s1"), activeSource("s2"), activeSource("s3")),
		ingestor,
		&mockDictionary{},
		metrics,
		newTestLogger(&buf),
	)

	stats, err := b.RunBatch(context.Background())
	if err != nil {
		t.Fatalf("RunBatch は失敗してはならない: %v", err)
	}

	if len(processed) != 3 {
		t.Errorf("processed = %v, want 3 sources", processed)
	}
	if stats.SourcesSucceeded != 3 {
		t.Errorf("SourcesSucceeded = %d, want 3", stats.SourcesSucceeded)
	}
	if stats.ItemsIngested != 6 {
		t.Errorf("ItemsIngested = %d, want 6", stats.ItemsIngested)
	}
	if stats.ItemsSkipped != 3 {
		t.Errorf("ItemsSkipped = %d, want 3", stats.ItemsSkipped)
	}
	if len(metrics.runs) != 1 {
		t.Errorf("RecordBatchRun call count = %d, want 1", len(metrics.runs))
	}
	if len(metrics.fetchSuccess) != 3 {
		t.Errorf("RecordFetchSuccess call count = %d, want 3", len(metrics.fetchSuccess))
	}
	if metrics.itemsIngested != 6 {
		t.Errorf("RecordItemsIngested total = %d, want 6", metrics.itemsIngested)
	}
	if metrics.itemsSkipped != 3 {
		t.Errorf("RecordItemsSkipped total = %d, want 3", metrics.itemsSkipped)
	}
}

func TestRunBatch_SourceFailure_DoesNotStopBatch(t *testing.T) {
	var buf bytes.Buffer

	ingestor := &mockIngestor{
		ingestFunc: func(_ context.Context, sourceID string) (*IngestResult, error) {
			if sourceID == "s2" {
				return nil, errors.New("fetch failed")
			}
			return &IngestResult{Created: 1}, nil
		},
	}

	metrics := &mockBatchMetrics{}
	b := NewBatchIngestor(
		listActiveSources(activeSource("s1"), activeSource("s2"), activeSource("s3")),
		ingestor,
		&mockDictionary{},
		metrics,
		newTestLogger(&buf),
	)

	stats, err := b.RunBatch(context.Background())
	if err != nil {
		t.Fatalf("1ソースの失敗はバッチ全体を失敗させてはならない: %v", err)
	}
	if stats.SourcesSucceeded != 2 {
		t.Errorf("SourcesSucceeded = %d, want 2", stats.SourcesSucceeded)
	}
	if stats.SourcesFailed != 1 {
		t.Errorf("SourcesFailed = %d, want 1", stats.SourcesFailed)
	}
	if len(metrics.fetchFailure) != 1 || metrics.fetchFailure[0] != "s2" {
		t.Errorf("RecordFetchFailure calls = %v, want [s2]", metrics.fetchFailure)
	}
}

func TestRunBatch_SingleFlight_ConcurrentRunSkipped(t *testing.T) {
	var buf bytes.Buffer

	started := make(chan struct{})
	release := make(chan struct{})

	ingestor := &mockIngestor{
		ingestFunc: func(_ context.Context, _ string) (*IngestResult, error) {
			close(started)
			<-release
			return &IngestResult{}, nil
		},
	}

	metrics := &mockBatchMetrics{}
	b := NewBatchIngestor(
		listActiveSources(activeSource("s1")),
		ingestor,
		&mockDictionary{},
		metrics,
		newTestLogger(&buf),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := b.RunBatch(context.Background()); err != nil {
			t.Errorf("先行バッチは失敗してはならない: %v", err)
		}
	}()

	<-started

	// 先行バッチの実行中に重ねて起動する
	stats, err := b.RunBatch(context.Background())
	if err != nil {
		t.Fatalf("二重起動はエラーではなくスキップでなければならない: %v", err)
	}
	if stats != nil {
		t.Errorf("スキップ時のstats = %v, want nil", stats)
	}

	close(release)
	wg.Wait()

	if metrics.skipped != 1 {
		t.Errorf("RecordBatchSkipped call count = %d, want 1", metrics.skipped)
	}
	if !b.running.CompareAndSwap(false, true) {
		t.Error("バッチ完了後はガードが解放されていなければならない")
	}
}

func TestRunBatch_GuardReleasedAfterFailure(t *testing.T) {
	var buf bytes.Buffer

	repo := &mockSourceRepo{
		listActiveFunc: func(_ context.Context) ([]*model.Source, error) {
			return nil, errors.New("db down")
		},
	}

	b := NewBatchIngestor(repo, &mockIngestor{}, &mockDictionary{}, &mockBatchMetrics{}, newTestLogger(&buf))

	if _, err := b.RunBatch(context.Background()); err == nil {
		t.Fatal("ソース一覧の取得失敗はエラーを返さなければならない")
	}

	// ガードが解放されており、次のバッチは起動できる
	if b.Running() {
		t.Error("失敗後もガードは解放されていなければならない")
	}
}

func TestRunBatch_DictionaryLoadFailure_AbortsBatch(t *testing.T) {
	var buf bytes.Buffer

	ingestCalled := false
	ingestor := &mockIngestor{
		ingestFunc: func(_ context.Context, _ string) (*IngestResult, error) {
			ingestCalled = true
			return &IngestResult{}, nil
		},
	}

	b := NewBatchIngestor(
		listActiveSources(activeSource("s1")),
		ingestor,
		&mockDictionary{err: errors.New("dictionary load failed")},
		&mockBatchMetrics{},
		newTestLogger(&buf),
	)

	if _, err := b.RunBatch(context.Background()); err == nil {
		t.Fatal("辞書ロード失敗はバッチを中断しなければならない")
	}
	if ingestCalled {
		t.Error("辞書ロード失敗後にソース取り込みが実行されてはならない")
	}
}

func TestRunBatch_ContextCancel_StopsProcessing(t *testing.T) {
	var buf bytes.Buffer

	ctx, cancel := context.WithCancel(context.Background())

	var processed int
	ingestor := &mockIngestor{
		ingestFunc: func(_ context.Context, _ string) (*IngestResult, error) {
			processed++
			cancel() // 1ソース目の処理後にキャンセル
			return &IngestResult{}, nil
		},
	}

	b := NewBatchIngestor(
		listActiveSources(activeSource("s1"), activeSource("s2"), activeSource("s3")),
		ingestor,
		&mockDictionary{},
		&mockBatchMetrics{},
		newTestLogger(&buf),
	)

	_, err := b.RunBatch(ctx)
	if err == nil {
		t.Fatal("キャンセルされたバッチはctx.Errを返さなければならない")
	}
	if processed != 1 {
		t.Errorf("processed = %d, want 1", processed)
	}
}
