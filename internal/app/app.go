// Package app はアプリケーションの初期化・ワイヤリング・起動を提供する。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/huddle/internal/config"
	"github.com/hitoshi/huddle/internal/database"
	"github.com/hitoshi/huddle/internal/extract"
	"github.com/hitoshi/huddle/internal/feed"
	"github.com/hitoshi/huddle/internal/handler"
	"github.com/hitoshi/huddle/internal/ingest"
	"github.com/hitoshi/huddle/internal/logger"
	"github.com/hitoshi/huddle/internal/metrics"
	"github.com/hitoshi/huddle/internal/middleware"
	"github.com/hitoshi/huddle/internal/repository"
	"github.com/hitoshi/huddle/internal/security"
	"github.com/hitoshi/huddle/internal/tag"
	gapcheckpkg "github.com/hitoshi/huddle/internal/worker/gapcheck"
	ingestworker "github.com/hitoshi/huddle/internal/worker/ingest"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// pipeline は取り込みパイプラインの依存一式を保持する。
// serveとworkerの両モードで同じ構成を使う。
type pipeline struct {
	sourceRepo  repository.SourceRepository
	contentRepo repository.ContentRepository
	tagRepo     repository.TagRepository
	matcher     *tag.Matcher
	batch       *ingest.BatchIngestor
	collector   *metrics.Collector
}

// buildPipeline はDB接続から取り込みパイプライン全体をワイヤリングする。
func buildPipeline(db *sql.DB, cfg *config.Config, reg prometheus.Registerer) *pipeline {
	log := slog.Default()

	// リポジトリ
	sourceRepo := repository.NewPostgresSourceRepo(db)
	contentRepo := repository.NewPostgresContentRepo(db)
	tagRepo := repository.NewPostgresTagRepo(db)

	// セキュリティ
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	// パイプライン段
	fetcher := feed.NewFetcher(ssrfGuard, log, cfg.FetchTimeout, cfg.FetchMaxSize)
	extractor := extract.NewExtractor(sanitizer)
	matcher := tag.NewMatcher(tagRepo, log)
	gateway := ingest.NewGateway(contentRepo, log)

	orchestrator := ingest.NewOrchestrator(
		sourceRepo, contentRepo, fetcher, extractor, matcher, gateway, log,
	)

	collector := metrics.NewCollector(reg)
	batch := ingest.NewBatchIngestor(sourceRepo, orchestrator, matcher, collector, log)

	return &pipeline{
		sourceRepo:  sourceRepo,
		contentRepo: contentRepo,
		tagRepo:     tagRepo,
		matcher:     matcher,
		batch:       batch,
		collector:   collector,
	}
}

// runServe は管理APIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	reg := prometheus.NewRegistry()
	p := buildPipeline(db, cfg, reg)

	// ソース登録サービス
	ssrfGuard := security.NewSSRFGuard()
	detector := feed.NewDetector(ssrfGuard)
	logoResolver := feed.NewLogoResolver(ssrfGuard, slog.Default())
	sourceService := feed.NewSourceService(p.sourceRepo, detector, logoResolver, slog.Default())

	// レート制限
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitAdmin > 0 {
		rateLimiterCfg.AdminRate = rateLimitPerSecond(cfg.RateLimitAdmin)
		rateLimiterCfg.AdminBurst = cfg.RateLimitAdmin
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		RateLimiter:    rateLimiter,
		Logger:         slog.Default(),
		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),
		SourceService:  sourceService,
		BatchTrigger:   p.batch,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("admin API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down admin API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("admin API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、取り込みスケジューラと空白期間チェッカーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	reg := prometheus.NewRegistry()
	p := buildPipeline(db, cfg, reg)

	// タグ辞書は起動時に1回ロードする。以降はバッチ側のEnsureLoadedが
	// 冪等に効く。
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := p.matcher.LoadDictionary(startupCtx); err != nil {
		startupCancel()
		return fmt.Errorf("failed to load tag dictionary: %w", err)
	}
	startupCancel()

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("ingest_interval", cfg.IngestInterval),
		slog.Duration("gap_check_interval", cfg.GapCheckInterval),
		slog.Duration("stale_threshold", cfg.StaleThreshold),
	)

	// 空白期間チェッカーをバックグラウンドで起動
	gapChecker := gapcheckpkg.NewChecker(p.sourceRepo, p.batch, slog.Default(), cfg.StaleThreshold)
	go gapChecker.Start(ctx, cfg.GapCheckInterval)

	// 取り込みスケジューラをメインgoroutineで実行（ブロッキング）
	scheduler := ingestworker.NewScheduler(p.batch, slog.Default())
	scheduler.Start(ctx, cfg.IngestInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// rateLimitPerSecond はreq/min単位の設定値をreq/secのrate.Limitへ変換する。
func rateLimitPerSecond(perMinute int) rate.Limit {
	return rate.Limit(float64(perMinute) / 60.0)
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
