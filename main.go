package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/notes-bin/aigallery/internal/api"
	"github.com/notes-bin/aigallery/internal/auth"
	"github.com/notes-bin/aigallery/internal/cache"
	"github.com/notes-bin/aigallery/internal/config"
	"github.com/notes-bin/aigallery/internal/gallery"
	"github.com/notes-bin/aigallery/internal/inference"
	"github.com/notes-bin/aigallery/internal/logger"
	"github.com/notes-bin/aigallery/internal/model"
	"github.com/notes-bin/aigallery/internal/processor"
	"github.com/notes-bin/aigallery/internal/records"
	"github.com/notes-bin/aigallery/internal/redis"
	"github.com/notes-bin/aigallery/internal/storage"
	"github.com/notes-bin/aigallery/internal/upload"
)

func main() {
	// 初始化日志
	log, syncLog, err := logger.New()
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	defer syncLog()
	slog.SetDefault(log)

	// 加载配置
	cfg, err := config.Load("config/config.json")
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化 Redis
	redisClient, err := redis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// 初始化数据库
	recs, err := records.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		slog.Error("Failed to open records store", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer recs.Close()

	// 初始化对象存储
	objects, files, err := openStorage(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize storage", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}

	// 初始化 AI 服务
	gemini, err := inference.NewGeminiClient(ctx, inference.Config{
		Backend:        cfg.Inference.Backend,
		APIKey:         cfg.Inference.APIKey,
		Project:        cfg.Inference.Project,
		Location:       cfg.Inference.Location,
		VisionModel:    cfg.Inference.VisionModel,
		EmbeddingModel: cfg.Inference.EmbeddingModel,
	})
	if err != nil {
		slog.Error("Failed to initialize inference client", "error", err)
		os.Exit(1)
	}

	// 上传写入存储后触发处理回调
	hook := storage.NewWebhook(cfg.WebhookURL, cfg.WebhookSecret, 2*time.Minute)
	uploads := storage.WithNotifications(objects, hook, log)
	defer uploads.Close()

	tracker := upload.NewTracker(uploads, recs, redisClient, upload.Options{
		PollInterval: cfg.Poll.Interval,
		MaxAttempts:  cfg.Poll.MaxAttempts,
	}, log)
	tracker.OnComplete = func(st model.UploadStatus) {
		if st.State == model.UploadTimedOut {
			slog.Warn("Processing still running after poll budget", "path", st.FilePath)
		}
	}
	defer tracker.Close()

	// 画廊会话缓存
	sessions := cache.NewSessions(objects.PublicURL, cfg.SessionIdleTimeout)
	go cache.StartJanitor(ctx, sessions, time.Minute)

	// 设置路由
	router := api.SetupRouter(api.Deps{
		Config:    cfg,
		Auth:      auth.NewAuth(cfg.JWTSecret, cfg.SessionTTL, redisClient),
		Records:   recs,
		Objects:   objects,
		Files:     files,
		Tracker:   tracker,
		View:      gallery.NewView(recs, sessions),
		Processor: processor.New(objects, recs, gemini, log),
	})

	// 启动服务器
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("Server starting on port", "port", cfg.Port, "storage", cfg.Storage.Driver, "database", cfg.Database.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// 优雅关闭
	<-ctx.Done()
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped")
}

func openStorage(ctx context.Context, cfg *config.Config) (storage.Store, *storage.Local, error) {
	if cfg.Storage.Driver == "s3" {
		s, err := storage.NewS3(ctx, storage.S3Config{
			Endpoint:        cfg.Storage.S3.Endpoint,
			Region:          cfg.Storage.S3.Region,
			Bucket:          cfg.Storage.Bucket,
			AccessKeyID:     cfg.Storage.S3.AccessKeyID,
			SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
			PublicURL:       cfg.Storage.S3.PublicURL,
		})
		return s, nil, err
	}
	local, err := storage.NewLocal(cfg.Storage.Dir, cfg.Storage.Bucket, cfg.PublicBaseURL)
	if err != nil {
		return nil, nil, err
	}
	return local, local, nil
}
