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

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"taxfiler/internal/api"
	"taxfiler/internal/auth"
	"taxfiler/internal/config"
	"taxfiler/internal/logging"
	"taxfiler/internal/ratelimit"
	"taxfiler/internal/redis"
	"taxfiler/internal/service/ai"
	"taxfiler/internal/service/dashboard"
	"taxfiler/internal/service/filing"
	"taxfiler/internal/service/ocr"
	"taxfiler/internal/service/records"
	"taxfiler/internal/storage"
	"taxfiler/internal/storage/files"
	"taxfiler/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("taxfiler stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("TAXFILER_CONFIG"))
	if err != nil {
		return err
	}
	logger := logging.Init(cfg.BasicConfig.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbType := cfg.BasicConfig.Database
	logger.Info("opening database", "driver", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		return err
	}

	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	store, err := records.NewService(db, records.Options{EncryptOCRText: cfg.Upload.EncryptOCRText})
	if err != nil {
		return err
	}

	fileStore, err := newFileStore(cfg)
	if err != nil {
		return err
	}
	store.StartRetentionCleaner(ctx, fileStore,
		time.Duration(cfg.Upload.CleanInterval)*time.Minute,
		time.Duration(cfg.Upload.RetentionMinutes)*time.Minute)

	genaiClient, err := ai.NewGeminiClient(ctx, cfg.Providers["gemini"].APIKey)
	if err != nil {
		return err
	}
	chatProvider := cfg.Pipeline.ChatProvider
	chatModel, err := ai.NewChatModel(ctx, chatProvider, cfg.Pipeline.ChatModel, cfg.Providers[chatProvider], genaiClient)
	if err != nil {
		return err
	}

	dispatcher := worker.NewDispatcher(worker.DispatcherConfig{
		MinWorkers:  cfg.BasicConfig.MinWorkers,
		MaxWorkers:  cfg.BasicConfig.MaxWorkers,
		QueueSize:   cfg.BasicConfig.QueueSize,
		IdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
		Logger:      logger,
	})
	defer dispatcher.Stop()

	dash := dashboard.NewService(store, rdb, filing.YearResolver(cfg.Pipeline.FinancialYear), logger)
	orchestrator := filing.NewOrchestrator(
		store,
		fileStore,
		ocr.NewAdapter(ocr.NewTesseractEngine(cfg.OCR.Binary, cfg.OCR.TessdataDir), cfg.OCR.Language, logger),
		ai.NewExtractor(genaiClient.Models, cfg.Pipeline.ExtractionModel, logger),
		ai.NewSuggester(genaiClient.Models, cfg.Pipeline.SuggestionModel, cfg.Pipeline.DefaultUserAge, logger),
		filing.Options{
			FinancialYear: cfg.Pipeline.FinancialYear,
			StageTimeout:  cfg.StageTimeout(),
			Invalidator:   dash,
			Logger:        logger,
		},
	)

	deps := api.Deps{
		Records:          store,
		Auth:             auth.NewService(db, rdb, time.Duration(cfg.BasicConfig.TokenTTL)*time.Hour),
		Pipeline:         orchestrator,
		Chat:             ai.NewChatAdapter(chatModel, logger),
		Dashboard:        dash,
		Workers:          dispatcher,
		MaxUploadBytes:   cfg.Upload.MaxBytes,
		AllowedMimeTypes: cfg.Upload.AllowedMimeTypes,
	}
	if n := cfg.RateLimit.UploadsPerMinute; n > 0 {
		if deps.UploadLimiter, err = ratelimit.NewFixedWindowLimiter(rdb, "taxfiler:ratelimit:upload", n, time.Minute); err != nil {
			return err
		}
	}
	if n := cfg.RateLimit.ChatPerMinute; n > 0 {
		if deps.ChatLimiter, err = ratelimit.NewFixedWindowLimiter(rdb, "taxfiler:ratelimit:chat", n, time.Minute); err != nil {
			return err
		}
	}

	if cfg.BasicConfig.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           api.NewRouter(api.NewHandler(deps), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logger.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newFileStore(cfg *config.Config) (filing.FileStore, error) {
	if cfg.Upload.ObjectStoreBacked {
		obj := cfg.ObjectStore
		return files.NewMinioStore(obj.Endpoint, obj.AccessKey, obj.SecretKey, obj.Bucket, obj.UseSSL)
	}
	return files.NewLocalStore(cfg.Upload.BaseDir)
}

