package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/tagbot/backend/internal/config"
	"github.com/zhouzirui/tagbot/backend/internal/handler"
	"github.com/zhouzirui/tagbot/backend/internal/handler/chat"
	"github.com/zhouzirui/tagbot/backend/internal/logging"
	"github.com/zhouzirui/tagbot/backend/internal/model/locale"
	"github.com/zhouzirui/tagbot/backend/internal/service/bot"
	"github.com/zhouzirui/tagbot/backend/internal/service/conversation"
	"github.com/zhouzirui/tagbot/backend/internal/service/ledger"
	"github.com/zhouzirui/tagbot/backend/internal/service/media"
	"github.com/zhouzirui/tagbot/backend/internal/service/session"
	"github.com/zhouzirui/tagbot/backend/internal/service/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	catalogs := locale.NewMemoryStore(locale.Seed())
	languages := locale.NewResolver(catalogs, cfg.Session.DefaultLanguage)

	blobs, err := storage.New(cfg.Media.UploadDir, cfg.Media.MaxUploadBytes, logger.Named("storage"))
	if err != nil {
		return err
	}

	thanks, err := ledger.Open(cfg.Ledger, logger.Named("ledger"))
	if err != nil {
		return err
	}
	defer func() {
		if err := thanks.Close(); err != nil {
			logger.Warn("failed to close ledger", zap.Error(err))
		}
	}()

	normalizer := media.NewNormalizer(media.NormalizerConfig{
		FFmpegPath:  cfg.Media.FFmpegPath,
		FFprobePath: cfg.Media.FFprobePath,
		Bitrate:     cfg.Media.Bitrate,
	}, logger.Named("normalizer"))
	pipeline := media.NewPipeline(normalizer, media.NewTagger(), logger.Named("pipeline"))

	sessions := session.NewStore()
	hub := chat.NewHub(logger.Named("ws"))

	engine := conversation.NewEngine(conversation.Deps{
		Sessions:   sessions,
		Transport:  hub,
		Downloader: blobs,
		Processor:  pipeline,
		Texts:      languages,
		WorkDir:    cfg.Media.WorkDir,
	}, logger.Named("conversation"))

	botSvc := bot.NewService(bot.Deps{
		Engine:    engine,
		Sessions:  sessions,
		Blobs:     blobs,
		Ledger:    thanks,
		Languages: languages,
		Transport: hub,
	}, bot.Config{
		SessionTTL:    cfg.Session.TTL,
		SweepInterval: cfg.Session.SweepInterval,
	}, logger.Named("bot"))
	hub.Attach(botSvc)

	router := handler.NewRouter(handler.Deps{
		Locales: catalogs,
		Blobs:   blobs,
		Ledger:  thanks,
		Hub:     hub,
		Logger:  logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("tagbot backend listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("work_dir", cfg.Media.WorkDir),
		zap.String("ledger", cfg.Ledger.Backend),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runServer(gctx, srv)
	})
	g.Go(func() error {
		return botSvc.Run(gctx)
	})
	err = g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if closeErr := botSvc.Close(closeCtx); closeErr != nil {
		logger.Warn("pending conversations did not finish", zap.Error(closeErr))
	}
	return err
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
