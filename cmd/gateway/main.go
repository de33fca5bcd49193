package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	api "github.com/mind-engage/ielts-mock/internal/api/http"
	authmw "github.com/mind-engage/ielts-mock/internal/auth/middleware"
	"github.com/mind-engage/ielts-mock/internal/checkpoint"
	"github.com/mind-engage/ielts-mock/internal/config"
	"github.com/mind-engage/ielts-mock/internal/db"
	"github.com/mind-engage/ielts-mock/internal/exam"
	"github.com/mind-engage/ielts-mock/internal/grading"
	"github.com/mind-engage/ielts-mock/internal/logging"
	"github.com/mind-engage/ielts-mock/internal/metrics"
	"github.com/mind-engage/ielts-mock/internal/notes"
	"github.com/mind-engage/ielts-mock/internal/storage"
	syncx "github.com/mind-engage/ielts-mock/internal/sync"
)

func main() {
	cfg := config.FromEnv()
	logger := logging.New(cfg.LogLevel, cfg.LogFile)
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("gateway stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		return err
	}
	defer dbh.Close()

	exams := exam.NewSQLStore(dbh, grading.NewDefaultGrader())
	events := syncx.NewEventRepo(dbh, cfg.SiteID)

	bs, err := openBlobs(ctx, cfg)
	if err != nil {
		return err
	}

	// --- Auth (local JWT for offline/dev) ---
	authSvc := authmw.NewAuthService(cfg.AuthSecret)
	var login *authmw.LoginConfig
	if cfg.EnableLocalAuth {
		login = &authmw.LoginConfig{
			AdminUser:          cfg.AdminUser,
			AdminPassHash:      cfg.AdminPassHash,
			AllowDevCandidates: cfg.Mode == config.ModeOffline,
		}
	}

	if cfg.MetricsEnabled {
		metrics.Register(prometheus.DefaultRegisterer)
	}

	handler := api.NewRouter(api.Deps{
		Exams:          exams,
		Checkpoints:    checkpoint.NewSQLStore(dbh),
		Notes:          notes.NewService(notes.NewSQLStore(dbh)),
		Limiter:        checkpoint.NewLimiter(cfg.CheckpointRate, cfg.CheckpointBurst),
		Blobs:          bs,
		Events:         events,
		Feed:           events,
		Auth:           authSvc,
		Login:          login,
		SecureCookies:  cfg.Mode == config.ModeOnline,
		Logger:         logger,
		CORSOrigins:    cfg.CORSOrigins(),
		RequestTimeout: cfg.RequestTimeout,
		Metrics:        cfg.MetricsEnabled,
		Ready:          dbh.PingContext,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("mode", string(cfg.Mode)),
			zap.String("db", cfg.DBDriver),
			zap.String("blobs", cfg.BlobDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-sigCtx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	return server.Shutdown(shutdownCtx)
}

func openBlobs(ctx context.Context, cfg config.Config) (storage.BlobStore, error) {
	if cfg.BlobDriver == "minio" {
		return storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Secure:    cfg.MinioSecure,
		})
	}
	return storage.NewFSStore(cfg.BlobBasePath)
}
