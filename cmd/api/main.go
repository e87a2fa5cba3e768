package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campusattend/attendance/internal/app"
	"github.com/campusattend/attendance/internal/auth"
	"github.com/campusattend/attendance/internal/cloudinary"
	"github.com/campusattend/attendance/internal/config"
	"github.com/campusattend/attendance/internal/handler"
	"github.com/campusattend/attendance/internal/notify"
	"github.com/campusattend/attendance/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Face.Health(ctx); err != nil {
		log.Printf("WARNING: face service not available: %v", err)
	} else {
		log.Println("face service connected")
	}

	cdnClient := cloudinary.New(cfg.Cloudinary)
	if cdnClient != nil {
		log.Println("Cloudinary configured:", cfg.Cloudinary.CloudName)
	} else {
		log.Println("Cloudinary not configured (CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set)")
	}

	// the in-memory queue lives in this process, so deliver its notices here too
	if cfg.QueueBackend == "memory" {
		n, err := notify.New(cfg.SMTP)
		if err != nil {
			return err
		}
		go func() {
			if err := worker.Consume(ctx, a.Queue, n); err != nil {
				log.Printf("notice consumer stopped: %v", err)
			}
		}()
	}

	h := handler.New(handler.Deps{
		Service: a.Service,
		Repo:    a.Repo,
		Issuer: auth.Issuer{
			Name:       cfg.JWTIssuer,
			Key:        []byte(cfg.JWTSigningKey),
			AccessTTL:  cfg.AccessTTL,
			RefreshTTL: cfg.RefreshTTL,
		},
		Cloud:           cdnClient,
		Queue:           a.Queue,
		DB:              a.DB,
		Redis:           a.Redis,
		RateLimitPerMin: cfg.RateLimitPerMin,
		WebDir:          "web",
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RecognitionTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}
