package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/trashscanner/predictor/internal/config"
	"github.com/trashscanner/predictor/internal/handlers"
	"github.com/trashscanner/predictor/internal/imaging"
	"github.com/trashscanner/predictor/internal/logger"
	"github.com/trashscanner/predictor/internal/model"
	"github.com/trashscanner/predictor/internal/prediction"
	"github.com/trashscanner/predictor/internal/routes"
	"github.com/trashscanner/predictor/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	appLog, err := logger.New(level, cfg.Logging.File)
	if err != nil {
		log.Fatalf("Failed to open log: %v", err)
	}
	defer appLog.Close()

	classes := prediction.DefaultClasses
	height, width := cfg.Model.ImageHeight, cfg.Model.ImageWidth
	if cfg.Model.MetadataPath != "" {
		metadata, err := model.LoadMetadata(cfg.Model.MetadataPath)
		if err != nil {
			log.Fatalf("Failed to load model metadata: %v", err)
		}
		classes = metadata.Classes
		if metadata.ImageSize > 0 {
			height, width = metadata.ImageSize, metadata.ImageSize
		}
	}

	labels, err := prediction.NewLabelSet(classes)
	if err != nil {
		log.Fatalf("Invalid label set: %v", err)
	}

	filter, err := imaging.ParseFilter(cfg.Model.ResizeFilter)
	if err != nil {
		log.Fatalf("Invalid resize filter: %v", err)
	}
	preprocessor, err := imaging.NewPreprocessor(height, width, filter)
	if err != nil {
		log.Fatalf("Failed to create preprocessor: %v", err)
	}

	appLog.Info("Loading model from: %s", cfg.Model.Path)
	engine, err := model.NewEngine(model.Options{
		ModelPath:         cfg.Model.Path,
		SharedLibraryPath: cfg.Model.SharedLibraryPath,
		Height:            height,
		Width:             width,
		OutputWidth:       labels.Len(),
	})
	if err != nil {
		log.Fatalf("Failed to initialize model: %v", err)
	}
	defer engine.Close()

	if err := labels.CheckWidth(engine.OutputWidth()); err != nil {
		engine.Close()
		log.Fatalf("Model and labels disagree: %v", err)
	}
	if !engine.StaticOutputWidth() {
		appLog.Warning("Model output width is dynamic; assuming %d classes", labels.Len())
	}
	if !slices.Equal(engine.InputShape(), preprocessor.Shape()) {
		appLog.Warning("Model expects input %v but images are resized to %v; predictions will fail",
			engine.InputShape(), preprocessor.Shape())
	}

	scans, err := storage.NewScanStore(cfg.Filestore)
	if err != nil {
		engine.Close()
		log.Fatalf("Failed to initialize scan storage: %v", err)
	}

	pipeline := prediction.NewPipeline(preprocessor, engine, labels, appLog)
	handler := handlers.NewHandler(handlers.Options{
		Fetcher:    scans,
		Classifier: pipeline,
		Classes:    labels.Names(),
		ModelPath:  cfg.Model.Path,
		Timeout:    cfg.Server.RequestTimeout,
		Logger:     appLog,
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           routes.SetupRoutes(handler, cfg.Auth.Token, appLog),
		ReadHeaderTimeout: 10 * time.Second,
	}

	input, output := engine.Names()
	appLog.Info("Model loaded: %s (input %q %v, output %q)", cfg.Model.Path, input, engine.InputShape(), output)
	appLog.Info("Classes: %v", labels.Names())
	appLog.Info("Scans bucket: %s at %s", scans.Bucket(), cfg.Filestore.Endpoint)
	appLog.Info("Server starting on %s", server.Addr)
	appLog.Info("Endpoints:")
	appLog.Info("  GET  /        - Welcome")
	appLog.Info("  GET  /health  - Health check")
	appLog.Info("  POST /predict - Classify a scan (photo_id query, User-Id and Prediction-Id headers)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("Server failed: %v", err)
		}
	case <-ctx.Done():
		appLog.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			appLog.Error("Shutdown: %v", err)
		}
	}
}
