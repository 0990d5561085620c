package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/trashscanner/predictor/internal/logger"
	"github.com/trashscanner/predictor/internal/middleware"
	"github.com/trashscanner/predictor/internal/prediction"
	"github.com/trashscanner/predictor/internal/storage"
)

// ScanFetcher returns the raw bytes of an uploaded scan.
type ScanFetcher interface {
	Fetch(ctx context.Context, userID, photoID string) ([]byte, error)
}

// Classifier runs the prediction pipeline.
type Classifier interface {
	Classify(ctx context.Context, raw []byte, ids prediction.CorrelationIDs) (*prediction.Result, error)
}

type Handler struct {
	fetcher    ScanFetcher
	classifier Classifier
	classes    []string
	modelPath  string
	timeout    time.Duration
	logger     *logger.Logger
}

type Options struct {
	Fetcher    ScanFetcher
	Classifier Classifier
	Classes    []string
	ModelPath  string
	// Timeout bounds fetch plus classification; zero means no deadline.
	Timeout time.Duration
	Logger  *logger.Logger
}

func NewHandler(opts Options) *Handler {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{
		fetcher:    opts.Fetcher,
		classifier: opts.Classifier,
		classes:    opts.Classes,
		modelPath:  opts.ModelPath,
		timeout:    opts.Timeout,
		logger:     log,
	}
}

func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to Trash Scanner Predictor API"})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"model":   h.modelPath,
		"classes": h.classes,
	})
}

// Predict classifies the scan named by the photo_id query parameter, owned
// by the User-Id header, and echoes the Prediction-Id header.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	photoID := r.URL.Query().Get("photo_id")
	userID := header(r, "User-Id", "user_id")
	predictionID := header(r, "Prediction-Id", "prediction_id")
	switch {
	case photoID == "":
		writeError(w, http.StatusUnprocessableEntity, "missing query parameter: photo_id")
		return
	case userID == "":
		writeError(w, http.StatusUnprocessableEntity, "missing header: User-Id")
		return
	case predictionID == "":
		writeError(w, http.StatusUnprocessableEntity, "missing header: Prediction-Id")
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	reqID := middleware.RequestID(ctx)

	raw, err := h.fetcher.Fetch(ctx, userID, photoID)
	if err != nil {
		if errors.Is(err, storage.ErrScanNotFound) {
			h.logger.Info("[%s] scan %s of user %s not found", reqID, photoID, userID)
			writeError(w, http.StatusNotFound, "Image not found")
			return
		}
		h.logger.Error("[%s] fetching scan %s: %v", reqID, photoID, err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("storage error: %v", err))
		return
	}
	h.logger.Debug("[%s] fetched scan %s (%d bytes)", reqID, photoID, len(raw))

	result, err := h.classifier.Classify(ctx, raw, prediction.CorrelationIDs{
		PredictionID: predictionID,
		Target:       photoID,
	})
	if err != nil {
		h.writeClassifyError(w, reqID, photoID, err)
		return
	}

	h.logger.Info("[%s] prediction %s for scan %s: %s", reqID, predictionID, photoID, result)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) writeClassifyError(w http.ResponseWriter, reqID, photoID string, err error) {
	switch {
	case prediction.ClientFault(err):
		h.logger.Warning("[%s] scan %s rejected: %v", reqID, photoID, err)
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid image: %v", err))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		h.logger.Warning("[%s] scan %s abandoned: %v", reqID, photoID, err)
		writeError(w, http.StatusServiceUnavailable, "Prediction timed out")
	case errors.Is(err, prediction.ErrShapeMismatch):
		h.logger.Error("[%s] model and label set disagree, check the deployed model version: %v", reqID, err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Prediction failed: %v", err))
	default:
		h.logger.Error("[%s] prediction for scan %s failed: %v", reqID, photoID, err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Prediction failed: %v", err))
	}
}

// header returns the first non-empty value among the given header names.
func header(r *http.Request, names ...string) string {
	for _, name := range names {
		if v := r.Header.Get(name); v != "" {
			return v
		}
	}
	return ""
}
