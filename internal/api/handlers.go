package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"carbon-capture-ai/internal/apperr"
	"carbon-capture-ai/internal/database"
	"carbon-capture-ai/internal/models"
	"carbon-capture-ai/internal/services"
)

const maxBodyBytes = 1 << 20

// PlanStore serves the latest plan per unit
type PlanStore interface {
	LatestPlan(ctx context.Context, unitID string) (*models.OptimizationResult, error)
	Units(ctx context.Context) ([]string, error)
}

// RunHistory serves the audit trail of optimization runs
type RunHistory interface {
	RecentRuns(ctx context.Context, unitID string, limit int) ([]database.AuditRecord, error)
}

// Handler serves the HTTP facade over the prediction and optimization services
type Handler struct {
	predictions *services.PredictionService
	optimizer   *services.OptimizationService
	plans       PlanStore
	runs        RunHistory
	logger      *zap.Logger
	now         func() time.Time
}

// NewHandler creates a handler. plans and runs may be nil when their
// stores are disabled.
func NewHandler(
	predictions *services.PredictionService,
	optimizer *services.OptimizationService,
	plans PlanStore,
	runs RunHistory,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		predictions: predictions,
		optimizer:   optimizer,
		plans:       plans,
		runs:        runs,
		logger:      logger.With(zap.String("component", "api")),
		now:         time.Now,
	}
}

type errorBody struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindModelNotReady, apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	case apperr.KindInference:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON marshals v before writing the header. A value that cannot be
// encoded is answered with a 500.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("Failed to encode response", zap.Int("status", status), zap.Error(err))
		body, _ = json.Marshal(map[string]errorBody{
			"error": {Kind: apperr.KindInternal, Message: "failed to encode response"},
		})
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	h.writeJSON(w, status, map[string]errorBody{
		"error": {Kind: kind, Message: apperr.Message(err)},
	})
}

func (h *Handler) writeStatus(w http.ResponseWriter, status int, kind apperr.Kind, message string) {
	h.writeJSON(w, status, map[string]errorBody{"error": {Kind: kind, Message: message}})
}

// decode reads a JSON body into v. An empty body is allowed when optional.
func decode(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.InvalidInput("decode_request", "invalid JSON body: %v", err)
	}
	return nil
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	health := h.predictions.ModelHealth()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":        health.OverallStatus,
		"model_version": health.ModelVersion,
		"timestamp":     h.now().UTC(),
	})
}

func (h *Handler) ModelHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.predictions.ModelHealth())
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.predictions.Stats())
}

func (h *Handler) Strategies(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"strategies": h.optimizer.Strategies(),
		"default":    h.optimizer.DefaultStrategy(),
	})
}

func (h *Handler) PredictEfficiency(w http.ResponseWriter, r *http.Request) {
	var reading models.SensorReading
	if err := decode(w, r, &reading, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.predictions.PredictEfficiency(r.Context(), reading)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

func (h *Handler) PredictMaintenance(w http.ResponseWriter, r *http.Request) {
	var reading models.SensorReading
	if err := decode(w, r, &reading, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.predictions.PredictMaintenance(r.Context(), reading)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// OptimizeEnergy takes a reading; missing operational fields use the
// service defaults
func (h *Handler) OptimizeEnergy(w http.ResponseWriter, r *http.Request) {
	var reading models.SensorReading
	if err := decode(w, r, &reading, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.predictions.OptimizeEnergy(r.Context(), services.ExtractEnergyInput(reading, h.now()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

func (h *Handler) PredictBatch(w http.ResponseWriter, r *http.Request) {
	var units []models.UnitReading
	if err := decode(w, r, &units, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(units) == 0 {
		h.writeError(w, r, apperr.InvalidInput("predict_batch", "no units given"))
		return
	}
	results := h.predictions.PredictBatch(r.Context(), units)

	succeeded := 0
	for _, res := range results {
		if res.Success {
			succeeded++
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"results":         results,
		"total_units":     len(results),
		"successful":      succeeded,
		"failed":          len(results) - succeeded,
		"batch_timestamp": h.now().UTC(),
	})
}

type optimizeUnitRequest struct {
	UnitID           string               `json:"unit_id"`
	SensorData       models.SensorReading `json:"sensor_data"`
	Strategy         string               `json:"strategy"`
	TimeHorizonHours int                  `json:"time_horizon_hours"`
}

func (h *Handler) OptimizeUnit(w http.ResponseWriter, r *http.Request) {
	var req optimizeUnitRequest
	if err := decode(w, r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.optimizer.OptimizeUnit(r.Context(), req.UnitID, req.SensorData, req.Strategy, req.TimeHorizonHours)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type optimizeNetworkRequest struct {
	Units    []models.UnitReading `json:"units"`
	Strategy string               `json:"strategy"`
}

func (h *Handler) OptimizeNetwork(w http.ResponseWriter, r *http.Request) {
	var req optimizeNetworkRequest
	if err := decode(w, r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(req.Units) == 0 {
		h.writeError(w, r, apperr.InvalidInput("optimize_network", "no units given"))
		return
	}
	result, err := h.optimizer.OptimizeNetwork(r.Context(), req.Units, req.Strategy)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type modelsRequest struct {
	Directory string `json:"directory"`
}

func (h *Handler) SaveModels(w http.ResponseWriter, r *http.Request) {
	var req modelsRequest
	if err := decode(w, r, &req, true); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.predictions.SaveModels(req.Directory); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "saved", "directory": req.Directory})
}

func (h *Handler) LoadModels(w http.ResponseWriter, r *http.Request) {
	var req modelsRequest
	if err := decode(w, r, &req, true); err != nil {
		h.writeError(w, r, err)
		return
	}
	loaded, err := h.predictions.LoadModels(req.Directory)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":        "loaded",
		"models":        loaded,
		"model_version": h.predictions.ModelHealth().ModelVersion,
	})
}

func (h *Handler) PlannedUnits(w http.ResponseWriter, r *http.Request) {
	if h.plans == nil {
		h.writeJSON(w, http.StatusOK, map[string]any{"units": []string{}})
		return
	}
	units, err := h.plans.Units(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"units": units})
}

func (h *Handler) LatestPlan(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "unitID")
	if h.plans == nil {
		h.writeStatus(w, http.StatusNotFound, apperr.KindUnavailable, "plan store disabled")
		return
	}
	plan, err := h.plans.LatestPlan(r.Context(), unitID)
	if errors.Is(err, database.ErrPlanNotFound) {
		h.writeStatus(w, http.StatusNotFound, apperr.KindInvalidInput, "no plan for unit "+unitID)
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, plan)
}

func (h *Handler) RecentRuns(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "unitID")
	if h.runs == nil {
		h.writeStatus(w, http.StatusNotFound, apperr.KindUnavailable, "run history disabled")
		return
	}
	limit := 10
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 100 {
			h.writeError(w, r, apperr.InvalidInput("recent_runs", "limit must be between 1 and 100"))
			return
		}
		limit = n
	}
	runs, err := h.runs.RecentRuns(r.Context(), unitID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"unit_id": unitID, "runs": runs})
}
