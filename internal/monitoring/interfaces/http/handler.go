package http

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	equipment "vessel-monitor/internal/equipment/domain"
	"vessel-monitor/internal/monitoring/application"
	monitoring "vessel-monitor/internal/monitoring/domain"
	"vessel-monitor/internal/observability/metrics"
)

const (
	timeLayout = time.RFC3339

	maxPointNameLength = 100
	maxUnitLength      = 20
)

// Handler provides the reading ingestion HTTP endpoints.
type Handler struct {
	service *application.Service
	logger  *zap.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *application.Service, logger *zap.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("monitoring handler: nil service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}, nil
}

// ServeHTTP handles /api/v1/readings and /api/v1/readings/batch.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Path {
	case "/api/v1/readings":
		h.handleIngest(w, r)
	case "/api/v1/readings/batch":
		h.handleBatch(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type readingRequest struct {
	EquipmentID     string   `json:"equipmentId"`
	Timestamp       string   `json:"timestamp"`
	MetricType      string   `json:"metricType"`
	MonitoringPoint string   `json:"monitoringPoint"`
	Value           *float64 `json:"value"`
	Unit            string   `json:"unit"`
	Quality         string   `json:"quality"`
	Source          string   `json:"source"`
}

type ingestResponse struct {
	DataID   int64 `json:"dataId"`
	Received bool  `json:"received"`
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req readingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.IncIngestError("bad_json")
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	cmd, err := req.toCommand()
	if err != nil {
		metrics.IncIngestError("validation")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.service.Ingest(r.Context(), cmd)
	if err != nil {
		h.respondIngestError(w, err)
		metrics.ObserveIngest(metrics.ResultError, time.Since(started))
		return
	}

	metrics.ObserveIngest(metrics.ResultSuccess, time.Since(started))
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ingestResponse{DataID: id, Received: true})
}

type batchRequest struct {
	EquipmentID string `json:"equipmentId"`
	Data        []struct {
		Timestamp       string   `json:"timestamp"`
		MetricType      string   `json:"metricType"`
		MonitoringPoint string   `json:"monitoringPoint"`
		Value           *float64 `json:"value"`
		Unit            string   `json:"unit"`
		Quality         string   `json:"quality"`
		Source          string   `json:"source"`
	} `json:"data"`
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.IncIngestError("bad_json")
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := validateEquipmentID(req.EquipmentID); err != nil {
		metrics.IncIngestError("validation")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Malformed items fail inside the batch result, not the whole
	// request. A placeholder with a zero timestamp keeps the indices
	// aligned; its reason is patched back in below.
	cmd := application.BatchCommand{EquipmentID: req.EquipmentID}
	malformed := make(map[int]string)
	for i, item := range req.Data {
		parsed, err := parseItem(item.Timestamp, item.MetricType, item.MonitoringPoint, item.Value, item.Unit, item.Quality, item.Source)
		if err != nil {
			h.logger.Debug("malformed batch item", zap.Int("index", i), zap.Error(err))
			malformed[i] = err.Error()
			cmd.Items = append(cmd.Items, application.BatchItem{})
			continue
		}
		cmd.Items = append(cmd.Items, parsed)
	}

	result, err := h.service.IngestBatch(r.Context(), cmd)
	if err != nil {
		h.respondIngestError(w, err)
		metrics.ObserveIngest(metrics.ResultError, time.Since(started))
		return
	}
	for i, failure := range result.Errors {
		if reason, ok := malformed[failure.Index]; ok {
			result.Errors[i].Reason = reason
		}
	}

	metrics.ObserveIngest(metrics.ResultSuccess, time.Since(started))
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (h *Handler) respondIngestError(w http.ResponseWriter, err error) {
	var mismatch *equipment.MetricTypeMismatchError
	switch {
	case errors.Is(err, equipment.ErrNotFound):
		metrics.IncIngestError("equipment_not_found")
		http.Error(w, "equipment not found", http.StatusNotFound)
	case errors.Is(err, equipment.ErrPointNotFound), errors.As(err, &mismatch):
		metrics.IncIngestError("point_rejected")
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, application.ErrEmptyBatch), errors.Is(err, application.ErrBatchTooLarge):
		metrics.IncIngestError("batch_size")
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, application.ErrPersistence):
		metrics.IncIngestError("persistence")
		http.Error(w, "reading could not be stored", http.StatusInternalServerError)
	default:
		metrics.IncIngestError("internal")
		h.logger.Error("ingest request failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (r readingRequest) toCommand() (application.IngestCommand, error) {
	if err := validateEquipmentID(r.EquipmentID); err != nil {
		return application.IngestCommand{}, err
	}
	item, err := parseItem(r.Timestamp, r.MetricType, r.MonitoringPoint, r.Value, r.Unit, r.Quality, r.Source)
	if err != nil {
		return application.IngestCommand{}, err
	}
	return application.IngestCommand{
		EquipmentID:     r.EquipmentID,
		Timestamp:       item.Timestamp,
		MetricType:      item.MetricType,
		MonitoringPoint: item.MonitoringPoint,
		Value:           item.Value,
		Unit:            item.Unit,
		Quality:         item.Quality,
		Source:          item.Source,
	}, nil
}

func validateEquipmentID(id string) error {
	if id == "" {
		return errors.New("equipmentId is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("equipmentId must be a UUID")
	}
	return nil
}

func parseItem(timestamp, metricType, point string, value *float64, unit, quality, source string) (application.BatchItem, error) {
	if timestamp == "" {
		return application.BatchItem{}, errors.New("timestamp is required")
	}
	parsed, err := time.Parse(timeLayout, timestamp)
	if err != nil {
		return application.BatchItem{}, errors.New("timestamp must be RFC3339")
	}
	if !monitoring.MetricType(metricType).Valid() {
		return application.BatchItem{}, errors.New("unknown metricType: " + metricType)
	}
	if value == nil {
		return application.BatchItem{}, errors.New("value is required")
	}
	if math.IsNaN(*value) || math.IsInf(*value, 0) {
		return application.BatchItem{}, errors.New("value must be a finite number")
	}
	if *value < -monitoring.MaxAbsValue || *value > monitoring.MaxAbsValue {
		return application.BatchItem{}, errors.New("value outside allowed range")
	}
	if len(point) > maxPointNameLength {
		return application.BatchItem{}, errors.New("monitoringPoint too long")
	}
	if len(unit) > maxUnitLength {
		return application.BatchItem{}, errors.New("unit too long")
	}
	if quality != "" && !monitoring.Quality(quality).Valid() {
		return application.BatchItem{}, errors.New("unknown quality: " + quality)
	}
	if source != "" && !monitoring.Source(source).Valid() {
		return application.BatchItem{}, errors.New("unknown source: " + source)
	}
	return application.BatchItem{
		Timestamp:       parsed.UTC(),
		MetricType:      monitoring.MetricType(metricType),
		MonitoringPoint: point,
		Value:           *value,
		Unit:            unit,
		Quality:         monitoring.Quality(quality),
		Source:          monitoring.Source(source),
	}, nil
}
