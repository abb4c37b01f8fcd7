package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Arham21-pixel/MediTrack.AI/internal/ai"
	"github.com/Arham21-pixel/MediTrack.AI/internal/api/middleware"
	"github.com/Arham21-pixel/MediTrack.AI/internal/domain/report"
	"github.com/Arham21-pixel/MediTrack.AI/internal/events"
	infra "github.com/Arham21-pixel/MediTrack.AI/internal/infrastructure/postgres"
	"github.com/Arham21-pixel/MediTrack.AI/internal/infrastructure/redpanda"
	"github.com/Arham21-pixel/MediTrack.AI/internal/observability/metrics"
	"github.com/Arham21-pixel/MediTrack.AI/internal/ocr"
	"github.com/Arham21-pixel/MediTrack.AI/internal/storage"
)

// ReportHandler serves lab report upload, analysis and trend
// endpoints.
type ReportHandler struct {
	store     *storage.Store
	extractor ocr.Extractor
	analyzer  *ai.Client
	sink      EventSink
	metrics   *metrics.Metrics
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewReportHandler creates the handler. sink and m may be nil.
func NewReportHandler(store *storage.Store, extractor ocr.Extractor, analyzer *ai.Client, sink EventSink, m *metrics.Metrics, logger *zap.Logger) *ReportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportHandler{
		store:     store,
		extractor: extractor,
		analyzer:  analyzer,
		sink:      sink,
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer("report-handler"),
		now:       time.Now,
	}
}

// Routes returns the handler routes.
func (h *ReportHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Upload)
	r.Get("/", h.List)
	r.Get("/summary", h.Summary)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/trends", h.Trends)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/reanalyze", h.Reanalyze)
	return r
}

// Upload handles POST /reports: extract text, analyze lab values,
// classify risk, persist everything.
func (h *ReportHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "upload_report")
	defer span.End()

	data, contentType, err := readUpload(r)
	if err != nil || len(data) == 0 {
		jsonError(w, "missing or unreadable upload", http.StatusBadRequest)
		return
	}

	reportType := report.NormalizeType(r.URL.Query().Get("type"))
	span.SetAttributes(attribute.String("report_type", string(reportType)))

	extracted, err := h.extractor.Extract(ctx, data, contentType)
	if err != nil {
		h.logger.Error("text extraction failed", zap.Error(err))
		jsonError(w, "failed to extract text from document", http.StatusUnprocessableEntity)
		return
	}

	rec := &report.Report{
		ID:         uuid.New().String(),
		UserID:     middleware.GetUserID(ctx),
		Type:       reportType,
		OCRText:    extracted.Text,
		UploadedAt: h.now(),
	}
	mode := h.analyze(ctx, rec)
	span.SetAttributes(attribute.String("analysis_mode", mode))

	if err := h.store.Reports.Create(ctx, rec); err != nil {
		h.logger.Error("report create failed", zap.Error(err))
		jsonError(w, "failed to save report", http.StatusInternalServerError)
		return
	}
	h.emitIfCritical(ctx, rec)

	h.logger.Info("report ingested",
		zap.String("id", rec.ID),
		zap.String("report_type", string(rec.Type)),
		zap.String("risk_level", string(rec.RiskLevel)),
		zap.String("analysis_mode", mode),
		zap.String("request_id", middleware.GetRequestID(ctx)),
	)

	jsonResponse(w, http.StatusCreated, map[string]interface{}{
		"report":        rec,
		"analysis_mode": mode,
	})
}

// analyze runs the stored OCR text through the analyzer and folds the
// result into the report. The model's per-value status strings are
// normalized; anything unrecognized falls back to normal.
func (h *ReportHandler) analyze(ctx context.Context, rec *report.Report) string {
	analysis, mode := h.analyzer.AnalyzeReport(ctx, rec.OCRText, string(rec.Type))
	if h.metrics != nil {
		h.metrics.ReportsAnalyzed.WithLabelValues(mode).Inc()
	}

	rec.Summary = analysis.Summary
	rec.Findings = analysis.KeyFindings
	rec.Advice = analysis.Recommendations
	rec.FollowUp = analysis.FollowUpNeeded

	rec.RiskLevel = report.RiskLevel(analysis.RiskLevel)
	if !rec.RiskLevel.Valid() {
		rec.RiskLevel = report.RiskNormal
	}

	rec.LabValues = make(map[string]report.LabValue, len(analysis.LabValues))
	for name, v := range analysis.LabValues {
		status := report.RiskLevel(v.Status)
		if !status.Valid() {
			status = report.RiskNormal
		}
		rec.LabValues[name] = report.LabValue{
			Name:           name,
			Value:          v.Value,
			Unit:           v.Unit,
			NormalRange:    v.NormalRange,
			Status:         status,
			Interpretation: v.Interpretation,
		}
	}
	return mode
}

// emitIfCritical publishes a report.analyzed event for critical
// reports so the alert channel can notify the patient.
func (h *ReportHandler) emitIfCritical(ctx context.Context, rec *report.Report) {
	if h.sink == nil || rec.RiskLevel != report.RiskCritical {
		return
	}

	abnormal := rec.AbnormalValues()
	names := make([]string, 0, len(abnormal))
	for _, v := range abnormal {
		names = append(names, v.Name)
	}

	payload, _ := json.Marshal(events.ReportAnalyzed{
		ReportID:       rec.ID,
		UserID:         rec.UserID,
		ReportType:     string(rec.Type),
		RiskLevel:      string(rec.RiskLevel),
		Summary:        rec.Summary,
		AbnormalValues: names,
		AnalyzedAt:     h.now(),
	})

	err := h.sink.Append(ctx, &infra.OutboxEntry{
		EntityID:   rec.ID,
		EntityType: "report",
		EventType:  events.TypeReportAnalyzed,
		Payload:    payload,
		Topic:      redpanda.TopicSafetyAlerts,
		Key:        rec.UserID,
	})
	if err != nil {
		h.logger.Warn("failed to append report event", zap.String("report_id", rec.ID), zap.Error(err))
	}
}

// ownedReport loads a report owned by the caller. Foreign reports
// read as absent.
func (h *ReportHandler) ownedReport(r *http.Request, id string) (*report.Report, int, error) {
	ctx := r.Context()

	rec, err := h.store.Reports.GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, http.StatusNotFound, errors.New("report not found")
	}
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	if rec.UserID != middleware.GetUserID(ctx) {
		return nil, http.StatusNotFound, errors.New("report not found")
	}
	return rec, http.StatusOK, nil
}

// List handles GET /reports with optional type filter and pagination.
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	reports, err := h.store.Reports.GetByUserID(ctx, middleware.GetUserID(ctx))
	if err != nil {
		jsonError(w, "failed to list reports", http.StatusInternalServerError)
		return
	}

	if t := r.URL.Query().Get("type"); t != "" {
		want := report.NormalizeType(t)
		filtered := reports[:0]
		for _, rec := range reports {
			if rec.Type == want {
				filtered = append(filtered, rec)
			}
		}
		reports = filtered
	}

	page := positiveIntOr(r.URL.Query().Get("page"), 1)
	perPage := positiveIntOr(r.URL.Query().Get("per_page"), 10)
	total := len(reports)

	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"reports":  reports[start:end],
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}

// Summary handles GET /reports/summary: counts by type and risk plus
// the most recent report.
func (h *ReportHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	reports, err := h.store.Reports.GetByUserID(ctx, middleware.GetUserID(ctx))
	if err != nil {
		jsonError(w, "failed to load reports", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, http.StatusOK, report.Summarize(reports))
}

func positiveIntOr(value string, fallback int) int {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

// Get handles GET /reports/{id}.
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, code, err := h.ownedReport(r, chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, err.Error(), code)
		return
	}
	jsonResponse(w, http.StatusOK, rec)
}

// Trends handles GET /reports/{id}/trends?lab_value=: the named lab
// value tracked across all of the user's reports of the same type.
func (h *ReportHandler) Trends(w http.ResponseWriter, r *http.Request) {
	rec, code, err := h.ownedReport(r, chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, err.Error(), code)
		return
	}

	name := r.URL.Query().Get("lab_value")
	if name == "" {
		jsonError(w, "lab_value query parameter is required", http.StatusBadRequest)
		return
	}

	all, err := h.store.Reports.GetByUserID(r.Context(), rec.UserID)
	if err != nil {
		jsonError(w, "failed to load reports", http.StatusInternalServerError)
		return
	}

	sameType := all[:0]
	for _, other := range all {
		if other.Type == rec.Type {
			sameType = append(sameType, other)
		}
	}

	jsonResponse(w, http.StatusOK, report.BuildTrend(name, sameType))
}

// UpdateReportRequest carries mutable report fields.
type UpdateReportRequest struct {
	Type      *string `json:"report_type,omitempty"`
	Summary   *string `json:"ai_summary,omitempty"`
	RiskLevel *string `json:"risk_level,omitempty"`
}

// Update handles PUT /reports/{id}.
func (h *ReportHandler) Update(w http.ResponseWriter, r *http.Request) {
	rec, code, err := h.ownedReport(r, chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, err.Error(), code)
		return
	}

	var req UpdateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Type != nil {
		rec.Type = report.NormalizeType(*req.Type)
	}
	if req.Summary != nil {
		rec.Summary = *req.Summary
	}
	if req.RiskLevel != nil {
		level := report.RiskLevel(*req.RiskLevel)
		if !level.Valid() {
			jsonError(w, "invalid risk level", http.StatusBadRequest)
			return
		}
		rec.RiskLevel = level
	}

	if err := h.store.Reports.Update(r.Context(), rec); err != nil {
		jsonError(w, "failed to update report", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, http.StatusOK, rec)
}

// Delete handles DELETE /reports/{id}.
func (h *ReportHandler) Delete(w http.ResponseWriter, r *http.Request) {
	rec, code, err := h.ownedReport(r, chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, err.Error(), code)
		return
	}

	if err := h.store.Reports.Delete(r.Context(), rec.ID); err != nil {
		jsonError(w, "failed to delete report", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{"deleted": rec.ID})
}

// Reanalyze handles POST /reports/{id}/reanalyze: re-runs analysis on
// the stored report text.
func (h *ReportHandler) Reanalyze(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "reanalyze_report")
	defer span.End()
	r = r.WithContext(ctx)

	rec, code, err := h.ownedReport(r, chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, err.Error(), code)
		return
	}
	if rec.OCRText == "" {
		jsonError(w, "no stored text to reanalyze", http.StatusConflict)
		return
	}

	mode := h.analyze(ctx, rec)
	span.SetAttributes(attribute.String("analysis_mode", mode))

	if err := h.store.Reports.Update(ctx, rec); err != nil {
		jsonError(w, "failed to update report", http.StatusInternalServerError)
		return
	}
	h.emitIfCritical(ctx, rec)

	h.logger.Info("report reanalyzed",
		zap.String("id", rec.ID),
		zap.String("risk_level", string(rec.RiskLevel)))

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"report":        rec,
		"analysis_mode": mode,
	})
}
