package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Arham21-pixel/MediTrack.AI/internal/api/middleware"
	"github.com/Arham21-pixel/MediTrack.AI/internal/domain/medicine"
	"github.com/Arham21-pixel/MediTrack.AI/internal/events"
	infra "github.com/Arham21-pixel/MediTrack.AI/internal/infrastructure/postgres"
	"github.com/Arham21-pixel/MediTrack.AI/internal/infrastructure/redpanda"
	"github.com/Arham21-pixel/MediTrack.AI/internal/observability/metrics"
	"github.com/Arham21-pixel/MediTrack.AI/internal/storage"
	"github.com/Arham21-pixel/MediTrack.AI/pkg/idempotency"
)

// MedicineHandler serves medicine, schedule, dose-log and adherence
// endpoints.
type MedicineHandler struct {
	store   *storage.Store
	sink    EventSink
	dedup   Deduper
	metrics *metrics.Metrics
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewMedicineHandler creates the handler. sink, dedup and m may be nil.
func NewMedicineHandler(store *storage.Store, sink EventSink, dedup Deduper, m *metrics.Metrics, logger *zap.Logger) *MedicineHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MedicineHandler{
		store:   store,
		sink:    sink,
		dedup:   dedup,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("medicine-handler"),
		now:     time.Now,
	}
}

// Routes returns the handler routes.
func (h *MedicineHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/schedule", h.Schedule)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Get("/{id}/logs", h.Logs)
	r.Get("/{id}/adherence", h.Adherence)
	r.Post("/{id}/taken", h.MarkTaken)
	r.Post("/{id}/missed", h.MarkMissed)
	return r
}

// MedicineView is a medicine plus its derived fields.
type MedicineView struct {
	medicine.Medicine
	IsActive      bool `json:"is_active"`
	DaysRemaining *int `json:"days_remaining,omitempty"`
}

func (h *MedicineHandler) view(m *medicine.Medicine, now time.Time) MedicineView {
	return MedicineView{
		Medicine:      *m,
		IsActive:      m.IsActiveOn(now),
		DaysRemaining: m.DaysRemaining(now),
	}
}

// userMedicines loads every medicine across the user's prescriptions.
func (h *MedicineHandler) userMedicines(r *http.Request) ([]*medicine.Medicine, error) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	prescriptions, err := h.store.Prescriptions.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	var out []*medicine.Medicine
	for _, p := range prescriptions {
		meds, err := h.store.Medicines.GetByPrescriptionID(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, meds...)
	}
	return out, nil
}

// ownedMedicine loads a medicine and verifies it belongs to the
// authenticated user through its owning prescription.
func (h *MedicineHandler) ownedMedicine(r *http.Request, id string) (*medicine.Medicine, int, error) {
	ctx := r.Context()

	m, err := h.store.Medicines.GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, http.StatusNotFound, errors.New("medicine not found")
	}
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}

	p, err := h.store.Prescriptions.GetByID(ctx, m.PrescriptionID)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	if p.UserID != middleware.GetUserID(ctx) {
		// Do not reveal existence of other users' records.
		return nil, http.StatusNotFound, errors.New("medicine not found")
	}
	return m, http.StatusOK, nil
}

// List handles GET /medicines?active_only=true.
func (h *MedicineHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "list_medicines")
	defer span.End()
	r = r.WithContext(ctx)

	meds, err := h.userMedicines(r)
	if err != nil {
		h.logger.Error("medicine list failed", zap.Error(err))
		jsonError(w, "failed to list medicines", http.StatusInternalServerError)
		return
	}

	now := h.now()
	activeOnly := r.URL.Query().Get("active_only") == "true"

	views := make([]MedicineView, 0, len(meds))
	for _, m := range meds {
		if activeOnly && !m.IsActiveOn(now) {
			continue
		}
		views = append(views, h.view(m, now))
	}

	span.SetAttributes(attribute.Int("medicines", len(views)))
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"medicines": views,
		"count":     len(views),
	})
}

// Get handles GET /medicines/{id}.
func (h *MedicineHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, code, err := h.ownedMedicine(r, chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, err.Error(), code)
		return
	}
	jsonResponse(w, http.StatusOK, h.view(m, h.now()))
}

// UpdateMedicineRequest carries the mutable fields; nil pointers leave
// the stored value unchanged.
type UpdateMedicineRequest struct {
	Name         *string   `json:"name,omitempty"`
	Dosage       *string   `json:"dosage,omitempty"`
	Frequency    *string   `json:"frequency,omitempty"`
	Timing       *[]string `json:"timing,omitempty"`
	DurationDays *int      `json:"duration_days,omitempty"`
	StartDate    *string   `json:"start_date,omitempty"`
	EndDate      *string   `json:"end_date,omitempty"`
	Instructions *string   `json:"instructions,omitempty"`
}

// Update handles PUT /medicines/{id}.
func (h *MedicineHandler) Update(w http.ResponseWriter, r *http.Request) {
	m, code, err := h.ownedMedicine(r, chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, err.Error(), code)
		return
	}

	var req UpdateMedicineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Name != nil {
		m.Name = *req.Name
	}
	if req.Dosage != nil {
		m.Dosage = *req.Dosage
	}
	if req.Frequency != nil {
		m.Frequency = *req.Frequency
	}
	if req.Timing != nil {
		m.Timing = *req.Timing
	}
	if req.DurationDays != nil {
		m.DurationDays = req.DurationDays
	}
	if req.Instructions != nil {
		m.Instructions = *req.Instructions
	}
	if req.StartDate != nil {
		d, err := time.Parse(dateLayout, *req.StartDate)
		if err != nil {
			jsonError(w, "invalid start_date", http.StatusBadRequest)
			return
		}
		m.StartDate = &d
	}
	if req.EndDate != nil {
		d, err := time.Parse(dateLayout, *req.EndDate)
		if err != nil {
			jsonError(w, "invalid end_date", http.StatusBadRequest)
			return
		}
		m.EndDate = &d
	}
	// A duration change without an explicit end date recomputes it.
	if req.DurationDays != nil && req.EndDate == nil {
		m.EndDate = medicine.EndDateFromDuration(m.StartDate, m.DurationDays)
	}

	if err := h.store.Medicines.Update(r.Context(), m); err != nil {
		h.logger.Error("medicine update failed", zap.String("id", m.ID), zap.Error(err))
		jsonError(w, "failed to update medicine", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, http.StatusOK, h.view(m, h.now()))
}

// Delete handles DELETE /medicines/{id}; dose logs cascade.
func (h *MedicineHandler) Delete(w http.ResponseWriter, r *http.Request) {
	m, code, err := h.ownedMedicine(r, chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, err.Error(), code)
		return
	}

	if err := h.store.Medicines.Delete(r.Context(), m.ID); err != nil {
		h.logger.Error("medicine delete failed", zap.String("id", m.ID), zap.Error(err))
		jsonError(w, "failed to delete medicine", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"deleted": m.ID})
}

// Logs handles GET /medicines/{id}/logs.
func (h *MedicineHandler) Logs(w http.ResponseWriter, r *http.Request) {
	m, code, err := h.ownedMedicine(r, chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, err.Error(), code)
		return
	}

	logs, err := h.store.Logs.GetByMedicineID(r.Context(), m.ID)
	if err != nil {
		jsonError(w, "failed to list logs", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
	})
}

// Adherence handles GET /medicines/{id}/adherence?days=30.
func (h *MedicineHandler) Adherence(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "adherence_report")
	defer span.End()
	r = r.WithContext(ctx)

	m, code, err := h.ownedMedicine(r, chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, err.Error(), code)
		return
	}

	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}

	logs, err := h.store.Logs.GetByMedicineID(r.Context(), m.ID)
	if err != nil {
		jsonError(w, "failed to load logs", http.StatusInternalServerError)
		return
	}

	now := h.now()
	stats := medicine.ComputeAdherence(logs, now.AddDate(0, 0, -days), now)
	if h.metrics != nil {
		h.metrics.AdherenceComputed.Inc()
	}
	span.SetAttributes(
		attribute.Int("window_days", days),
		attribute.Int("doses", stats.TotalDoses),
	)
	jsonResponse(w, http.StatusOK, stats)
}

// Schedule handles GET /medicines/schedule?date=YYYY-MM-DD.
func (h *MedicineHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "build_schedule")
	defer span.End()
	r = r.WithContext(ctx)

	meds, err := h.userMedicines(r)
	if err != nil {
		jsonError(w, "failed to load medicines", http.StatusInternalServerError)
		return
	}

	now := h.now()
	targetDate := parseDateOr(r.URL.Query().Get("date"), now)

	logsByMedicine := make(map[string][]*medicine.Log, len(meds))
	for _, m := range meds {
		logs, err := h.store.Logs.GetByMedicineID(r.Context(), m.ID)
		if err != nil {
			jsonError(w, "failed to load logs", http.StatusInternalServerError)
			return
		}
		logsByMedicine[m.ID] = logs
	}

	items := medicine.BuildDaySchedule(meds, logsByMedicine, targetDate, now)
	summary := medicine.Summarize(items)
	if h.metrics != nil {
		h.metrics.SchedulesBuilt.Inc()
	}
	span.SetAttributes(attribute.Int("slots", len(items)))

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"date":     targetDate.Format(dateLayout),
		"schedule": items,
		"summary":  summary,
	})
}

// DoseLogRequest selects the schedule slot being logged. An empty body
// defaults to the medicine's first timing slot today.
type DoseLogRequest struct {
	Timing string `json:"timing,omitempty"`
	Date   string `json:"date,omitempty"`
}

// MarkTaken handles POST /medicines/{id}/taken.
func (h *MedicineHandler) MarkTaken(w http.ResponseWriter, r *http.Request) {
	h.logDose(w, r, medicine.StatusTaken)
}

// MarkMissed handles POST /medicines/{id}/missed.
func (h *MedicineHandler) MarkMissed(w http.ResponseWriter, r *http.Request) {
	h.logDose(w, r, medicine.StatusMissed)
}

func (h *MedicineHandler) logDose(w http.ResponseWriter, r *http.Request, status medicine.Status) {
	ctx, span := h.tracer.Start(r.Context(), "log_dose",
		trace.WithAttributes(attribute.String("status", string(status))))
	defer span.End()
	r = r.WithContext(ctx)

	m, code, err := h.ownedMedicine(r, chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, err.Error(), code)
		return
	}

	var req DoseLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	timing := req.Timing
	if timing == "" {
		if len(m.Timing) > 0 {
			timing = m.Timing[0]
		} else {
			timing = medicine.DefaultTiming
		}
	}

	now := h.now()
	day := parseDateOr(req.Date, now)
	slot := time.Date(day.Year(), day.Month(), day.Day(),
		medicine.HourFor(timing), 0, 0, 0, now.Location())

	entry := &medicine.Log{
		ID:            uuid.New().String(),
		MedicineID:    m.ID,
		ScheduledTime: slot,
		Timing:        timing,
		Status:        status,
		CreatedAt:     now,
	}
	if status == medicine.StatusTaken {
		t := now
		entry.TakenAt = &t
	}

	payload, _ := json.Marshal(entry)
	key := idempotency.GenerateKey(m.ID, timing, slot)
	span.SetAttributes(attribute.String("idempotency_key", key))

	record := func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		if err := h.store.Logs.Create(ctx, entry); err != nil {
			return nil, err
		}
		h.emitDoseLogged(ctx, m, entry)
		return raw, nil
	}

	duplicate := false
	if h.dedup != nil {
		result, err := h.dedup.Process(r.Context(), key, "log_dose", payload, record)
		if err != nil {
			h.logger.Error("dose log failed", zap.String("medicine_id", m.ID), zap.Error(err))
			jsonError(w, "failed to record dose", http.StatusInternalServerError)
			return
		}
		duplicate = !result.IsNew
		if duplicate && len(result.Result) > 0 {
			// Echo the log recorded by the first attempt, not the
			// unsaved one built for this request.
			var stored medicine.Log
			if err := json.Unmarshal(result.Result, &stored); err == nil {
				entry = &stored
			}
		}
	} else {
		if _, err := record(r.Context(), payload); err != nil {
			h.logger.Error("dose log failed", zap.String("medicine_id", m.ID), zap.Error(err))
			jsonError(w, "failed to record dose", http.StatusInternalServerError)
			return
		}
	}

	if h.metrics != nil && !duplicate {
		h.metrics.DosesLogged.WithLabelValues(string(status)).Inc()
	}

	jsonResponse(w, http.StatusCreated, map[string]interface{}{
		"log":       entry,
		"duplicate": duplicate,
	})
}

func (h *MedicineHandler) emitDoseLogged(ctx context.Context, m *medicine.Medicine, entry *medicine.Log) {
	if h.sink == nil {
		return
	}

	ev := events.DoseLogged{
		LogID:         entry.ID,
		MedicineID:    m.ID,
		MedicineName:  m.Name,
		Timing:        entry.Timing,
		Status:        string(entry.Status),
		ScheduledTime: entry.ScheduledTime,
		LoggedAt:      entry.CreatedAt,
	}
	payload, _ := json.Marshal(ev)

	err := h.sink.Append(ctx, &infra.OutboxEntry{
		EntityID:   m.ID,
		EntityType: "medicine",
		EventType:  events.TypeDoseLogged,
		Payload:    payload,
		Topic:      redpanda.TopicAdherenceEvents,
		Key:        m.ID,
	})
	if err != nil {
		// The log row is already committed; losing the event only
		// delays downstream aggregation.
		h.logger.Warn("failed to append dose event", zap.String("medicine_id", m.ID), zap.Error(err))
	}
}
