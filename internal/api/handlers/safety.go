package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Arham21-pixel/MediTrack.AI/internal/api/middleware"
	"github.com/Arham21-pixel/MediTrack.AI/internal/domain/safety"
	"github.com/Arham21-pixel/MediTrack.AI/internal/events"
	infra "github.com/Arham21-pixel/MediTrack.AI/internal/infrastructure/postgres"
	"github.com/Arham21-pixel/MediTrack.AI/internal/infrastructure/redpanda"
	"github.com/Arham21-pixel/MediTrack.AI/internal/observability/metrics"
	"github.com/Arham21-pixel/MediTrack.AI/internal/storage"
)

// SafetyHandler serves the drug-interaction check endpoint.
type SafetyHandler struct {
	engine  *safety.Engine
	store   *storage.Store
	sink    EventSink
	metrics *metrics.Metrics
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewSafetyHandler creates the handler. store enables the
// include_current option; sink and m may be nil.
func NewSafetyHandler(engine *safety.Engine, store *storage.Store, sink EventSink, m *metrics.Metrics, logger *zap.Logger) *SafetyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SafetyHandler{
		engine:  engine,
		store:   store,
		sink:    sink,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("safety-handler"),
		now:     time.Now,
	}
}

// Routes returns the handler routes.
func (h *SafetyHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/check", h.Check)
	return r
}

// CheckRequest is the interaction check request. With IncludeCurrent
// set, the user's active medicines are added to the existing list.
type CheckRequest struct {
	NewMedications      []safety.MedicationRef `json:"new_medications"`
	ExistingMedications []safety.MedicationRef `json:"existing_medications"`
	IncludeCurrent      bool                   `json:"include_current,omitempty"`
}

// Check handles POST /safety/check.
func (h *SafetyHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "interaction_check")
	defer span.End()

	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	existing := req.ExistingMedications
	if req.IncludeCurrent && h.store != nil {
		current, err := h.activeMedicationRefs(ctx, middleware.GetUserID(ctx))
		if err != nil {
			h.logger.Error("failed to load current medicines", zap.Error(err))
			jsonError(w, "failed to load current medicines", http.StatusInternalServerError)
			return
		}
		existing = append(existing, current...)
	}

	alert := h.engine.Check(ctx, req.NewMedications, existing)

	failSafe := alert.ConfidenceScore == 0.0 && alert.ConsultDoctor
	if h.metrics != nil {
		h.metrics.SafetyChecks.WithLabelValues(string(alert.SafetyLevel)).Inc()
		if failSafe {
			h.metrics.SafetyFallbacks.Inc()
		}
	}
	span.SetAttributes(
		attribute.String("safety_level", string(alert.SafetyLevel)),
		attribute.Bool("fail_safe", failSafe),
	)

	if alert.SafetyLevel.RequiresImmediateAction() || failSafe {
		h.emitAlert(ctx, middleware.GetUserID(ctx), alert, failSafe)
	}

	jsonResponse(w, http.StatusOK, alert)
}

// activeMedicationRefs collects the user's active medicines as
// classifier references.
func (h *SafetyHandler) activeMedicationRefs(ctx context.Context, userID string) ([]safety.MedicationRef, error) {
	prescriptions, err := h.store.Prescriptions.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := h.now()
	var refs []safety.MedicationRef
	for _, p := range prescriptions {
		meds, err := h.store.Medicines.GetByPrescriptionID(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		for _, m := range meds {
			if m.IsActiveOn(now) {
				refs = append(refs, safety.MedicationRef{Name: m.Name, Dosage: m.Dosage})
			}
		}
	}
	return refs, nil
}

func (h *SafetyHandler) emitAlert(ctx context.Context, userID string, alert *safety.Alert, failSafe bool) {
	if h.sink == nil {
		return
	}

	payload, _ := json.Marshal(events.SafetyAlertRaised{
		UserID:         userID,
		SafetyLevel:    string(alert.SafetyLevel),
		FailSafe:       failSafe,
		Recommendation: alert.Recommendation,
		CheckedAt:      alert.CheckedAt,
	})

	err := h.sink.Append(ctx, &infra.OutboxEntry{
		EntityID:   userID,
		EntityType: "user",
		EventType:  events.TypeSafetyAlertRaised,
		Payload:    payload,
		Topic:      redpanda.TopicSafetyAlerts,
		Key:        userID,
	})
	if err != nil {
		h.logger.Warn("failed to append safety alert event", zap.Error(err))
	}
}
