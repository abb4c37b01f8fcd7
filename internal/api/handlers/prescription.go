package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Arham21-pixel/MediTrack.AI/internal/ai"
	"github.com/Arham21-pixel/MediTrack.AI/internal/api/middleware"
	"github.com/Arham21-pixel/MediTrack.AI/internal/domain/medicine"
	"github.com/Arham21-pixel/MediTrack.AI/internal/domain/prescription"
	"github.com/Arham21-pixel/MediTrack.AI/internal/events"
	infra "github.com/Arham21-pixel/MediTrack.AI/internal/infrastructure/postgres"
	"github.com/Arham21-pixel/MediTrack.AI/internal/infrastructure/redpanda"
	"github.com/Arham21-pixel/MediTrack.AI/internal/observability/metrics"
	"github.com/Arham21-pixel/MediTrack.AI/internal/ocr"
	"github.com/Arham21-pixel/MediTrack.AI/internal/storage"
)

// maxUploadBytes caps prescription uploads at 10MB.
const maxUploadBytes = 10 << 20

// ParsedData is the persisted parse record on a prescription. Keeping
// the OCR text allows reprocessing without re-uploading the document.
type ParsedData struct {
	OCRText       string                 `json:"ocr_text,omitempty"`
	OCRConfidence float64                `json:"ocr_confidence,omitempty"`
	ParseMode     string                 `json:"parse_mode,omitempty"`
	Parsed        *ai.ParsedPrescription `json:"parsed,omitempty"`
}

// PrescriptionHandler serves prescription ingestion endpoints.
type PrescriptionHandler struct {
	store     *storage.Store
	extractor ocr.Extractor
	parser    *ai.Client
	sink      EventSink
	metrics   *metrics.Metrics
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewPrescriptionHandler creates the handler. sink and m may be nil.
func NewPrescriptionHandler(store *storage.Store, extractor ocr.Extractor, parser *ai.Client, sink EventSink, m *metrics.Metrics, logger *zap.Logger) *PrescriptionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrescriptionHandler{
		store:     store,
		extractor: extractor,
		parser:    parser,
		sink:      sink,
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer("prescription-handler"),
		now:       time.Now,
	}
}

// Routes returns the handler routes.
func (h *PrescriptionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Upload)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/reprocess", h.Reprocess)
	return r
}

// readUpload pulls the document bytes from a multipart "file" field or
// the raw request body.
func readUpload(r *http.Request) ([]byte, string, error) {
	contentType := r.Header.Get("Content-Type")

	if err := r.ParseMultipartForm(maxUploadBytes); err == nil {
		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()
			data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
			if err != nil {
				return nil, "", err
			}
			return data, header.Header.Get("Content-Type"), nil
		}
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}

// Upload handles POST /prescriptions: extract text, parse medicines,
// persist everything.
func (h *PrescriptionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "upload_prescription")
	defer span.End()

	data, contentType, err := readUpload(r)
	if err != nil || len(data) == 0 {
		jsonError(w, "missing or unreadable upload", http.StatusBadRequest)
		return
	}

	extracted, err := h.extractor.Extract(ctx, data, contentType)
	if err != nil {
		h.logger.Error("text extraction failed", zap.Error(err))
		jsonError(w, "failed to extract text from document", http.StatusUnprocessableEntity)
		return
	}
	span.SetAttributes(attribute.Float64("ocr_confidence", extracted.Confidence))

	parsed, mode := h.parser.ParsePrescription(ctx, extracted.Text)
	if h.metrics != nil {
		h.metrics.PrescriptionsParsed.WithLabelValues(mode).Inc()
	}
	span.SetAttributes(
		attribute.String("parse_mode", mode),
		attribute.Int("medicines", len(parsed.Medicines)),
	)

	now := h.now()
	p := &prescription.Prescription{
		ID:         uuid.New().String(),
		UserID:     middleware.GetUserID(ctx),
		DoctorName: parsed.DoctorName,
		UploadedAt: now,
	}
	p.ParsedData, _ = json.Marshal(ParsedData{
		OCRText:       extracted.Text,
		OCRConfidence: extracted.Confidence,
		ParseMode:     mode,
		Parsed:        parsed,
	})

	if err := h.store.Prescriptions.Create(ctx, p); err != nil {
		h.logger.Error("prescription create failed", zap.Error(err))
		jsonError(w, "failed to save prescription", http.StatusInternalServerError)
		return
	}

	meds, err := h.createMedicines(ctx, p.ID, parsed.Medicines, now)
	if err != nil {
		h.logger.Error("medicine creation failed", zap.String("prescription_id", p.ID), zap.Error(err))
		jsonError(w, "failed to save medicines", http.StatusInternalServerError)
		return
	}

	h.logger.Info("prescription ingested",
		zap.String("id", p.ID),
		zap.String("parse_mode", mode),
		zap.Int("medicines", len(meds)),
		zap.String("request_id", middleware.GetRequestID(ctx)),
	)

	jsonResponse(w, http.StatusCreated, map[string]interface{}{
		"prescription": p,
		"medicines":    meds,
		"parse_mode":   mode,
	})
}

// createMedicines materializes parsed medicines as records starting
// today; the end date derives from the parsed duration.
func (h *PrescriptionHandler) createMedicines(ctx context.Context, prescriptionID string, parsed []ai.ParsedMedicine, now time.Time) ([]*medicine.Medicine, error) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	out := make([]*medicine.Medicine, 0, len(parsed))
	for _, pm := range parsed {
		if pm.Name == "" {
			continue
		}
		m := &medicine.Medicine{
			ID:             uuid.New().String(),
			PrescriptionID: prescriptionID,
			Name:           pm.Name,
			Dosage:         pm.Dosage,
			Frequency:      pm.Frequency,
			Timing:         pm.Timing,
			DurationDays:   pm.DurationDays,
			StartDate:      &start,
			Instructions:   pm.Instructions,
		}
		m.EndDate = medicine.EndDateFromDuration(m.StartDate, m.DurationDays)

		if err := h.store.Medicines.Create(ctx, m); err != nil {
			return nil, err
		}
		h.emitMedicineRegistered(ctx, m)
		out = append(out, m)
	}
	return out, nil
}

func (h *PrescriptionHandler) emitMedicineRegistered(ctx context.Context, m *medicine.Medicine) {
	if h.sink == nil {
		return
	}

	payload, _ := json.Marshal(events.MedicineRegistered{
		MedicineID:     m.ID,
		PrescriptionID: m.PrescriptionID,
		Name:           m.Name,
		StartDate:      m.StartDate,
		EndDate:        m.EndDate,
	})

	err := h.sink.Append(ctx, &infra.OutboxEntry{
		EntityID:   m.ID,
		EntityType: "medicine",
		EventType:  events.TypeMedicineRegistered,
		Payload:    payload,
		Topic:      redpanda.TopicAdherenceEvents,
		Key:        m.ID,
	})
	if err != nil {
		h.logger.Warn("failed to append medicine event", zap.String("medicine_id", m.ID), zap.Error(err))
	}
}

// ownedPrescription loads a prescription owned by the caller.
func (h *PrescriptionHandler) ownedPrescription(r *http.Request, id string) (*prescription.Prescription, int, error) {
	ctx := r.Context()

	p, err := h.store.Prescriptions.GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, http.StatusNotFound, errors.New("prescription not found")
	}
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	if p.UserID != middleware.GetUserID(ctx) {
		return nil, http.StatusNotFound, errors.New("prescription not found")
	}
	return p, http.StatusOK, nil
}

// List handles GET /prescriptions.
func (h *PrescriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	prescriptions, err := h.store.Prescriptions.GetByUserID(ctx, middleware.GetUserID(ctx))
	if err != nil {
		jsonError(w, "failed to list prescriptions", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"prescriptions": prescriptions,
		"count":         len(prescriptions),
	})
}

// Get handles GET /prescriptions/{id}, including owned medicines.
func (h *PrescriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, code, err := h.ownedPrescription(r, chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, err.Error(), code)
		return
	}

	meds, err := h.store.Medicines.GetByPrescriptionID(r.Context(), p.ID)
	if err != nil {
		jsonError(w, "failed to load medicines", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"prescription": p,
		"medicines":    meds,
	})
}

// UpdatePrescriptionRequest carries mutable prescription fields.
type UpdatePrescriptionRequest struct {
	DoctorName *string `json:"doctor_name,omitempty"`
	FileURL    *string `json:"file_url,omitempty"`
}

// Update handles PUT /prescriptions/{id}.
func (h *PrescriptionHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, code, err := h.ownedPrescription(r, chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, err.Error(), code)
		return
	}

	var req UpdatePrescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.DoctorName != nil {
		p.DoctorName = *req.DoctorName
	}
	if req.FileURL != nil {
		p.FileURL = *req.FileURL
	}

	if err := h.store.Prescriptions.Update(r.Context(), p); err != nil {
		jsonError(w, "failed to update prescription", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

// Delete handles DELETE /prescriptions/{id}. Medicines and their logs
// go with it.
func (h *PrescriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, code, err := h.ownedPrescription(r, chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, err.Error(), code)
		return
	}
	ctx := r.Context()

	meds, err := h.store.Medicines.GetByPrescriptionID(ctx, p.ID)
	if err != nil {
		jsonError(w, "failed to load medicines", http.StatusInternalServerError)
		return
	}
	for _, m := range meds {
		if err := h.store.Medicines.Delete(ctx, m.ID); err != nil {
			jsonError(w, "failed to delete medicines", http.StatusInternalServerError)
			return
		}
	}

	if err := h.store.Prescriptions.Delete(ctx, p.ID); err != nil {
		jsonError(w, "failed to delete prescription", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"deleted":           p.ID,
		"medicines_removed": len(meds),
	})
}

// Reprocess handles POST /prescriptions/{id}/reprocess: re-parses the
// stored OCR text and replaces the medicine set.
func (h *PrescriptionHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "reprocess_prescription")
	defer span.End()
	r = r.WithContext(ctx)

	p, code, err := h.ownedPrescription(r, chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, err.Error(), code)
		return
	}

	var stored ParsedData
	if err := json.Unmarshal(p.ParsedData, &stored); err != nil || stored.OCRText == "" {
		jsonError(w, "no stored text to reprocess", http.StatusConflict)
		return
	}

	parsed, mode := h.parser.ParsePrescription(ctx, stored.OCRText)
	if h.metrics != nil {
		h.metrics.PrescriptionsParsed.WithLabelValues(mode).Inc()
	}
	span.SetAttributes(attribute.String("parse_mode", mode))

	old, err := h.store.Medicines.GetByPrescriptionID(ctx, p.ID)
	if err != nil {
		jsonError(w, "failed to load medicines", http.StatusInternalServerError)
		return
	}
	for _, m := range old {
		if err := h.store.Medicines.Delete(ctx, m.ID); err != nil {
			jsonError(w, "failed to replace medicines", http.StatusInternalServerError)
			return
		}
	}

	now := h.now()
	meds, err := h.createMedicines(ctx, p.ID, parsed.Medicines, now)
	if err != nil {
		jsonError(w, "failed to save medicines", http.StatusInternalServerError)
		return
	}

	stored.Parsed = parsed
	stored.ParseMode = mode
	p.ParsedData, _ = json.Marshal(stored)
	p.DoctorName = parsed.DoctorName
	if err := h.store.Prescriptions.Update(ctx, p); err != nil {
		jsonError(w, "failed to update prescription", http.StatusInternalServerError)
		return
	}

	h.logger.Info("prescription reprocessed",
		zap.String("id", p.ID),
		zap.Int("medicines", len(meds)))

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"prescription": p,
		"medicines":    meds,
		"parse_mode":   mode,
	})
}
