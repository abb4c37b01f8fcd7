package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Arham21-pixel/MediTrack.AI/internal/domain/safety"
	"github.com/Arham21-pixel/MediTrack.AI/internal/storage/memory"
)

// scriptedClassifier returns a canned verdict and records the lists it
// was asked to check.
type scriptedClassifier struct {
	calls    int
	existing []safety.MedicationRef
	alert    *safety.Alert
	err      error
}

func (c *scriptedClassifier) Classify(_ context.Context, _, existing []safety.MedicationRef) (*safety.Alert, error) {
	c.calls++
	c.existing = existing
	return c.alert, c.err
}

func safeVerdict() *safety.Alert {
	return &safety.Alert{
		SafetyLevel:     safety.LevelSafe,
		Interactions:    []safety.Interaction{},
		SafeMedicines:   []string{},
		Recommendation:  "No interactions found.",
		ConfidenceScore: 0.9,
	}
}

func postCheck(t *testing.T, h *SafetyHandler, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/check", strings.NewReader(body))
	asUser(user, h.Routes()).ServeHTTP(rec, req)
	return rec
}

func TestSafetyCheckSafeVerdict(t *testing.T) {
	classifier := &scriptedClassifier{alert: safeVerdict()}
	engine := safety.New(classifier, nil, safety.DefaultConfig(), nil)
	sink := &fakeSink{}
	h := NewSafetyHandler(engine, nil, sink, nil, nil)

	rec := postCheck(t, h, "u1", `{"new_medications":[{"name":"Paracetamol"}],"existing_medications":[{"name":"Cetirizine"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var alert safety.Alert
	if err := json.Unmarshal(rec.Body.Bytes(), &alert); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if alert.SafetyLevel != safety.LevelSafe {
		t.Errorf("level = %s", alert.SafetyLevel)
	}
	if len(sink.entries) != 0 {
		t.Errorf("SAFE verdict should not raise an alert event, got %d", len(sink.entries))
	}
}

func TestSafetyCheckFailureEmitsFailSafeAlert(t *testing.T) {
	classifier := &scriptedClassifier{err: errors.New("model down")}
	engine := safety.New(classifier, nil, safety.DefaultConfig(), nil)
	sink := &fakeSink{}
	h := NewSafetyHandler(engine, nil, sink, nil, nil)

	rec := postCheck(t, h, "u1", `{"new_medications":[{"name":"Warfarin"}],"existing_medications":[{"name":"Aspirin"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("fail-safe must still answer 200, got %d", rec.Code)
	}

	var alert safety.Alert
	json.Unmarshal(rec.Body.Bytes(), &alert)
	if alert.SafetyLevel != safety.LevelCaution || !alert.ConsultDoctor || alert.ConfidenceScore != 0.0 {
		t.Errorf("verdict = %+v, want fail-safe CAUTION", alert)
	}

	if len(sink.entries) != 1 {
		t.Fatalf("fail-safe should raise an alert event, got %d", len(sink.entries))
	}
	var ev struct {
		FailSafe bool   `json:"fail_safe"`
		UserID   string `json:"user_id"`
	}
	json.Unmarshal(sink.entries[0].Payload, &ev)
	if !ev.FailSafe || ev.UserID != "u1" {
		t.Errorf("event = %+v", ev)
	}
}

func TestSafetyCheckCriticalEmitsAlert(t *testing.T) {
	critical := safeVerdict()
	critical.SafetyLevel = safety.LevelCritical
	critical.HasCriticalInteractions = true
	critical.ConsultDoctor = true

	classifier := &scriptedClassifier{alert: critical}
	engine := safety.New(classifier, nil, safety.DefaultConfig(), nil)
	sink := &fakeSink{}
	h := NewSafetyHandler(engine, nil, sink, nil, nil)

	postCheck(t, h, "u1", `{"new_medications":[{"name":"Warfarin"}],"existing_medications":[{"name":"Aspirin"}]}`)
	if len(sink.entries) != 1 {
		t.Errorf("CRITICAL verdict should raise an alert event, got %d", len(sink.entries))
	}
}

func TestSafetyCheckIncludeCurrent(t *testing.T) {
	store := memory.NewStore()
	seedMedicine(t, store, "u1")

	classifier := &scriptedClassifier{alert: safeVerdict()}
	engine := safety.New(classifier, nil, safety.DefaultConfig(), nil)
	h := NewSafetyHandler(engine, store, nil, nil, nil)

	rec := postCheck(t, h, "u1", `{"new_medications":[{"name":"Ibuprofen"}],"include_current":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	if classifier.calls != 1 {
		t.Fatalf("classifier calls = %d", classifier.calls)
	}
	found := false
	for _, ref := range classifier.existing {
		if ref.Name == "Metformin" {
			found = true
		}
	}
	if !found {
		t.Errorf("active medicine missing from existing list: %+v", classifier.existing)
	}
}

func TestSafetyCheckEmptyListsNoClassifierCall(t *testing.T) {
	classifier := &scriptedClassifier{alert: safeVerdict()}
	engine := safety.New(classifier, nil, safety.DefaultConfig(), nil)
	h := NewSafetyHandler(engine, nil, nil, nil, nil)

	rec := postCheck(t, h, "u1", `{"new_medications":[],"existing_medications":[]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if classifier.calls != 0 {
		t.Errorf("classifier called %d times for empty lists, want 0", classifier.calls)
	}

	var alert safety.Alert
	json.Unmarshal(rec.Body.Bytes(), &alert)
	if alert.SafetyLevel != safety.LevelSafe {
		t.Errorf("level = %s, want SAFE", alert.SafetyLevel)
	}
}

func TestSafetyCheckBadBody(t *testing.T) {
	engine := safety.New(&scriptedClassifier{}, nil, safety.DefaultConfig(), nil)
	h := NewSafetyHandler(engine, nil, nil, nil, nil)

	rec := postCheck(t, h, "u1", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
