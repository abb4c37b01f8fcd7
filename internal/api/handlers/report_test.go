package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Arham21-pixel/MediTrack.AI/internal/ai"
	"github.com/Arham21-pixel/MediTrack.AI/internal/domain/report"
	"github.com/Arham21-pixel/MediTrack.AI/internal/events"
	"github.com/Arham21-pixel/MediTrack.AI/internal/infrastructure/redpanda"
	"github.com/Arham21-pixel/MediTrack.AI/internal/ocr"
	"github.com/Arham21-pixel/MediTrack.AI/internal/storage"
	"github.com/Arham21-pixel/MediTrack.AI/internal/storage/memory"
)

func newReportHandler(t *testing.T) (*ReportHandler, *storage.Store, *fakeSink) {
	t.Helper()
	store := memory.NewStore()
	sink := &fakeSink{}
	analyzer := ai.NewClient(ai.Config{}, nil)
	h := NewReportHandler(store, ocr.PlainTextExtractor{}, analyzer, sink, nil, nil)
	return h, store, sink
}

func seedReport(t *testing.T, store *storage.Store, id, userID string, typ report.Type, day int, values map[string]report.LabValue) *report.Report {
	t.Helper()
	r := &report.Report{
		ID:         id,
		UserID:     userID,
		Type:       typ,
		LabValues:  values,
		OCRText:    "Hemoglobin 14.0 g/dL",
		UploadedAt: time.Date(2026, 3, day, 10, 0, 0, 0, time.UTC),
	}
	if err := store.Reports.Create(context.Background(), r); err != nil {
		t.Fatalf("seed report: %v", err)
	}
	return r
}

func TestUploadReportOffline(t *testing.T) {
	h, store, sink := newReportHandler(t)
	h.now = func() time.Time { return time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC) }

	req := httptest.NewRequest("POST", "/?type=cbc", strings.NewReader("Hemoglobin 14.0 g/dL"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	asUser("u1", h.Routes()).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Report       *report.Report `json:"report"`
		AnalysisMode string         `json:"analysis_mode"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AnalysisMode != ai.ParseModeOffline {
		t.Errorf("analysis mode = %q, want offline", resp.AnalysisMode)
	}
	if resp.Report.UserID != "u1" || resp.Report.Type != report.TypeCBC {
		t.Errorf("report = %+v", resp.Report)
	}
	if resp.Report.RiskLevel != report.RiskNormal {
		t.Errorf("offline risk = %s, want normal", resp.Report.RiskLevel)
	}
	if !resp.Report.FollowUp {
		t.Error("offline analysis should flag follow-up")
	}

	stored, err := store.Reports.GetByID(context.Background(), resp.Report.ID)
	if err != nil {
		t.Fatalf("stored report: %v", err)
	}
	if stored.OCRText != "Hemoglobin 14.0 g/dL" {
		t.Errorf("stored text = %q", stored.OCRText)
	}
	// A normal-risk report must not raise an alert.
	if len(sink.entries) != 0 {
		t.Errorf("expected no events, got %d", len(sink.entries))
	}
}

func TestUploadReportCriticalEmitsAlert(t *testing.T) {
	analysis := `{"lab_values":{"hemoglobin":{"value":6.0,"unit":"g/dL","normal_range":"12.0-16.0","status":"critical","interpretation":"Severely low"}},"summary":"Severe anemia detected.","risk_level":"critical","key_findings":["Severely low hemoglobin"],"recommendations":["Seek medical attention"],"follow_up_needed":true,"abnormal_values":["hemoglobin"]}`
	model := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"message":{"content":%s}}]}`, mustQuote(analysis))
	}))
	defer model.Close()

	store := memory.NewStore()
	sink := &fakeSink{}
	analyzer := ai.NewClient(ai.Config{BaseURL: model.URL, APIKey: "test-key"}, nil)
	h := NewReportHandler(store, ocr.PlainTextExtractor{}, analyzer, sink, nil, nil)

	req := httptest.NewRequest("POST", "/?type=cbc", strings.NewReader("Hemoglobin 6.0 g/dL"))
	rec := httptest.NewRecorder()
	asUser("u1", h.Routes()).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Report       *report.Report `json:"report"`
		AnalysisMode string         `json:"analysis_mode"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AnalysisMode != ai.ParseModeModel {
		t.Errorf("analysis mode = %q, want model", resp.AnalysisMode)
	}
	if resp.Report.RiskLevel != report.RiskCritical {
		t.Errorf("risk = %s, want critical", resp.Report.RiskLevel)
	}
	if v := resp.Report.LabValues["hemoglobin"]; v.Status != report.RiskCritical || v.Value != 6.0 {
		t.Errorf("lab value = %+v", v)
	}

	if len(sink.entries) != 1 {
		t.Fatalf("expected 1 alert event, got %d", len(sink.entries))
	}
	entry := sink.entries[0]
	if entry.EventType != events.TypeReportAnalyzed || entry.Topic != redpanda.TopicSafetyAlerts {
		t.Errorf("event = %s on %s", entry.EventType, entry.Topic)
	}
	var ev events.ReportAnalyzed
	if err := json.Unmarshal(entry.Payload, &ev); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if ev.RiskLevel != "critical" || len(ev.AbnormalValues) != 1 || ev.AbnormalValues[0] != "hemoglobin" {
		t.Errorf("event payload = %+v", ev)
	}
}

func mustQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestGetReportOwnership(t *testing.T) {
	h, store, _ := newReportHandler(t)
	seedReport(t, store, "r-u1", "u1", report.TypeCBC, 1, nil)

	rec := httptest.NewRecorder()
	asUser("u2", h.Routes()).ServeHTTP(rec, httptest.NewRequest("GET", "/r-u1", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign access status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	asUser("u1", h.Routes()).ServeHTTP(rec, httptest.NewRequest("GET", "/r-u1", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("owner access status = %d, want 200", rec.Code)
	}
}

func TestListReportsFilterAndPagination(t *testing.T) {
	h, store, _ := newReportHandler(t)
	seedReport(t, store, "r1", "u1", report.TypeCBC, 1, nil)
	seedReport(t, store, "r2", "u1", report.TypeCBC, 2, nil)
	seedReport(t, store, "r3", "u1", report.TypeLipid, 3, nil)
	seedReport(t, store, "r4", "u2", report.TypeCBC, 4, nil)
	srv := asUser("u1", h.Routes())

	var body struct {
		Reports []*report.Report `json:"reports"`
		Total   int              `json:"total"`
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/?type=cbc", nil))
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 2 {
		t.Errorf("cbc total = %d, want 2", body.Total)
	}

	// Newest first; page 2 of size 1 is the middle report.
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/?page=2&per_page=1", nil))
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 3 || len(body.Reports) != 1 || body.Reports[0].ID != "r2" {
		t.Errorf("page 2 = %+v (total %d)", body.Reports, body.Total)
	}

	// Past the last page comes back empty, not an error.
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/?page=9&per_page=10", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("overflow page status = %d", rec.Code)
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if len(body.Reports) != 0 {
		t.Errorf("overflow page returned %d reports", len(body.Reports))
	}
}

func TestReportTrends(t *testing.T) {
	h, store, _ := newReportHandler(t)
	glucose := func(v float64) map[string]report.LabValue {
		return map[string]report.LabValue{"glucose": {Value: v, Unit: "mg/dL", Status: report.RiskNormal}}
	}
	seedReport(t, store, "r1", "u1", report.TypeDiabetes, 1, glucose(100))
	seedReport(t, store, "r2", "u1", report.TypeDiabetes, 5, glucose(120))
	seedReport(t, store, "r3", "u1", report.TypeDiabetes, 10, glucose(140))
	// Different report type stays out of the series.
	seedReport(t, store, "r4", "u1", report.TypeCBC, 7, glucose(999))
	srv := asUser("u1", h.Routes())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/r1/trends?lab_value=glucose", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var trend report.Trend
	if err := json.Unmarshal(rec.Body.Bytes(), &trend); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(trend.Points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(trend.Points))
	}
	if trend.Points[0].Value != 100 || trend.Points[2].Value != 140 {
		t.Errorf("points = %+v", trend.Points)
	}
	if trend.Direction != report.TrendWorsening {
		t.Errorf("direction = %s, want worsening", trend.Direction)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/r1/trends", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing lab_value status = %d, want 400", rec.Code)
	}
}

func TestReportSummaryEndpoint(t *testing.T) {
	h, store, _ := newReportHandler(t)
	r1 := seedReport(t, store, "r1", "u1", report.TypeCBC, 1, nil)
	r1.RiskLevel = report.RiskCritical
	store.Reports.Update(context.Background(), r1)
	seedReport(t, store, "r2", "u1", report.TypeLipid, 5, nil)

	rec := httptest.NewRecorder()
	asUser("u1", h.Routes()).ServeHTTP(rec, httptest.NewRequest("GET", "/summary", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var s report.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.TotalReports != 2 {
		t.Errorf("total = %d", s.TotalReports)
	}
	if s.ByRisk[report.RiskCritical] != 1 || s.ByRisk[report.RiskNormal] != 1 {
		t.Errorf("by risk = %+v", s.ByRisk)
	}
	if s.Latest == nil || s.Latest.ID != "r2" {
		t.Errorf("latest = %+v", s.Latest)
	}
}

func TestUpdateReportValidatesRiskLevel(t *testing.T) {
	h, store, _ := newReportHandler(t)
	seedReport(t, store, "r1", "u1", report.TypeCBC, 1, nil)
	srv := asUser("u1", h.Routes())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("PUT", "/r1", strings.NewReader(`{"risk_level":"severe"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid risk status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("PUT", "/r1", strings.NewReader(`{"risk_level":"warning","ai_summary":"Reviewed by doctor."}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	stored, _ := store.Reports.GetByID(context.Background(), "r1")
	if stored.RiskLevel != report.RiskWarning || stored.Summary != "Reviewed by doctor." {
		t.Errorf("stored = %+v", stored)
	}
}

func TestDeleteReport(t *testing.T) {
	h, store, _ := newReportHandler(t)
	seedReport(t, store, "r1", "u1", report.TypeCBC, 1, nil)

	rec := httptest.NewRecorder()
	asUser("u1", h.Routes()).ServeHTTP(rec, httptest.NewRequest("DELETE", "/r1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if _, err := store.Reports.GetByID(context.Background(), "r1"); err == nil {
		t.Error("report should be gone")
	}
}

func TestReanalyzeReport(t *testing.T) {
	h, store, _ := newReportHandler(t)
	r := seedReport(t, store, "r1", "u1", report.TypeCBC, 1, nil)
	r.Summary = "Stale analysis."
	store.Reports.Update(context.Background(), r)
	srv := asUser("u1", h.Routes())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "/r1/reanalyze", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	stored, _ := store.Reports.GetByID(context.Background(), "r1")
	if stored.Summary == "Stale analysis." || stored.Summary == "" {
		t.Errorf("summary not refreshed: %q", stored.Summary)
	}
	if !stored.FollowUp {
		t.Error("offline reanalysis should flag follow-up")
	}
}

func TestReanalyzeWithoutTextConflicts(t *testing.T) {
	h, store, _ := newReportHandler(t)
	r := seedReport(t, store, "r1", "u1", report.TypeCBC, 1, nil)
	r.OCRText = ""
	store.Reports.Update(context.Background(), r)

	rec := httptest.NewRecorder()
	asUser("u1", h.Routes()).ServeHTTP(rec, httptest.NewRequest("POST", "/r1/reanalyze", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}
