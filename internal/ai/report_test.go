package ai

import (
	"context"
	"testing"
)

func TestAnalyzeReportUnconfiguredGoesOffline(t *testing.T) {
	client := NewClient(Config{}, nil)

	analysis, mode := client.AnalyzeReport(context.Background(), "Hemoglobin 14.0 g/dL", "cbc")
	if mode != ParseModeOffline {
		t.Errorf("mode = %q, want offline", mode)
	}
	if analysis.RiskLevel != "normal" {
		t.Errorf("offline risk = %q, want normal", analysis.RiskLevel)
	}
	if len(analysis.LabValues) != 0 {
		t.Errorf("offline analysis must not invent lab values, got %d", len(analysis.LabValues))
	}
	if !analysis.FollowUpNeeded {
		t.Error("offline analysis should flag follow-up for manual review")
	}
	if analysis.Summary == "" || len(analysis.Recommendations) == 0 {
		t.Errorf("offline analysis missing guidance: %+v", analysis)
	}
}

func TestReportAnalysisDecodeStrict(t *testing.T) {
	raw := "```json\n{\"lab_values\":{\"hemoglobin\":{\"value\":9.1,\"unit\":\"g/dL\",\"status\":\"warning\"}},\"summary\":\"Mild anemia.\",\"risk_level\":\"warning\"}\n```"

	var analysis ReportAnalysis
	if err := DecodeStrict(raw, &analysis); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if analysis.RiskLevel != "warning" {
		t.Errorf("risk = %q", analysis.RiskLevel)
	}
	v, ok := analysis.LabValues["hemoglobin"]
	if !ok || v.Value != 9.1 || v.Status != "warning" {
		t.Errorf("lab values = %+v", analysis.LabValues)
	}
}
