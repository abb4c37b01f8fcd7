package ai

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// AnalyzedValue is one lab value extracted from a health report.
type AnalyzedValue struct {
	Value          float64 `json:"value"`
	Unit           string  `json:"unit,omitempty"`
	NormalRange    string  `json:"normal_range,omitempty"`
	Status         string  `json:"status,omitempty"`
	Interpretation string  `json:"interpretation,omitempty"`
}

// ReportAnalysis is the structured result of analyzing lab report
// text.
type ReportAnalysis struct {
	LabValues       map[string]AnalyzedValue `json:"lab_values"`
	Summary         string                   `json:"summary"`
	RiskLevel       string                   `json:"risk_level"`
	KeyFindings     []string                 `json:"key_findings,omitempty"`
	Recommendations []string                 `json:"recommendations,omitempty"`
	FollowUpNeeded  bool                     `json:"follow_up_needed,omitempty"`
	AbnormalValues  []string                 `json:"abnormal_values,omitempty"`
}

const reportSystemPrompt = "You are a medical report analyzer. Always respond with valid JSON only. Provide clear, patient-friendly explanations."

const reportPromptTemplate = `You are a medical report analyzer. Extract lab values and provide analysis for this %s report.

Return a JSON object with this structure:
{
    "lab_values": {
        "test_name": {
            "value": 12.5,
            "unit": "g/dL",
            "normal_range": "12.0-16.0",
            "status": "normal",
            "interpretation": "Within normal limits"
        }
    },
    "summary": "Brief 2-3 sentence summary in simple language that a patient can understand",
    "risk_level": "normal",
    "key_findings": ["Finding 1", "Finding 2"],
    "recommendations": ["Recommendation 1", "Recommendation 2"],
    "follow_up_needed": false,
    "abnormal_values": ["List of abnormal test names"]
}

For status, use: "normal", "warning" (slightly abnormal), or "critical" (significantly abnormal)
For risk_level, use: "normal", "warning", or "critical" based on overall findings

Report text:
%s

Return ONLY valid JSON, no other text.`

// AnalyzeReport turns raw report text into lab values and a risk
// classification, reporting which mode produced the result. Like
// prescription parsing, analysis degrades to a neutral offline result
// rather than erroring: the upload must persist even when the model
// cannot read the document.
func (c *Client) AnalyzeReport(ctx context.Context, ocrText, reportType string) (*ReportAnalysis, string) {
	if !c.Configured() {
		return offlineReportAnalysis(), ParseModeOffline
	}

	raw, err := c.Complete(ctx, reportSystemPrompt,
		fmt.Sprintf(reportPromptTemplate, reportType, ocrText))
	if err != nil {
		c.logger.Warn("report analysis degraded to offline mode", zap.Error(err))
		return offlineReportAnalysis(), ParseModeOffline
	}

	var analysis ReportAnalysis
	if err := DecodeStrict(raw, &analysis); err != nil {
		c.logger.Warn("report analysis returned malformed payload", zap.Error(err))
		return offlineReportAnalysis(), ParseModeOffline
	}
	return &analysis, ParseModeModel
}

// offlineReportAnalysis is the neutral result stored when no model is
// available. Risk stays normal; the report is flagged for manual
// review instead of guessing at values.
func offlineReportAnalysis() *ReportAnalysis {
	return &ReportAnalysis{
		LabValues:       map[string]AnalyzedValue{},
		Summary:         "Report uploaded successfully. AI analysis not available - please consult your doctor for interpretation.",
		RiskLevel:       "normal",
		KeyFindings:     []string{"Report requires manual review"},
		Recommendations: []string{"Consult your healthcare provider for detailed analysis"},
		FollowUpNeeded:  true,
		AbnormalValues:  []string{},
	}
}
