// Package report defines the health report entity: an uploaded lab
// document, the lab values extracted from it, and the risk
// classification derived from them. Extraction and persistence are
// collaborator concerns; this package carries the typed shape and the
// classification rules.
package report

import (
	"sort"
	"time"
)

// RiskLevel classifies a lab value or a whole report.
type RiskLevel string

const (
	RiskNormal   RiskLevel = "normal"
	RiskWarning  RiskLevel = "warning"
	RiskCritical RiskLevel = "critical"
)

// Valid reports whether l is a known risk level.
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskNormal, RiskWarning, RiskCritical:
		return true
	}
	return false
}

// Type identifies the kind of lab report.
type Type string

const (
	TypeCBC      Type = "cbc"
	TypeLFT      Type = "lft"
	TypeKFT      Type = "kft"
	TypeLipid    Type = "lipid"
	TypeThyroid  Type = "thyroid"
	TypeDiabetes Type = "diabetes"
	TypeUrine    Type = "urine"
	TypeXRay     Type = "xray"
	TypeMRI      Type = "mri"
	TypeCTScan   Type = "ct_scan"
	TypeECG      Type = "ecg"
	TypeOther    Type = "other"
)

// NormalizeType maps a raw type string onto a known Type; anything
// unrecognized becomes TypeOther.
func NormalizeType(s string) Type {
	switch Type(s) {
	case TypeCBC, TypeLFT, TypeKFT, TypeLipid, TypeThyroid, TypeDiabetes,
		TypeUrine, TypeXRay, TypeMRI, TypeCTScan, TypeECG:
		return Type(s)
	}
	return TypeOther
}

// LabValue is one measured value extracted from a report.
type LabValue struct {
	Name           string    `json:"name"`
	Value          float64   `json:"value"`
	Unit           string    `json:"unit,omitempty"`
	NormalRange    string    `json:"normal_range,omitempty"`
	Status         RiskLevel `json:"status"`
	Interpretation string    `json:"interpretation,omitempty"`
}

// Report represents one uploaded health report and its analysis.
type Report struct {
	ID         string              `json:"id"`
	UserID     string              `json:"user_id"`
	FileURL    string              `json:"file_url,omitempty"`
	Type       Type                `json:"report_type"`
	LabValues  map[string]LabValue `json:"lab_values,omitempty"`
	Summary    string              `json:"ai_summary,omitempty"`
	RiskLevel  RiskLevel           `json:"risk_level,omitempty"`
	Findings   []string            `json:"key_findings,omitempty"`
	Advice     []string            `json:"recommendations,omitempty"`
	FollowUp   bool                `json:"follow_up_needed,omitempty"`
	OCRText    string              `json:"-"`
	UploadedAt time.Time           `json:"uploaded_at"`
}

// AbnormalValues returns the lab values whose status is not normal,
// sorted by name for stable output.
func (r *Report) AbnormalValues() []LabValue {
	var out []LabValue
	for name, v := range r.LabValues {
		if v.Status != RiskNormal {
			v.Name = name
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RiskFor classifies a measured value against its normal range. Values
// inside the range are normal; values more than 30% beyond either
// bound are critical; everything else is a warning.
func RiskFor(value, minNormal, maxNormal float64) RiskLevel {
	if minNormal <= value && value <= maxNormal {
		return RiskNormal
	}

	var deviation float64
	if value < minNormal {
		deviation = (minNormal - value) / minNormal
	} else {
		deviation = (value - maxNormal) / maxNormal
	}

	if deviation > 0.3 {
		return RiskCritical
	}
	return RiskWarning
}

// TrendPoint is one measurement of a lab value on one report.
type TrendPoint struct {
	ReportID string    `json:"report_id"`
	Date     time.Time `json:"date"`
	Value    float64   `json:"value"`
	Status   RiskLevel `json:"status"`
}

// Trend directions.
const (
	TrendStable    = "stable"
	TrendImproving = "improving"
	TrendWorsening = "worsening"
)

// Trend tracks one named lab value across a series of reports.
type Trend struct {
	Name      string       `json:"name"`
	Unit      string       `json:"unit,omitempty"`
	Points    []TrendPoint `json:"data_points"`
	Direction string       `json:"trend_direction"`
}

// BuildTrend collects the named lab value from each report carrying it,
// ordered by upload time, and labels the overall direction. A rise of
// more than 10% from first to last reading counts as worsening, a drop
// of more than 10% as improving.
func BuildTrend(name string, reports []*Report) Trend {
	ordered := make([]*Report, len(reports))
	copy(ordered, reports)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].UploadedAt.Before(ordered[j].UploadedAt)
	})

	t := Trend{Name: name, Direction: TrendStable, Points: []TrendPoint{}}
	for _, r := range ordered {
		v, ok := r.LabValues[name]
		if !ok {
			continue
		}
		if t.Unit == "" {
			t.Unit = v.Unit
		}
		t.Points = append(t.Points, TrendPoint{
			ReportID: r.ID,
			Date:     r.UploadedAt,
			Value:    v.Value,
			Status:   v.Status,
		})
	}

	if len(t.Points) >= 2 {
		first := t.Points[0].Value
		last := t.Points[len(t.Points)-1].Value
		switch {
		case last > first*1.1:
			t.Direction = TrendWorsening
		case last < first*0.9:
			t.Direction = TrendImproving
		}
	}
	return t
}

// Summary aggregates a user's reports by type and risk level.
type Summary struct {
	TotalReports int               `json:"total_reports"`
	ByType       map[Type]int      `json:"by_type"`
	ByRisk       map[RiskLevel]int `json:"by_risk_level"`
	Latest       *Report           `json:"latest_report,omitempty"`
}

// Summarize counts reports per type and per risk level. Reports
// without a risk level count as normal. The latest report by upload
// time is included.
func Summarize(reports []*Report) Summary {
	s := Summary{
		TotalReports: len(reports),
		ByType:       make(map[Type]int),
		ByRisk: map[RiskLevel]int{
			RiskNormal:   0,
			RiskWarning:  0,
			RiskCritical: 0,
		},
	}

	for _, r := range reports {
		s.ByType[r.Type]++

		risk := r.RiskLevel
		if !risk.Valid() {
			risk = RiskNormal
		}
		s.ByRisk[risk]++

		if s.Latest == nil || r.UploadedAt.After(s.Latest.UploadedAt) {
			s.Latest = r
		}
	}
	return s
}
