package safety

import (
	"context"
	"errors"
	"testing"
	"time"
)

// stubClassifier counts invocations and returns a canned verdict.
type stubClassifier struct {
	calls int
	alert *Alert
	err   error
}

func (s *stubClassifier) Classify(_ context.Context, _, _ []MedicationRef) (*Alert, error) {
	s.calls++
	return s.alert, s.err
}

func wellFormedVerdict() *Alert {
	return &Alert{
		HasCriticalInteractions: false,
		SafetyLevel:             LevelSafe,
		Interactions:            []Interaction{},
		SafeMedicines:           []string{"Paracetamol"},
		Recommendation:          "No interactions found.",
		ConfidenceScore:         0.95,
	}
}

func TestCheckEmptyListsSkipsClassifier(t *testing.T) {
	stub := &stubClassifier{alert: wellFormedVerdict()}
	engine := New(stub, nil, DefaultConfig(), nil)

	alert := engine.Check(context.Background(), nil, nil)

	if stub.calls != 0 {
		t.Errorf("classifier called %d times, want 0", stub.calls)
	}
	if alert.SafetyLevel != LevelSafe {
		t.Errorf("level = %s, want SAFE", alert.SafetyLevel)
	}
	if alert.ConsultDoctor {
		t.Error("empty check should not require a doctor")
	}
	if alert.ConfidenceScore != 1.0 {
		t.Errorf("confidence = %v, want 1.0", alert.ConfidenceScore)
	}
	if alert.TotalMedicationsChecked != 0 {
		t.Errorf("total checked = %d, want 0", alert.TotalMedicationsChecked)
	}
}

func TestCheckClassifierFailureFailsSafe(t *testing.T) {
	stub := &stubClassifier{err: errors.New("upstream down")}
	engine := New(stub, nil, DefaultConfig(), nil)

	alert := engine.Check(context.Background(),
		[]MedicationRef{{Name: "Warfarin"}},
		[]MedicationRef{{Name: "Aspirin"}})

	if alert.SafetyLevel != LevelCaution {
		t.Errorf("level = %s, want CAUTION", alert.SafetyLevel)
	}
	if !alert.ConsultDoctor {
		t.Error("fail-safe verdict must require a doctor")
	}
	if alert.ConfidenceScore != 0.0 {
		t.Errorf("confidence = %v, want 0.0", alert.ConfidenceScore)
	}
	if !alert.HasCriticalInteractions {
		t.Error("fail-safe verdict must not present as no-risk")
	}
	if alert.TotalMedicationsChecked != 2 {
		t.Errorf("total checked = %d, want 2", alert.TotalMedicationsChecked)
	}
	if len(alert.Interactions) != 1 {
		t.Fatalf("expected one placeholder interaction, got %d", len(alert.Interactions))
	}
}

func TestCheckMalformedVerdictFailsSafe(t *testing.T) {
	malformed := wellFormedVerdict()
	malformed.SafetyLevel = "GREEN"
	stub := &stubClassifier{alert: malformed}
	engine := New(stub, nil, DefaultConfig(), nil)

	alert := engine.Check(context.Background(), []MedicationRef{{Name: "Warfarin"}}, nil)
	if alert.SafetyLevel != LevelCaution || !alert.ConsultDoctor {
		t.Errorf("malformed verdict should degrade to fail-safe, got %s", alert.SafetyLevel)
	}
}

func TestCheckNilVerdictFailsSafe(t *testing.T) {
	stub := &stubClassifier{}
	engine := New(stub, nil, DefaultConfig(), nil)

	alert := engine.Check(context.Background(),
		[]MedicationRef{{Name: "Warfarin"}},
		[]MedicationRef{{Name: "Aspirin"}})

	if stub.calls != 1 {
		t.Errorf("classifier called %d times, want 1", stub.calls)
	}
	if alert.SafetyLevel != LevelCaution || !alert.ConsultDoctor {
		t.Errorf("nil verdict should degrade to fail-safe, got %s", alert.SafetyLevel)
	}
	if alert.ConfidenceScore != 0.0 {
		t.Errorf("confidence = %v, want 0.0", alert.ConfidenceScore)
	}
}

func TestCheckOutOfRangeConfidenceFailsSafe(t *testing.T) {
	bad := wellFormedVerdict()
	bad.ConfidenceScore = 1.5
	stub := &stubClassifier{alert: bad}
	engine := New(stub, nil, DefaultConfig(), nil)

	alert := engine.Check(context.Background(), []MedicationRef{{Name: "Warfarin"}}, nil)
	if alert.ConfidenceScore != 0.0 {
		t.Errorf("confidence = %v, want fail-safe 0.0", alert.ConfidenceScore)
	}
}

func TestCheckSuccessStampsBookkeeping(t *testing.T) {
	stub := &stubClassifier{alert: wellFormedVerdict()}
	engine := New(stub, nil, DefaultConfig(), nil)
	fixed := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return fixed }

	alert := engine.Check(context.Background(),
		[]MedicationRef{{Name: "Paracetamol"}},
		[]MedicationRef{{Name: "Cetirizine"}, {Name: "Omeprazole"}})

	if stub.calls != 1 {
		t.Errorf("classifier called %d times, want 1", stub.calls)
	}
	if alert.TotalMedicationsChecked != 3 {
		t.Errorf("total checked = %d, want 3", alert.TotalMedicationsChecked)
	}
	if !alert.CheckedAt.Equal(fixed) {
		t.Errorf("checked at = %v, want %v", alert.CheckedAt, fixed)
	}
	if alert.SafetyLevel != LevelSafe {
		t.Errorf("level = %s, want SAFE passthrough", alert.SafetyLevel)
	}
}

func TestCheckDemoMode(t *testing.T) {
	stub := &stubClassifier{alert: wellFormedVerdict()}
	cfg := DefaultConfig()
	cfg.DemoMode = true
	engine := New(stub, nil, cfg, nil)

	alert := engine.Check(context.Background(),
		[]MedicationRef{{Name: "Ibuprofen"}},
		[]MedicationRef{{Name: "Lisinopril"}})

	if stub.calls != 0 {
		t.Errorf("demo mode must not call the classifier, got %d calls", stub.calls)
	}
	if alert.SafetyLevel != LevelCritical {
		t.Errorf("level = %s, want CRITICAL", alert.SafetyLevel)
	}
	if len(alert.Interactions) != 1 {
		t.Fatalf("expected one interaction, got %d", len(alert.Interactions))
	}
	if alert.Interactions[0].DrugA != "Ibuprofen" || alert.Interactions[0].DrugB != "Lisinopril" {
		t.Errorf("demo verdict should name the submitted drugs, got %s/%s",
			alert.Interactions[0].DrugA, alert.Interactions[0].DrugB)
	}
}

func TestLevelOrdering(t *testing.T) {
	order := []Level{LevelSafe, LevelCaution, LevelDanger, LevelCritical}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("%s should rank above %s", order[i], order[i-1])
		}
	}

	if !LevelDanger.AtLeast(LevelCaution) {
		t.Error("DANGER should be at least CAUTION")
	}
	if LevelCaution.AtLeast(LevelDanger) {
		t.Error("CAUTION should not be at least DANGER")
	}
	if Level("GREEN").Valid() {
		t.Error("unknown level should be invalid")
	}
	if Level("GREEN").AtLeast(LevelSafe) {
		t.Error("unknown level must rank below SAFE")
	}
}

func TestLevelRequiresImmediateAction(t *testing.T) {
	cases := map[Level]bool{
		LevelSafe:     false,
		LevelCaution:  false,
		LevelDanger:   true,
		LevelCritical: true,
	}
	for level, want := range cases {
		if got := level.RequiresImmediateAction(); got != want {
			t.Errorf("%s.RequiresImmediateAction() = %v, want %v", level, got, want)
		}
	}
}

func TestAlertValidate(t *testing.T) {
	good := wellFormedVerdict()
	if err := good.Validate(); err != nil {
		t.Errorf("well-formed alert rejected: %v", err)
	}

	bad := wellFormedVerdict()
	bad.Interactions = []Interaction{{DrugA: "A", DrugB: "B", Severity: "SEVERE"}}
	if err := bad.Validate(); err == nil {
		t.Error("unknown interaction severity should be rejected")
	}
}
