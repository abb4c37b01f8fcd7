package ai

import (
	"context"
	"strings"
	"testing"
)

func TestStripFences(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
	}

	for _, c := range cases {
		if got := StripFences(c.in); got != c.want {
			t.Errorf("StripFences(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestDecodeStrict(t *testing.T) {
	var parsed ParsedPrescription
	raw := "```json\n{\"doctor_name\":\"Dr. Rao\",\"medicines\":[{\"name\":\"Metformin\"}]}\n```"
	if err := DecodeStrict(raw, &parsed); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if parsed.DoctorName != "Dr. Rao" {
		t.Errorf("doctor = %q, want Dr. Rao", parsed.DoctorName)
	}
	if len(parsed.Medicines) != 1 || parsed.Medicines[0].Name != "Metformin" {
		t.Errorf("medicines = %+v", parsed.Medicines)
	}
}

func TestDecodeStrictRejectsUnknownFields(t *testing.T) {
	var parsed ParsedPrescription
	if err := DecodeStrict(`{"doctor_name":"Dr. Rao","surprise":true}`, &parsed); err == nil {
		t.Error("unknown field should be rejected")
	}
}

func TestDecodeStrictRejectsNonJSON(t *testing.T) {
	var parsed ParsedPrescription
	if err := DecodeStrict("I cannot help with that.", &parsed); err == nil {
		t.Error("prose should be rejected")
	}
}

func TestParsePrescriptionUnconfiguredGoesOffline(t *testing.T) {
	client := NewClient(Config{}, nil)

	text := "Tab Metformin 500mg\ntake with water\nSyrup Benadryl 5ml"
	parsed, mode := client.ParsePrescription(context.Background(), text)

	if mode != ParseModeOffline {
		t.Errorf("mode = %q, want offline", mode)
	}
	if len(parsed.Medicines) != 2 {
		t.Fatalf("expected 2 medicines, got %d", len(parsed.Medicines))
	}
	if parsed.Medicines[0].Name != "Tab Metformin 500mg" {
		t.Errorf("name = %q", parsed.Medicines[0].Name)
	}
	if !strings.Contains(parsed.Notes, "verify") {
		t.Errorf("offline parse should flag verification, notes = %q", parsed.Notes)
	}
}

func TestOfflineParseCapsResults(t *testing.T) {
	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, "Tab Something 10mg")
	}
	parsed := offlinePrescriptionParse(strings.Join(lines, "\n"))
	if len(parsed.Medicines) != 10 {
		t.Errorf("expected cap at 10 medicines, got %d", len(parsed.Medicines))
	}
}

func TestOfflineParseTruncatesLongNames(t *testing.T) {
	parsed := offlinePrescriptionParse("Tab " + strings.Repeat("x", 100))
	if len(parsed.Medicines) != 1 {
		t.Fatalf("expected 1 medicine, got %d", len(parsed.Medicines))
	}
	if len(parsed.Medicines[0].Name) != 50 {
		t.Errorf("name length = %d, want 50", len(parsed.Medicines[0].Name))
	}
}
