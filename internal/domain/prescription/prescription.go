// Package prescription defines the prescription entity that owns
// medicine records. Parsing and persistence are collaborator concerns;
// this package only carries the typed shape.
package prescription

import (
	"encoding/json"
	"time"
)

// Prescription represents one uploaded prescription document.
type Prescription struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	FileURL    string          `json:"file_url,omitempty"`
	DoctorName string          `json:"doctor_name,omitempty"`
	ParsedData json.RawMessage `json:"parsed_data,omitempty"`
	UploadedAt time.Time       `json:"uploaded_at"`
}
