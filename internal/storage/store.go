// Package storage defines the injected storage port: typed
// create/read/update/delete plus the secondary lookups the adherence
// core needs (medicines by owning prescription, logs by medicine,
// prescriptions by user). A postgres adapter and an in-memory test
// double implement the same contract; the core never touches a
// database directly.
package storage

import (
	"context"
	"errors"

	"github.com/Arham21-pixel/MediTrack.AI/internal/domain/medicine"
	"github.com/Arham21-pixel/MediTrack.AI/internal/domain/prescription"
	"github.com/Arham21-pixel/MediTrack.AI/internal/domain/report"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// PrescriptionStore persists prescription records.
type PrescriptionStore interface {
	Create(ctx context.Context, p *prescription.Prescription) error
	GetByID(ctx context.Context, id string) (*prescription.Prescription, error)
	GetByUserID(ctx context.Context, userID string) ([]*prescription.Prescription, error)
	// ListUserIDs returns the distinct users with prescriptions; the
	// reminder scanner iterates them.
	ListUserIDs(ctx context.Context) ([]string, error)
	Update(ctx context.Context, p *prescription.Prescription) error
	Delete(ctx context.Context, id string) error
}

// MedicineStore persists medicine records.
type MedicineStore interface {
	Create(ctx context.Context, m *medicine.Medicine) error
	GetByID(ctx context.Context, id string) (*medicine.Medicine, error)
	GetByPrescriptionID(ctx context.Context, prescriptionID string) ([]*medicine.Medicine, error)
	Update(ctx context.Context, m *medicine.Medicine) error
	// Delete removes the medicine and cascades to its dose logs.
	Delete(ctx context.Context, id string) error
}

// LogStore persists dose log records. Logs are immutable once created
// from the core's perspective.
type LogStore interface {
	Create(ctx context.Context, l *medicine.Log) error
	GetByMedicineID(ctx context.Context, medicineID string) ([]*medicine.Log, error)
	DeleteByMedicineID(ctx context.Context, medicineID string) (int64, error)
}

// ReportStore persists health report records.
type ReportStore interface {
	Create(ctx context.Context, r *report.Report) error
	GetByID(ctx context.Context, id string) (*report.Report, error)
	// GetByUserID returns a user's reports, newest first.
	GetByUserID(ctx context.Context, userID string) ([]*report.Report, error)
	Update(ctx context.Context, r *report.Report) error
	Delete(ctx context.Context, id string) error
}

// Store bundles the per-entity stores a handler needs.
type Store struct {
	Prescriptions PrescriptionStore
	Medicines     MedicineStore
	Logs          LogStore
	Reports       ReportStore
}
