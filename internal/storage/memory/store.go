// Package memory implements the storage port on mutex-guarded maps.
// It backs unit and integration tests; semantics mirror the postgres
// adapter, including cascade deletes and result ordering.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Arham21-pixel/MediTrack.AI/internal/domain/medicine"
	"github.com/Arham21-pixel/MediTrack.AI/internal/domain/prescription"
	"github.com/Arham21-pixel/MediTrack.AI/internal/domain/report"
	"github.com/Arham21-pixel/MediTrack.AI/internal/storage"
)

// NewStore creates an empty in-memory storage port.
func NewStore() *storage.Store {
	logs := &LogStore{logs: make(map[string]*medicine.Log)}
	return &storage.Store{
		Prescriptions: &PrescriptionStore{prescriptions: make(map[string]*prescription.Prescription)},
		Medicines:     &MedicineStore{medicines: make(map[string]*medicine.Medicine), logs: logs},
		Logs:          logs,
		Reports:       &ReportStore{reports: make(map[string]*report.Report)},
	}
}

// PrescriptionStore holds prescriptions keyed by ID.
type PrescriptionStore struct {
	mu            sync.RWMutex
	prescriptions map[string]*prescription.Prescription
}

func (s *PrescriptionStore) Create(_ context.Context, p *prescription.Prescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.prescriptions[p.ID] = &cp
	return nil
}

func (s *PrescriptionStore) GetByID(_ context.Context, id string) (*prescription.Prescription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prescriptions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *PrescriptionStore) GetByUserID(_ context.Context, userID string) ([]*prescription.Prescription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*prescription.Prescription
	for _, p := range s.prescriptions {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UploadedAt.After(out[j].UploadedAt)
	})
	return out, nil
}

func (s *PrescriptionStore) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, p := range s.prescriptions {
		if _, ok := seen[p.UserID]; ok {
			continue
		}
		seen[p.UserID] = struct{}{}
		out = append(out, p.UserID)
	}
	sort.Strings(out)
	return out, nil
}

func (s *PrescriptionStore) Update(_ context.Context, p *prescription.Prescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prescriptions[p.ID]; !ok {
		return storage.ErrNotFound
	}
	cp := *p
	s.prescriptions[p.ID] = &cp
	return nil
}

func (s *PrescriptionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prescriptions[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.prescriptions, id)
	return nil
}

// MedicineStore holds medicines keyed by ID. It keeps a reference to
// the log store so Delete can cascade.
type MedicineStore struct {
	mu        sync.RWMutex
	medicines map[string]*medicine.Medicine
	logs      *LogStore
}

func (s *MedicineStore) Create(_ context.Context, m *medicine.Medicine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.medicines[m.ID] = &cp
	return nil
}

func (s *MedicineStore) GetByID(_ context.Context, id string) (*medicine.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.medicines[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MedicineStore) GetByPrescriptionID(_ context.Context, prescriptionID string) ([]*medicine.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*medicine.Medicine
	for _, m := range s.medicines {
		if m.PrescriptionID == prescriptionID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *MedicineStore) Update(_ context.Context, m *medicine.Medicine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.medicines[m.ID]; !ok {
		return storage.ErrNotFound
	}
	cp := *m
	s.medicines[m.ID] = &cp
	return nil
}

func (s *MedicineStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.medicines[id]; !ok {
		return storage.ErrNotFound
	}
	if _, err := s.logs.DeleteByMedicineID(ctx, id); err != nil {
		return err
	}
	delete(s.medicines, id)
	return nil
}

// LogStore holds dose logs keyed by ID.
type LogStore struct {
	mu   sync.RWMutex
	logs map[string]*medicine.Log
}

func (s *LogStore) Create(_ context.Context, l *medicine.Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	s.logs[l.ID] = &cp
	return nil
}

func (s *LogStore) GetByMedicineID(_ context.Context, medicineID string) ([]*medicine.Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*medicine.Log
	for _, l := range s.logs {
		if l.MedicineID == medicineID {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *LogStore) DeleteByMedicineID(_ context.Context, medicineID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, l := range s.logs {
		if l.MedicineID == medicineID {
			delete(s.logs, id)
			n++
		}
	}
	return n, nil
}

// ReportStore holds health reports keyed by ID.
type ReportStore struct {
	mu      sync.RWMutex
	reports map[string]*report.Report
}

func (s *ReportStore) Create(_ context.Context, r *report.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.reports[r.ID] = &cp
	return nil
}

func (s *ReportStore) GetByID(_ context.Context, id string) (*report.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *ReportStore) GetByUserID(_ context.Context, userID string) ([]*report.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*report.Report
	for _, r := range s.reports {
		if r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UploadedAt.After(out[j].UploadedAt)
	})
	return out, nil
}

func (s *ReportStore) Update(_ context.Context, r *report.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[r.ID]; !ok {
		return storage.ErrNotFound
	}
	cp := *r
	s.reports[r.ID] = &cp
	return nil
}

func (s *ReportStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.reports, id)
	return nil
}
