// Package postgres implements the storage port on PostgreSQL via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Arham21-pixel/MediTrack.AI/internal/domain/medicine"
	"github.com/Arham21-pixel/MediTrack.AI/internal/domain/prescription"
	"github.com/Arham21-pixel/MediTrack.AI/internal/domain/report"
	"github.com/Arham21-pixel/MediTrack.AI/internal/storage"
)

// NewStore creates the postgres-backed storage port.
func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *storage.Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &storage.Store{
		Prescriptions: &PrescriptionStore{pool: pool, logger: logger},
		Medicines:     &MedicineStore{pool: pool, logger: logger},
		Logs:          &LogStore{pool: pool, logger: logger},
		Reports:       &ReportStore{pool: pool, logger: logger},
	}
}

// PrescriptionStore persists prescriptions in the prescriptions table.
type PrescriptionStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Create inserts a new prescription record.
func (s *PrescriptionStore) Create(ctx context.Context, p *prescription.Prescription) error {
	query := `
		INSERT INTO prescriptions (id, user_id, file_url, doctor_name, parsed_data, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.pool.Exec(ctx, query, p.ID, p.UserID, p.FileURL, p.DoctorName, p.ParsedData, p.UploadedAt)
	if err != nil {
		return fmt.Errorf("insert prescription: %w", err)
	}
	return nil
}

// GetByID retrieves a prescription by ID.
func (s *PrescriptionStore) GetByID(ctx context.Context, id string) (*prescription.Prescription, error) {
	query := `
		SELECT id, user_id, file_url, doctor_name, parsed_data, uploaded_at
		FROM prescriptions
		WHERE id = $1
	`
	p := &prescription.Prescription{}
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.UserID, &p.FileURL, &p.DoctorName, &p.ParsedData, &p.UploadedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select prescription: %w", err)
	}
	return p, nil
}

// GetByUserID retrieves all prescriptions for a user, newest first.
func (s *PrescriptionStore) GetByUserID(ctx context.Context, userID string) ([]*prescription.Prescription, error) {
	query := `
		SELECT id, user_id, file_url, doctor_name, parsed_data, uploaded_at
		FROM prescriptions
		WHERE user_id = $1
		ORDER BY uploaded_at DESC
	`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("select prescriptions: %w", err)
	}
	defer rows.Close()

	var out []*prescription.Prescription
	for rows.Next() {
		p := &prescription.Prescription{}
		if err := rows.Scan(&p.ID, &p.UserID, &p.FileURL, &p.DoctorName, &p.ParsedData, &p.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan prescription: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListUserIDs returns the distinct users with prescriptions.
func (s *PrescriptionStore) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT DISTINCT user_id FROM prescriptions")
	if err != nil {
		return nil, fmt.Errorf("select user ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Update rewrites the mutable prescription fields.
func (s *PrescriptionStore) Update(ctx context.Context, p *prescription.Prescription) error {
	query := `
		UPDATE prescriptions
		SET file_url = $2, doctor_name = $3, parsed_data = $4
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query, p.ID, p.FileURL, p.DoctorName, p.ParsedData)
	if err != nil {
		return fmt.Errorf("update prescription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes a prescription.
func (s *PrescriptionStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM prescriptions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete prescription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MedicineStore persists medicines in the medicines table.
type MedicineStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Create inserts a new medicine record.
func (s *MedicineStore) Create(ctx context.Context, m *medicine.Medicine) error {
	query := `
		INSERT INTO medicines
		(id, prescription_id, name, dosage, frequency, timing, duration_days, start_date, end_date, instructions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.pool.Exec(ctx, query,
		m.ID, m.PrescriptionID, m.Name, m.Dosage, m.Frequency, m.Timing,
		m.DurationDays, m.StartDate, m.EndDate, m.Instructions,
	)
	if err != nil {
		return fmt.Errorf("insert medicine: %w", err)
	}
	return nil
}

// GetByID retrieves a medicine by ID.
func (s *MedicineStore) GetByID(ctx context.Context, id string) (*medicine.Medicine, error) {
	query := `
		SELECT id, prescription_id, name, dosage, frequency, timing, duration_days, start_date, end_date, instructions
		FROM medicines
		WHERE id = $1
	`
	m := &medicine.Medicine{}
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.PrescriptionID, &m.Name, &m.Dosage, &m.Frequency, &m.Timing,
		&m.DurationDays, &m.StartDate, &m.EndDate, &m.Instructions,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select medicine: %w", err)
	}
	return m, nil
}

// GetByPrescriptionID retrieves all medicines owned by a prescription.
func (s *MedicineStore) GetByPrescriptionID(ctx context.Context, prescriptionID string) ([]*medicine.Medicine, error) {
	query := `
		SELECT id, prescription_id, name, dosage, frequency, timing, duration_days, start_date, end_date, instructions
		FROM medicines
		WHERE prescription_id = $1
		ORDER BY name ASC
	`
	rows, err := s.pool.Query(ctx, query, prescriptionID)
	if err != nil {
		return nil, fmt.Errorf("select medicines: %w", err)
	}
	defer rows.Close()

	var out []*medicine.Medicine
	for rows.Next() {
		m := &medicine.Medicine{}
		if err := rows.Scan(&m.ID, &m.PrescriptionID, &m.Name, &m.Dosage, &m.Frequency, &m.Timing,
			&m.DurationDays, &m.StartDate, &m.EndDate, &m.Instructions); err != nil {
			return nil, fmt.Errorf("scan medicine: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Update rewrites the mutable medicine fields.
func (s *MedicineStore) Update(ctx context.Context, m *medicine.Medicine) error {
	query := `
		UPDATE medicines
		SET name = $2, dosage = $3, frequency = $4, timing = $5,
		    duration_days = $6, start_date = $7, end_date = $8, instructions = $9
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query,
		m.ID, m.Name, m.Dosage, m.Frequency, m.Timing,
		m.DurationDays, m.StartDate, m.EndDate, m.Instructions,
	)
	if err != nil {
		return fmt.Errorf("update medicine: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes a medicine and cascades to its dose logs in one
// transaction.
func (s *MedicineStore) Delete(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM medicine_logs WHERE medicine_id = $1", id); err != nil {
		return fmt.Errorf("delete medicine logs: %w", err)
	}

	tag, err := tx.Exec(ctx, "DELETE FROM medicines WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete medicine: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LogStore persists dose logs in the medicine_logs table.
type LogStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Create inserts a new dose log entry.
func (s *LogStore) Create(ctx context.Context, l *medicine.Log) error {
	query := `
		INSERT INTO medicine_logs (id, medicine_id, scheduled_time, timing, status, taken_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.pool.Exec(ctx, query,
		l.ID, l.MedicineID, l.ScheduledTime, l.Timing, l.Status, l.TakenAt, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert medicine log: %w", err)
	}
	return nil
}

// GetByMedicineID retrieves all dose logs for a medicine, oldest
// first.
func (s *LogStore) GetByMedicineID(ctx context.Context, medicineID string) ([]*medicine.Log, error) {
	query := `
		SELECT id, medicine_id, scheduled_time, timing, status, taken_at, created_at
		FROM medicine_logs
		WHERE medicine_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.pool.Query(ctx, query, medicineID)
	if err != nil {
		return nil, fmt.Errorf("select medicine logs: %w", err)
	}
	defer rows.Close()

	var out []*medicine.Log
	for rows.Next() {
		l := &medicine.Log{}
		if err := rows.Scan(&l.ID, &l.MedicineID, &l.ScheduledTime, &l.Timing, &l.Status, &l.TakenAt, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan medicine log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteByMedicineID removes all dose logs for a medicine.
func (s *LogStore) DeleteByMedicineID(ctx context.Context, medicineID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM medicine_logs WHERE medicine_id = $1", medicineID)
	if err != nil {
		return 0, fmt.Errorf("delete medicine logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ReportStore persists health reports in the health_reports table.
// Lab values, findings and recommendations are JSONB columns.
type ReportStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// reportAnalysisColumns marshals the JSONB columns of a report.
func reportAnalysisColumns(r *report.Report) ([]byte, []byte, []byte, error) {
	labValues, err := json.Marshal(r.LabValues)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal lab values: %w", err)
	}
	findings, err := json.Marshal(r.Findings)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal findings: %w", err)
	}
	advice, err := json.Marshal(r.Advice)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal recommendations: %w", err)
	}
	return labValues, findings, advice, nil
}

// scanReport reads one report row, decoding the JSONB columns.
func scanReport(row pgx.Row) (*report.Report, error) {
	r := &report.Report{}
	var labValues, findings, advice []byte
	err := row.Scan(
		&r.ID, &r.UserID, &r.FileURL, &r.Type, &labValues,
		&r.Summary, &r.RiskLevel, &findings, &advice,
		&r.FollowUp, &r.OCRText, &r.UploadedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(labValues) > 0 {
		if err := json.Unmarshal(labValues, &r.LabValues); err != nil {
			return nil, fmt.Errorf("unmarshal lab values: %w", err)
		}
	}
	if len(findings) > 0 {
		if err := json.Unmarshal(findings, &r.Findings); err != nil {
			return nil, fmt.Errorf("unmarshal findings: %w", err)
		}
	}
	if len(advice) > 0 {
		if err := json.Unmarshal(advice, &r.Advice); err != nil {
			return nil, fmt.Errorf("unmarshal recommendations: %w", err)
		}
	}
	return r, nil
}

const reportColumns = `id, user_id, file_url, report_type, lab_values,
		ai_summary, risk_level, key_findings, recommendations,
		follow_up_needed, ocr_text, uploaded_at`

// Create inserts a new health report record.
func (s *ReportStore) Create(ctx context.Context, r *report.Report) error {
	labValues, findings, advice, err := reportAnalysisColumns(r)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO health_reports (` + reportColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = s.pool.Exec(ctx, query,
		r.ID, r.UserID, r.FileURL, r.Type, labValues,
		r.Summary, r.RiskLevel, findings, advice,
		r.FollowUp, r.OCRText, r.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// GetByID retrieves a health report by ID.
func (s *ReportStore) GetByID(ctx context.Context, id string) (*report.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM health_reports WHERE id = $1`

	r, err := scanReport(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select report: %w", err)
	}
	return r, nil
}

// GetByUserID retrieves all health reports for a user, newest first.
func (s *ReportStore) GetByUserID(ctx context.Context, userID string) ([]*report.Report, error) {
	query := `
		SELECT ` + reportColumns + `
		FROM health_reports
		WHERE user_id = $1
		ORDER BY uploaded_at DESC
	`
	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("select reports: %w", err)
	}
	defer rows.Close()

	var out []*report.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Update rewrites the mutable report fields.
func (s *ReportStore) Update(ctx context.Context, r *report.Report) error {
	labValues, findings, advice, err := reportAnalysisColumns(r)
	if err != nil {
		return err
	}

	query := `
		UPDATE health_reports
		SET report_type = $2, lab_values = $3, ai_summary = $4,
		    risk_level = $5, key_findings = $6, recommendations = $7,
		    follow_up_needed = $8
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query,
		r.ID, r.Type, labValues, r.Summary,
		r.RiskLevel, findings, advice, r.FollowUp,
	)
	if err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes a health report.
func (s *ReportStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM health_reports WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
