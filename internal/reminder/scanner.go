// Package reminder emits due-dose events. The scanner walks each
// user's daily schedule on an interval and appends a ReminderDue
// outbox entry for every unlogged slot entering the lookahead window.
// Duplicate emissions across scans are absorbed downstream by the
// dispatcher's idempotency inbox.
package reminder

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Arham21-pixel/MediTrack.AI/internal/domain/medicine"
	"github.com/Arham21-pixel/MediTrack.AI/internal/events"
	infra "github.com/Arham21-pixel/MediTrack.AI/internal/infrastructure/postgres"
	"github.com/Arham21-pixel/MediTrack.AI/internal/infrastructure/redpanda"
	"github.com/Arham21-pixel/MediTrack.AI/internal/storage"
)

// Sink accepts the outbox entries the scanner produces.
type Sink interface {
	Append(ctx context.Context, entry *infra.OutboxEntry) error
}

// Config holds scanner configuration.
type Config struct {
	// Interval between scans.
	Interval time.Duration
	// Lookahead is how far ahead of a slot a reminder fires.
	Lookahead time.Duration
}

// DefaultConfig returns defaults that fire reminders within fifteen
// minutes of the slot.
func DefaultConfig() Config {
	return Config{
		Interval:  5 * time.Minute,
		Lookahead: 15 * time.Minute,
	}
}

// Scanner finds due doses and hands them to the sink.
type Scanner struct {
	store  *storage.Store
	sink   Sink
	config Config
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a scanner.
func New(store *storage.Store, sink Sink, cfg Config, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = DefaultConfig().Lookahead
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scanner{
		store:  store,
		sink:   sink,
		config: cfg,
		logger: logger,
		tracer: otel.Tracer("reminder-scanner"),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start begins scanning in the background.
func (s *Scanner) Start() {
	go s.run()
	s.logger.Info("reminder scanner started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("lookahead", s.config.Lookahead))
}

// Stop waits for the scan loop to exit.
func (s *Scanner) Stop() {
	s.cancel()
	<-s.done
	s.logger.Info("reminder scanner stopped")
}

func (s *Scanner) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ScanOnce(s.ctx); err != nil {
				s.logger.Error("reminder scan failed", zap.Error(err))
			}
		}
	}
}

// ScanOnce performs a single scan over all users and returns the
// number of reminders emitted.
func (s *Scanner) ScanOnce(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "reminder_scan")
	defer span.End()

	userIDs, err := s.store.Prescriptions.ListUserIDs(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	emitted := 0
	for _, userID := range userIDs {
		n, err := s.scanUser(ctx, userID)
		if err != nil {
			s.logger.Warn("user scan failed", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		emitted += n
	}

	span.SetAttributes(
		attribute.Int("users", len(userIDs)),
		attribute.Int("reminders", emitted),
	)
	return emitted, nil
}

func (s *Scanner) scanUser(ctx context.Context, userID string) (int, error) {
	prescriptions, err := s.store.Prescriptions.GetByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}

	var meds []*medicine.Medicine
	for _, p := range prescriptions {
		ms, err := s.store.Medicines.GetByPrescriptionID(ctx, p.ID)
		if err != nil {
			return 0, err
		}
		meds = append(meds, ms...)
	}
	if len(meds) == 0 {
		return 0, nil
	}

	logsByMedicine := make(map[string][]*medicine.Log, len(meds))
	for _, m := range meds {
		logs, err := s.store.Logs.GetByMedicineID(ctx, m.ID)
		if err != nil {
			return 0, err
		}
		logsByMedicine[m.ID] = logs
	}

	now := s.now()
	items := medicine.BuildDaySchedule(meds, logsByMedicine, now, now)

	emitted := 0
	windowEnd := now.Add(s.config.Lookahead)
	for _, item := range items {
		if item.Status != nil {
			continue
		}
		// Fire only for slots entering the window, not long-past ones.
		if item.ScheduledTime.Before(now.Add(-s.config.Interval)) || item.ScheduledTime.After(windowEnd) {
			continue
		}

		if err := s.emit(ctx, userID, item); err != nil {
			s.logger.Warn("failed to emit reminder",
				zap.String("medicine_id", item.MedicineID),
				zap.Error(err))
			continue
		}
		emitted++
	}
	return emitted, nil
}

func (s *Scanner) emit(ctx context.Context, userID string, item medicine.ScheduleItem) error {
	payload, _ := json.Marshal(events.ReminderDue{
		MedicineID:    item.MedicineID,
		MedicineName:  item.MedicineName,
		Dosage:        item.Dosage,
		Timing:        item.Timing,
		ScheduledTime: item.ScheduledTime,
		UserID:        userID,
	})

	return s.sink.Append(ctx, &infra.OutboxEntry{
		EntityID:   item.MedicineID,
		EntityType: "medicine",
		EventType:  events.TypeReminderDue,
		Payload:    payload,
		Topic:      redpanda.TopicMedicineReminders,
		Key:        item.MedicineID,
	})
}
