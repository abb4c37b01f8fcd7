package safety

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Arham21-pixel/MediTrack.AI/pkg/circuitbreaker"
)

// ErrMalformedVerdict indicates the classifier returned a payload that
// does not validate as an Alert.
var ErrMalformedVerdict = errors.New("classifier returned malformed verdict")

// ErrClassifierUnavailable indicates the classifier could not be
// reached at all.
var ErrClassifierUnavailable = errors.New("interaction classifier unavailable")

// Classifier produces an interaction verdict for two medication lists.
// Implementations own transport and prompt concerns; the engine only
// requires the request/response shape.
type Classifier interface {
	Classify(ctx context.Context, newMeds, existingMeds []MedicationRef) (*Alert, error)
}

// Config holds engine configuration.
type Config struct {
	// CallTimeout bounds a single classifier invocation.
	CallTimeout time.Duration
	// DemoMode short-circuits checks with a fixed illustrative
	// CRITICAL verdict and must never be enabled in production.
	DemoMode bool
}

// DefaultConfig returns defaults suitable for interactive checks.
func DefaultConfig() Config {
	return Config{
		CallTimeout: 20 * time.Second,
		DemoMode:    false,
	}
}

// Engine performs drug-interaction safety checks. Every call to Check
// returns some verdict: ambiguity and failure always resolve to
// "consult doctor", never to an unqualified SAFE.
type Engine struct {
	classifier Classifier
	breaker    *circuitbreaker.CircuitBreaker
	config     Config
	logger     *zap.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// New creates a safety engine around the given classifier. The breaker
// is optional; without one the classifier is called directly.
func New(classifier Classifier, breaker *circuitbreaker.CircuitBreaker, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig().CallTimeout
	}
	return &Engine{
		classifier: classifier,
		breaker:    breaker,
		config:     cfg,
		logger:     logger,
		tracer:     otel.Tracer("safety-engine"),
		now:        time.Now,
	}
}

// Check cross-references the newly prescribed medicines against the
// patient's existing medications and returns a verdict. Two empty
// lists short-circuit to SAFE without any classifier call. Any
// classifier failure, timeout or malformed payload yields the
// fail-safe verdict instead of an error.
func (e *Engine) Check(ctx context.Context, newMeds, existingMeds []MedicationRef) *Alert {
	ctx, span := e.tracer.Start(ctx, "safety_check",
		trace.WithAttributes(
			attribute.Int("new_medications", len(newMeds)),
			attribute.Int("existing_medications", len(existingMeds)),
		))
	defer span.End()

	total := len(newMeds) + len(existingMeds)

	if total == 0 {
		return &Alert{
			HasCriticalInteractions: false,
			SafetyLevel:             LevelSafe,
			Interactions:            []Interaction{},
			SafeMedicines:           []string{},
			Recommendation:          "No medications to check.",
			ConsultDoctor:           false,
			ConfidenceScore:         1.0,
			TotalMedicationsChecked: 0,
			CheckedAt:               e.now().UTC(),
		}
	}

	if e.config.DemoMode {
		span.SetAttributes(attribute.Bool("demo_mode", true))
		return e.demoVerdict(newMeds, existingMeds)
	}

	alert, err := e.classify(ctx, newMeds, existingMeds)
	if err == nil {
		err = alert.Validate()
	}
	if err != nil {
		span.RecordError(err)
		e.logger.Warn("safety check degraded to fail-safe verdict",
			zap.Int("medications", total),
			zap.Error(err))
		return e.failSafeVerdict(total)
	}

	// The engine does not second-guess the classifier's severity
	// judgment; it only stamps bookkeeping fields.
	alert.TotalMedicationsChecked = total
	alert.CheckedAt = e.now().UTC()
	return alert
}

// classify invokes the classifier under the call timeout, through the
// circuit breaker when one is configured.
func (e *Engine) classify(ctx context.Context, newMeds, existingMeds []MedicationRef) (*Alert, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()

	if e.breaker == nil {
		alert, err := e.classifier.Classify(ctx, newMeds, existingMeds)
		if err != nil {
			return nil, err
		}
		if alert == nil {
			return nil, ErrMalformedVerdict
		}
		return alert, nil
	}

	result, err := e.breaker.Execute(ctx, func() (interface{}, error) {
		return e.classifier.Classify(ctx, newMeds, existingMeds)
	})
	if err != nil {
		return nil, err
	}
	alert, ok := result.(*Alert)
	if !ok || alert == nil {
		return nil, ErrMalformedVerdict
	}
	return alert, nil
}

// failSafeVerdict is the conservative verdict returned when the
// classifier cannot produce a trustworthy answer. It deliberately
// reports HasCriticalInteractions=true even though nothing was found:
// an unverifiable interaction must never present as "no risk". This is
// a policy choice, not a defect.
func (e *Engine) failSafeVerdict(total int) *Alert {
	return &Alert{
		HasCriticalInteractions: true,
		SafetyLevel:             LevelCaution,
		Interactions: []Interaction{{
			DrugA:           "all medications",
			DrugB:           "all medications",
			Severity:        LevelCaution,
			RiskDescription: "Unable to verify drug interactions at this time.",
			RequiredAction:  "Consult your doctor or pharmacist before taking these medicines together.",
		}},
		SafeMedicines:           []string{},
		Recommendation:          "Interaction check unavailable. Please consult your doctor before combining these medications.",
		ConsultDoctor:           true,
		ConfidenceScore:         0.0,
		TotalMedicationsChecked: total,
		CheckedAt:               e.now().UTC(),
	}
}

// demoVerdict returns a fixed illustrative CRITICAL verdict for
// exercising fallback rendering paths without a live classifier.
func (e *Engine) demoVerdict(newMeds, existingMeds []MedicationRef) *Alert {
	drugA, drugB := "Warfarin", "Aspirin"
	if len(newMeds) > 0 {
		drugA = newMeds[0].Name
	}
	if len(existingMeds) > 0 {
		drugB = existingMeds[0].Name
	}

	sep := 12
	return &Alert{
		HasCriticalInteractions: true,
		SafetyLevel:             LevelCritical,
		Interactions: []Interaction{{
			DrugA:              drugA,
			DrugB:              drugB,
			Severity:           LevelCritical,
			RiskDescription:    "Combined use significantly increases bleeding risk.",
			SymptomsToWatch:    "Unusual bruising, blood in stool or urine, prolonged bleeding from cuts.",
			RequiredAction:     "Do not take together without explicit medical supervision.",
			MinSeparationHours: &sep,
			ClinicalNote:       "Demo verdict for offline testing; not a clinical assessment.",
		}},
		SafeMedicines:           []string{},
		Recommendation:          "Critical interaction detected. Contact your doctor immediately.",
		EmergencyWarning:        "Seek emergency care if you experience uncontrolled bleeding.",
		ConsultDoctor:           true,
		ConfidenceScore:         1.0,
		TotalMedicationsChecked: len(newMeds) + len(existingMeds),
		CheckedAt:               e.now().UTC(),
	}
}
