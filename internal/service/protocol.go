package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/neerajk1208/ivfb/internal/audit"
	"github.com/neerajk1208/ivfb/internal/azure"
	"github.com/neerajk1208/ivfb/internal/timeutil"
	"github.com/neerajk1208/ivfb/pkg/model"
	"go.uber.org/zap"
)

// ExtractionSchemaVersion is the only accepted extraction schema version
const ExtractionSchemaVersion = 1

// ProtocolExtraction is the structured protocol produced by extraction or
// manual intake
type ProtocolExtraction struct {
	SchemaVersion  int                    `json:"schemaVersion" validate:"omitempty,eq=1"`
	CycleStartDate string                 `json:"cycleStartDate" validate:"required,datetime=2006-01-02"`
	Notes          string                 `json:"notes,omitempty" validate:"max=4000"`
	Medications    []ExtractedMedication  `json:"medications" validate:"max=50,dive"`
	Appointments   []ExtractedAppointment `json:"appointments" validate:"max=50,dive"`
	Milestones     []ExtractedMilestone   `json:"milestones" validate:"max=50,dive"`
	Confidence     *ExtractionConfidence  `json:"confidence,omitempty"`
	MissingFields  []string               `json:"missingFields,omitempty" validate:"max=50,dive,max=100"`
}

// ExtractedMedication is one medication line of an extraction
type ExtractedMedication struct {
	Name           string   `json:"name" validate:"required,max=255"`
	DosageAmount   *float64 `json:"dosageAmount,omitempty" validate:"omitempty,gt=0"`
	DosageUnit     string   `json:"dosageUnit,omitempty" validate:"required_with=DosageAmount,omitempty,oneof=IU mg mcg mL pills patches units"`
	Dosage         string   `json:"dosage,omitempty" validate:"max=255"`
	Frequency      string   `json:"frequency,omitempty" validate:"max=255"`
	Route          string   `json:"route,omitempty" validate:"max=100"`
	StartDayOffset int      `json:"startDayOffset" validate:"gte=0,lte=365"`
	DurationDays   int      `json:"durationDays" validate:"gte=1,lte=365"`
	TimeOfDay      string   `json:"timeOfDay,omitempty" validate:"omitempty,oneof=morning afternoon evening bedtime"`
	ExactTime      string   `json:"exactTime,omitempty" validate:"omitempty,clock"`
	Instructions   string   `json:"instructions,omitempty" validate:"max=1000"`
}

// ExtractedAppointment is one clinic visit of an extraction
type ExtractedAppointment struct {
	Type      string `json:"type" validate:"required,oneof=BLOODWORK ULTRASOUND MONITORING TRIGGER RETRIEVAL TRANSFER CONSULTATION OTHER"`
	DayOffset int    `json:"dayOffset" validate:"gte=0,lte=365"`
	ExactTime string `json:"exactTime,omitempty" validate:"omitempty,clock"`
	Notes     string `json:"notes,omitempty" validate:"max=1000"`
	Fasting   bool   `json:"fasting"`
	Critical  bool   `json:"critical"`
}

// ExtractedMilestone is one informational marker of an extraction
type ExtractedMilestone struct {
	Type      string `json:"type" validate:"required,oneof=CYCLE_START STIM_START TRIGGER RETRIEVAL TRANSFER PREG_TEST OTHER"`
	DayOffset int    `json:"dayOffset" validate:"gte=0,lte=365"`
	Label     string `json:"label" validate:"required,max=255"`
	Details   string `json:"details,omitempty" validate:"max=1000"`
}

// ExtractionConfidence is the extractor's self-assessment per section
type ExtractionConfidence struct {
	CycleStartDate string `json:"cycleStartDate,omitempty" validate:"omitempty,oneof=high medium low"`
	Medications    string `json:"medications,omitempty" validate:"omitempty,oneof=high medium low"`
	Appointments   string `json:"appointments,omitempty" validate:"omitempty,oneof=high medium low"`
}

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// newExtractionValidator reports field paths by their JSON names
func newExtractionValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		return clockPattern.MatchString(fl.Field().String())
	})
	return v
}

// NormalizeExtraction validates an extraction and converts it into a DRAFT
// protocol for the cycle. Every malformed field is reported; nothing is coerced.
func NormalizeExtraction(v *validator.Validate, ext *ProtocolExtraction, cycleID string, source model.ProtocolSource) (*model.Protocol, error) {
	if ext == nil {
		return nil, newValidationError("extraction", "is required")
	}

	if err := v.Struct(ext); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, fmt.Errorf("failed to validate extraction: %w", err)
		}
		out := &ValidationError{}
		for _, fe := range verrs {
			out.Fields = append(out.Fields, FieldError{
				Field:   strings.TrimPrefix(fe.Namespace(), "ProtocolExtraction."),
				Message: describeTag(fe),
			})
		}
		return nil, out
	}

	start, err := civil.ParseDate(ext.CycleStartDate)
	if err != nil {
		return nil, newValidationError("cycleStartDate", err.Error())
	}

	planID := uuid.New().String()
	p := &model.Protocol{
		ID:             planID,
		CycleID:        cycleID,
		Status:         model.ProtocolStatusDraft,
		Source:         source,
		CycleStartDate: start,
		Notes:          strings.TrimSpace(ext.Notes),
		MissingFields:  ext.MissingFields,
		Medications:    make([]model.Medication, 0, len(ext.Medications)),
		Appointments:   make([]model.Appointment, 0, len(ext.Appointments)),
		Milestones:     make([]model.Milestone, 0, len(ext.Milestones)),
	}
	if p.MissingFields == nil {
		p.MissingFields = []string{}
	}

	for _, m := range ext.Medications {
		med := model.Medication{
			ID:             uuid.New().String(),
			ProtocolID:     planID,
			Name:           strings.TrimSpace(m.Name),
			DosageAmount:   m.DosageAmount,
			DosageUnit:     m.DosageUnit,
			Dosage:         strings.TrimSpace(m.Dosage),
			Frequency:      m.Frequency,
			Route:          m.Route,
			StartDayOffset: m.StartDayOffset,
			DurationDays:   m.DurationDays,
			Instructions:   strings.TrimSpace(m.Instructions),
		}
		if m.TimeOfDay != "" {
			tod := timeutil.TimeOfDay(m.TimeOfDay)
			med.TimeOfDay = &tod
		}
		if m.ExactTime != "" {
			clock, err := timeutil.ParseClock(m.ExactTime)
			if err != nil {
				return nil, newValidationError("medications.exactTime", err.Error())
			}
			med.ExactTime = &clock
		}
		p.Medications = append(p.Medications, med)
	}

	for _, a := range ext.Appointments {
		appt := model.Appointment{
			ID:         uuid.New().String(),
			ProtocolID: planID,
			Type:       model.AppointmentType(a.Type),
			DayOffset:  a.DayOffset,
			Notes:      strings.TrimSpace(a.Notes),
			Fasting:    a.Fasting,
			Critical:   a.Critical || model.AppointmentType(a.Type).TimeCritical(),
		}
		if a.ExactTime != "" {
			clock, err := timeutil.ParseClock(a.ExactTime)
			if err != nil {
				return nil, newValidationError("appointments.exactTime", err.Error())
			}
			appt.ExactTime = &clock
		}
		p.Appointments = append(p.Appointments, appt)
	}

	for _, ms := range ext.Milestones {
		p.Milestones = append(p.Milestones, model.Milestone{
			ID:         uuid.New().String(),
			ProtocolID: planID,
			Type:       model.MilestoneType(ms.Type),
			DayOffset:  ms.DayOffset,
			Label:      strings.TrimSpace(ms.Label),
			Details:    strings.TrimSpace(ms.Details),
		})
	}

	return p, nil
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_with":
		return "is required when " + fe.Param() + " is set"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " long"
	case "eq":
		return "must be " + fe.Param()
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	case "clock":
		return "must be a time in HH:MM (24h) format"
	}
	return "is invalid (" + fe.Tag() + ")"
}

// CycleRepositoryInterface manages treatment cycles
type CycleRepositoryInterface interface {
	GetByID(ctx context.Context, cycleID string) (*model.Cycle, error)
	GetActiveByUser(ctx context.Context, userID string) (*model.Cycle, error)
	EnsureActive(ctx context.Context, userID string) (*model.Cycle, error)
}

// ProtocolRepositoryInterface manages stored protocols
type ProtocolRepositoryInterface interface {
	ReplaceForCycle(ctx context.Context, p *model.Protocol) error
	GetByID(ctx context.Context, planID string) (*model.Protocol, error)
	GetByCycle(ctx context.Context, cycleID string) (*model.Protocol, error)
	Activate(ctx context.Context, planID string) error
	Deactivate(ctx context.Context, planID string) error
	SetDocumentPath(ctx context.Context, planID, path string) error
}

// PlanGeneratorInterface regenerates a cycle's plan window
type PlanGeneratorInterface interface {
	GeneratePlanTasks(ctx context.Context, req PlanRequest) (*PlanResult, error)
}

// AuditLoggerInterface records data operations
type AuditLoggerInterface interface {
	Log(ctx context.Context, entry audit.AuditLog) error
}

// ProtocolService captures, confirms and serves treatment protocols
type ProtocolService struct {
	cycles         CycleRepositoryInterface
	protocols      ProtocolRepositoryInterface
	planner        PlanGeneratorInterface
	completer      azure.Completer
	documents      azure.DocumentStore
	audit          AuditLoggerInterface
	validate       *validator.Validate
	extractTimeout time.Duration
	logger         *zap.Logger
}

// NewProtocolService creates a new ProtocolService. completer and documents
// may be nil, which disables text extraction and document archiving.
func NewProtocolService(
	cycles CycleRepositoryInterface,
	protocols ProtocolRepositoryInterface,
	planner PlanGeneratorInterface,
	completer azure.Completer,
	documents azure.DocumentStore,
	auditLogger AuditLoggerInterface,
	extractTimeout time.Duration,
	logger *zap.Logger,
) *ProtocolService {
	return &ProtocolService{
		cycles:         cycles,
		protocols:      protocols,
		planner:        planner,
		completer:      completer,
		documents:      documents,
		audit:          auditLogger,
		validate:       newExtractionValidator(),
		extractTimeout: extractTimeout,
		logger:         logger,
	}
}

// SaveDraft normalizes an extraction and stores it as the DRAFT protocol of
// the user's active cycle, replacing any previous protocol of that cycle
func (s *ProtocolService) SaveDraft(ctx context.Context, userID string, ext *ProtocolExtraction, source model.ProtocolSource) (*model.Protocol, error) {
	cycle, err := s.cycles.EnsureActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve active cycle: %w", err)
	}

	protocol, err := NormalizeExtraction(s.validate, ext, cycle.ID, source)
	if err != nil {
		return nil, err
	}

	if err := s.protocols.ReplaceForCycle(ctx, protocol); err != nil {
		return nil, fmt.Errorf("failed to save protocol draft: %w", err)
	}

	s.logger.Info("protocol draft saved",
		zap.String("user_id", userID),
		zap.String("cycle_id", cycle.ID),
		zap.String("protocol_plan_id", protocol.ID),
		zap.Int("medications", len(protocol.Medications)),
		zap.Int("appointments", len(protocol.Appointments)),
		zap.Int("milestones", len(protocol.Milestones)),
	)

	return protocol, nil
}

// ConfirmResult is the activated protocol and the plan generated for it
type ConfirmResult struct {
	Protocol *model.Protocol `json:"protocol"`
	Plan     *PlanResult     `json:"plan"`
}

// Confirm activates a protocol owned by the user and generates its plan
func (s *ProtocolService) Confirm(ctx context.Context, user *model.User, planID string) (*ConfirmResult, error) {
	protocol, err := s.owned(ctx, user.ID, planID)
	if err != nil {
		return nil, err
	}

	qh, err := user.QuietHours()
	if err != nil {
		return nil, newValidationError("quietHours", err.Error())
	}

	wasDraft := protocol.Status != model.ProtocolStatusActive
	if err := s.protocols.Activate(ctx, planID); err != nil {
		return nil, fmt.Errorf("failed to activate protocol: %w", err)
	}

	plan, err := s.planner.GeneratePlanTasks(ctx, PlanRequest{
		CycleID:        protocol.CycleID,
		ProtocolPlanID: planID,
		Timezone:       user.Timezone,
		QuietHours:     qh,
	})
	if err != nil {
		// a protocol is only ACTIVE once it has a plan
		if wasDraft {
			if derr := s.protocols.Deactivate(context.WithoutCancel(ctx), planID); derr != nil {
				s.logger.Error("failed to return protocol to draft", zap.Error(derr), zap.String("protocol_plan_id", planID))
			}
		}
		return nil, fmt.Errorf("failed to generate plan: %w", err)
	}
	protocol.Status = model.ProtocolStatusActive

	if err := s.audit.Log(ctx, audit.AuditLog{
		UserID:        user.ID,
		OperationType: audit.OperationActivate,
		ResourceType:  audit.ResourceProtocolPlan,
		ResourceID:    planID,
	}); err != nil {
		s.logger.Warn("failed to audit protocol activation", zap.Error(err))
	}

	return &ConfirmResult{Protocol: protocol, Plan: plan}, nil
}

// Current returns the protocol of the user's active cycle
func (s *ProtocolService) Current(ctx context.Context, userID string) (*model.Protocol, error) {
	cycle, err := s.cycles.GetActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.protocols.GetByCycle(ctx, cycle.ID)
}

func (s *ProtocolService) owned(ctx context.Context, userID, planID string) (*model.Protocol, error) {
	protocol, err := s.protocols.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	cycle, err := s.cycles.GetByID(ctx, protocol.CycleID)
	if err != nil {
		return nil, err
	}
	if cycle.UserID != userID {
		return nil, fmt.Errorf("protocol %s: %w", planID, ErrForbidden)
	}
	return protocol, nil
}

const extractionSystemPrompt = `You convert IVF clinic protocol documents into structured JSON.
Return a single JSON object with exactly these fields:
{
  "schemaVersion": 1,
  "cycleStartDate": "YYYY-MM-DD",
  "notes": string,
  "medications": [{"name": string, "dosageAmount": number|null, "dosageUnit": "IU"|"mg"|"mcg"|"mL"|"pills"|"patches"|"units"|null, "dosage": string, "frequency": string, "route": string, "startDayOffset": integer>=0, "durationDays": integer>=1, "timeOfDay": "morning"|"afternoon"|"evening"|"bedtime"|null, "exactTime": "HH:MM"|null, "instructions": string}],
  "appointments": [{"type": "BLOODWORK"|"ULTRASOUND"|"MONITORING"|"TRIGGER"|"RETRIEVAL"|"TRANSFER"|"CONSULTATION"|"OTHER", "dayOffset": integer>=0, "exactTime": "HH:MM"|null, "notes": string, "fasting": boolean, "critical": boolean}],
  "milestones": [{"type": "CYCLE_START"|"STIM_START"|"TRIGGER"|"RETRIEVAL"|"TRANSFER"|"PREG_TEST"|"OTHER", "dayOffset": integer>=0, "label": string, "details": string}],
  "confidence": {"cycleStartDate": "high"|"medium"|"low", "medications": "high"|"medium"|"low", "appointments": "high"|"medium"|"low"},
  "missingFields": [string]
}
Day offsets count from the cycle start date (day 0). Do not invent values: leave unknown fields out and list them in missingFields.`

// ExtractFromText archives a protocol document, asks the language model for
// a structured extraction and stores the result as a DRAFT
func (s *ProtocolService) ExtractFromText(ctx context.Context, userID, filename, text string) (*model.Protocol, error) {
	if strings.TrimSpace(text) == "" {
		return nil, newValidationError("text", "is required")
	}
	if s.completer == nil {
		return nil, fmt.Errorf("protocol extraction: %w", ErrUnavailable)
	}

	var documentPath string
	if s.documents != nil {
		path, err := s.documents.UploadProtocolDocument(ctx, userID, filename, "text/plain", []byte(text))
		if err != nil {
			// archiving is best effort
			s.logger.Warn("failed to archive protocol document", zap.Error(err), zap.String("user_id", userID))
		} else {
			documentPath = path
		}
	}

	cctx, cancel := context.WithTimeout(ctx, s.extractTimeout)
	defer cancel()

	raw, err := s.completer.Complete(cctx, azure.CompletionRequest{
		System:      extractionSystemPrompt,
		User:        "Today's date: " + time.Now().UTC().Format("2006-01-02") + "\n\nProtocol document:\n" + text,
		MaxTokens:   4000,
		Temperature: 0.1,
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract protocol: %w", err)
	}

	var ext ProtocolExtraction
	if err := json.Unmarshal([]byte(azure.StripCodeFences(raw)), &ext); err != nil {
		return nil, newValidationError("extraction", "model returned malformed JSON: "+err.Error())
	}
	if ext.SchemaVersion == 0 {
		ext.SchemaVersion = ExtractionSchemaVersion
	}

	protocol, err := s.SaveDraft(ctx, userID, &ext, model.ProtocolSourceExtraction)
	if err != nil {
		return nil, err
	}

	if documentPath != "" {
		if err := s.protocols.SetDocumentPath(ctx, protocol.ID, documentPath); err != nil {
			s.logger.Warn("failed to link protocol document", zap.Error(err), zap.String("protocol_plan_id", protocol.ID))
		} else {
			protocol.DocumentPath = &documentPath
		}
	}

	return protocol, nil
}
